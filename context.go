package goFactor

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network address to ctx. The location
// guard resolves it on every successful credential check; without it the
// check is skipped.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
