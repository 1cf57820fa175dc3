package goFactor

import (
	"context"
)

// LocationOutcome is what a location check concluded.
type LocationOutcome uint8

const (
	// LocationUnresolved: no address, no resolver, or the lookup failed.
	LocationUnresolved LocationOutcome = iota
	LocationBaselineCreated
	LocationRecognized
	LocationAnomaly
)

func (o LocationOutcome) String() string {
	switch o {
	case LocationUnresolved:
		return "unresolved"
	case LocationBaselineCreated:
		return "baseline_created"
	case LocationRecognized:
		return "recognized"
	case LocationAnomaly:
		return "anomaly"
	default:
		return "unknown"
	}
}

// LocationGuard compares where a login comes from with the identity's
// baseline location. It never blocks a login and never moves the baseline.
type LocationGuard struct {
	engine *Engine
}

// Check resolves the client address carried by ctx (see [WithClientIP]).
// The first resolvable login records the baseline silently; a later login
// from a different coarse location mails an alert with a password reset
// link. Failures are logged and reported as LocationUnresolved.
func (g *LocationGuard) Check(ctx context.Context, ident Identity) LocationOutcome {
	e := g.engine
	if !e.config.Location.Enabled || e.geo == nil {
		return LocationUnresolved
	}

	addr := clientIPFromContext(ctx)
	if addr == "" {
		e.metricInc(MetricLocationUnresolved)
		return LocationUnresolved
	}

	resolveCtx, cancel := context.WithTimeout(ctx, e.config.Location.ResolveTimeout)
	loc, err := e.geo.Resolve(resolveCtx, addr)
	cancel()
	if err != nil || loc.CoarseKey == "" {
		if err != nil {
			e.logger.DebugContext(ctx, "location unresolved", "user_id", ident.ID, "error", err)
		}
		e.metricInc(MetricLocationUnresolved)
		return LocationUnresolved
	}

	baseline, ok, err := e.identities.BaselineLocation(ctx, ident.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "load baseline location", "user_id", ident.ID, "error", err)
		return LocationUnresolved
	}

	if !ok {
		inserted, err := e.identities.CreateBaselineLocation(ctx, LocationRecord{UserID: ident.ID, Location: loc})
		if err != nil {
			e.logger.WarnContext(ctx, "create baseline location", "user_id", ident.ID, "error", err)
			return LocationUnresolved
		}
		if inserted {
			e.metricInc(MetricLocationBaseline)
			e.emitAudit(ctx, auditEventLocationBaseline, true, ident.ID, "", nil, func() map[string]string {
				return map[string]string{"country": loc.Country}
			})
			return LocationBaselineCreated
		}
		// A concurrent login won the insert; compare against its record.
		baseline, ok, err = e.identities.BaselineLocation(ctx, ident.ID)
		if err != nil || !ok {
			return LocationUnresolved
		}
	}

	if baseline.CoarseKey == loc.CoarseKey {
		return LocationRecognized
	}

	e.metricInc(MetricLocationAnomaly)
	e.emitAudit(ctx, auditEventLocationAnomaly, true, ident.ID, "", nil, func() map[string]string {
		return map[string]string{
			"country":          loc.Country,
			"baseline_country": baseline.Country,
		}
	})

	tok, err := e.resetTokens.Issue(ident.Username)
	if err != nil {
		e.logger.ErrorContext(ctx, "issue reset token", "user_id", ident.ID, "error", err)
		return LocationAnomaly
	}
	e.dispatch(ctx, ident.ID, e.unrecognizedAccessMail(ident.Email, loc, tok))
	return LocationAnomaly
}
