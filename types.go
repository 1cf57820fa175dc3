package goFactor

import (
	"context"
	"time"
)

// Identity is a registered account as held by the [IdentityStore].
type Identity struct {
	ID       string
	Username string // case-folded
	First    string
	Last     string
	Email    string

	PasswordHash string

	Verified   bool
	VerifiedAt time.Time // zero while unverified
	Locked     bool

	// TwoFactorEnabled comes from the identity's two-factor configuration.
	TwoFactorEnabled bool
}

// NewIdentity is the input to [IdentityStore.CreateIdentity]. The store
// creates the identity and its two-factor configuration in one commit.
type NewIdentity struct {
	Username         string
	First            string
	Last             string
	Email            string
	PasswordHash     string
	Verified         bool
	VerifiedAt       time.Time
	TwoFactorEnabled bool
}

// Location is what a [GeoResolver] reports for a network address.
type Location struct {
	City    string
	Region  string
	Country string
	// CoarseKey identifies a broad network location and is the only field
	// compared for anomaly detection.
	CoarseKey string
}

// LocationRecord is the baseline location of an identity.
type LocationRecord struct {
	UserID string
	Location
}

// IdentityStore is the durable home of identities, their two-factor
// configuration and baseline locations. Every method is one atomic commit.
//
// Lookups return [ErrIdentityNotFound] when nothing matches. Writes that hit
// a uniqueness constraint return [ErrIdentityConflict]. Backend failures
// should wrap [ErrStoreUnavailable].
type IdentityStore interface {
	CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error)
	IdentityByID(ctx context.Context, id string) (Identity, error)
	// IdentityByUsername matches the already folded username exactly.
	IdentityByUsername(ctx context.Context, username string) (Identity, error)
	// IdentityByEmail matches email exactly, including case.
	IdentityByEmail(ctx context.Context, email string) (Identity, error)

	MarkVerified(ctx context.Context, id string, at time.Time) error
	SetLocked(ctx context.Context, id string, locked bool) error
	// ResetPassword stores hash and clears the locked flag in one commit.
	ResetPassword(ctx context.Context, id, hash string) error
	UpdateEmail(ctx context.Context, id, email string) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error

	// DeleteIdentity removes every record owned by the identity before the
	// identity itself.
	DeleteIdentity(ctx context.Context, id string) error

	BaselineLocation(ctx context.Context, userID string) (LocationRecord, bool, error)
	// CreateBaselineLocation inserts rec unless a baseline already exists and
	// reports whether it inserted.
	CreateBaselineLocation(ctx context.Context, rec LocationRecord) (bool, error)
}

// Channel names a notification transport.
type Channel string

const (
	ChannelMail Channel = "mail"
	ChannelSMS  Channel = "sms"
)

// Message is one outbound notification.
type Message struct {
	Channel Channel
	To      string
	Subject string // mail only
	Body    string
}

// NotificationSender delivers messages. The Engine logs failures and never
// surfaces them to its callers.
type NotificationSender interface {
	Send(ctx context.Context, msg Message) error
}

// GeoResolver maps a network address to a [Location]. Any error means the
// address could not be resolved.
type GeoResolver interface {
	Resolve(ctx context.Context, addr string) (Location, error)
}

// RegisterRequest is the input to [Engine.Register].
type RegisterRequest struct {
	Username string
	First    string
	Last     string
	Email    string
	Password string
	Verified bool
	// TwoFactorEnabled defaults to Config.Registration.TwoFactorDefault.
	TwoFactorEnabled *bool
	// SkipVerificationMail suppresses the verification mail for unverified
	// registrations.
	SkipVerificationMail bool
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Identity Identity
	// Next is where the caller goes after the credential check.
	Next Redirect
}
