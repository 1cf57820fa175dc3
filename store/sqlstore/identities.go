package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
)

const selectIdentity = `
SELECT i.id, i.username, i.first_name, i.last_name, i.email, i.password_hash,
       i.verified, i.verified_at, i.locked, COALESCE(t.enabled, FALSE)
FROM identities i
LEFT JOIN two_factor t ON t.user_id = i.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (goFactor.Identity, error) {
	var (
		ident      goFactor.Identity
		verifiedAt sql.NullInt64
	)
	err := row.Scan(
		&ident.ID,
		&ident.Username,
		&ident.First,
		&ident.Last,
		&ident.Email,
		&ident.PasswordHash,
		&ident.Verified,
		&verifiedAt,
		&ident.Locked,
		&ident.TwoFactorEnabled,
	)
	if err != nil {
		return goFactor.Identity{}, mapErr(err)
	}
	if verifiedAt.Valid {
		ident.VerifiedAt = time.Unix(0, verifiedAt.Int64).UTC()
	}
	return ident, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// CreateIdentity inserts the identity and its two-factor row in one transaction.
func (s *Store) CreateIdentity(ctx context.Context, in goFactor.NewIdentity) (goFactor.Identity, error) {
	ident := goFactor.Identity{
		ID:               newID(),
		Username:         in.Username,
		First:            in.First,
		Last:             in.Last,
		Email:            in.Email,
		PasswordHash:     in.PasswordHash,
		Verified:         in.Verified,
		TwoFactorEnabled: in.TwoFactorEnabled,
	}
	verifiedAt := nullTime(in.VerifiedAt)
	if verifiedAt.Valid {
		ident.VerifiedAt = time.Unix(0, verifiedAt.Int64).UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goFactor.Identity{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.q(`
INSERT INTO identities (id, username, first_name, last_name, email, password_hash, verified, verified_at, locked, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)`),
		ident.ID, ident.Username, ident.First, ident.Last, ident.Email,
		ident.PasswordHash, ident.Verified, verifiedAt, s.now().UnixNano(),
	)
	if err != nil {
		return goFactor.Identity{}, mapErr(err)
	}

	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO two_factor (user_id, enabled) VALUES (?, ?)`), ident.ID, ident.TwoFactorEnabled); err != nil {
		return goFactor.Identity{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return goFactor.Identity{}, mapErr(err)
	}
	return ident, nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (goFactor.Identity, error) {
	return scanIdentity(s.db.QueryRowContext(ctx, s.q(selectIdentity+`WHERE i.id = ?`), id))
}

func (s *Store) IdentityByUsername(ctx context.Context, username string) (goFactor.Identity, error) {
	return scanIdentity(s.db.QueryRowContext(ctx, s.q(selectIdentity+`WHERE i.username = ?`), username))
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (goFactor.Identity, error) {
	return scanIdentity(s.db.QueryRowContext(ctx, s.q(selectIdentity+`WHERE i.email = ?`), email))
}

// exec runs a single-row update and reports ErrIdentityNotFound when no
// row matched.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return goFactor.ErrIdentityNotFound
	}
	return nil
}

func (s *Store) MarkVerified(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE identities SET verified = TRUE, verified_at = ? WHERE id = ?`, nullTime(at), id)
}

func (s *Store) SetLocked(ctx context.Context, id string, locked bool) error {
	return s.exec(ctx, `UPDATE identities SET locked = ? WHERE id = ?`, locked, id)
}

func (s *Store) ResetPassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE identities SET password_hash = ?, locked = FALSE WHERE id = ?`, hash, id)
}

func (s *Store) UpdateEmail(ctx context.Context, id, email string) error {
	return s.exec(ctx, `UPDATE identities SET email = ? WHERE id = ?`, email, id)
}

// SetTwoFactor upserts the two-factor row so identities created outside
// CreateIdentity still get one.
func (s *Store) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	if _, err := s.IdentityByID(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO two_factor (user_id, enabled) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET enabled = excluded.enabled`), id, enabled)
	return mapErr(err)
}

// DeleteIdentity removes dependent rows, then the identity, in one transaction.
func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	tables := make([]string, 0, len(s.dependents)+2)
	tables = append(tables, s.dependents...)
	tables = append(tables, "two_factor", "locations")
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+t+` WHERE user_id = ?`), id); err != nil {
			return mapErr(err)
		}
	}

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM identities WHERE id = ?`), id)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return goFactor.ErrIdentityNotFound
	}
	return mapErr(tx.Commit())
}

func (s *Store) BaselineLocation(ctx context.Context, userID string) (goFactor.LocationRecord, bool, error) {
	rec := goFactor.LocationRecord{UserID: userID}
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT city, region, country, coarse_key FROM locations WHERE user_id = ?`), userID).
		Scan(&rec.City, &rec.Region, &rec.Country, &rec.CoarseKey)
	if errors.Is(err, sql.ErrNoRows) {
		return goFactor.LocationRecord{}, false, nil
	}
	if err != nil {
		return goFactor.LocationRecord{}, false, mapErr(err)
	}
	return rec, true, nil
}

func (s *Store) CreateBaselineLocation(ctx context.Context, rec goFactor.LocationRecord) (bool, error) {
	if strings.TrimSpace(rec.UserID) == "" {
		return false, goFactor.ErrIdentityNotFound
	}
	res, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO locations (user_id, city, region, country, coarse_key) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO NOTHING`),
		rec.UserID, rec.City, rec.Region, rec.Country, rec.CoarseKey,
	)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return n == 1, nil
}
