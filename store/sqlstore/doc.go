// Package sqlstore implements goFactor.IdentityStore on database/sql.
//
// Postgres is reached through pgx and SQLite through the pure Go modernc
// driver. The schema ships embedded and is applied with goose by
// [Store.Migrate]. Identities, their two-factor configuration and their
// baseline locations live in three tables keyed by the identity id.
//
// Every IdentityStore method is a single statement or a single transaction.
package sqlstore
