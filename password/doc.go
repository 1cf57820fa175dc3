// Package password hashes and verifies account passwords with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A stored hash carries its own parameters, so raising the cost in [Config]
// never breaks existing credentials; [Hasher.NeedsRehash] reports hashes that
// were produced with weaker settings.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Enforce password policy beyond rejecting empty and oversized input.
//   - Log plaintext passwords.
package password
