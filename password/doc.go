// Package password implements secret hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The same hasher protects passwords and OTP codes, so neither is ever stored
// in plaintext. Bcrypt hashes ($2a$, $2b$, $2y$) from older deployments still
// verify, and [Argon2.NeedsUpgrade] reports them so the caller can re-hash on
// the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets. Callers supply plaintext and receive hashes.
//   - Enforce password policy beyond the input length bound.
//   - Log plaintext secrets or hash parameters at runtime.
package password
