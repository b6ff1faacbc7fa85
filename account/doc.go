// Package account defines the account record, its secret fields and the
// [Store] contract every credential backend implements.
//
// # Secrets
//
// Password and challenge hashes never travel on [Account]. They are read
// through [Store.Secrets], which only the registration, session and recovery
// flows call.
//
// # Session family
//
// Refresh tokens are tracked as digests in a per-account set kept apart from
// the account record. Adding, rotating and removing a digest are set-element
// operations, so two devices refreshing at the same time never overwrite each
// other.
//
// # What this package must NOT do
//
//   - Hash, mint or verify secrets (callers pass digests and hashes in).
//   - Import storeauth, jwt or password.
//   - Decide whether an account may authenticate.
package account
