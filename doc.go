// Package storeauth is the account and session core of a storefront backend:
// registration with emailed one-time codes, password login, rotating refresh
// tokens with reuse detection, password recovery and an account gate that
// every authenticated request passes through.
//
// The package is safe for concurrent server workloads. Build an [Engine] once
// with [New] and share it; every method may be called from many goroutines.
//
// # Architecture boundaries
//
// storeauth is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel errors and value types such as [TokenPair] and
// [MetricsSnapshot]. Persistence lives behind [account.Store], with Redis and
// PostgreSQL implementations in account/redisstore and account/pgstore. Flow
// orchestration, OTP issuing and audit dispatch live under internal/.
//
// # Sessions
//
// A session is one refresh token. The store keeps a digest of every live
// refresh token of an account, the session family. Refresh swaps the
// presented digest for a new one atomically; presenting a digest that is no
// longer in the family wipes the whole family and fails with [ErrTokenReuse].
//
// # What this package must NOT do
//
//   - Store plaintext passwords, OTP codes or refresh tokens.
//   - Reveal whether an email is registered through login or password recovery.
//   - Import any sub-package that re-imports storeauth (no import cycles).
package storeauth
