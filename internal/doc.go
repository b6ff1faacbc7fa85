// Package internal holds helpers private to storeauth: OTP generation,
// challenge issuing and refresh token digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - logging: slog setup shared by the daemon
//
// # What this package must NOT do
//
//   - Export types that appear in the public storeauth API.
//   - Be imported by any package outside the storeauth module.
package internal
