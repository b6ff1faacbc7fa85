// Package middleware adapts access-token checks to net/http.
//
// [RequireAccount] reads the token, calls [Authorizer.Authorize] and stores
// the account in the request context. [RequireRole] restricts a route to a
// set of roles. Both write JSON error bodies in the shape of
// storeauth.Response.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access the account store.
//   - Decide anything beyond pass or reject.
package middleware
