// Package redisstore implements account.Store on Redis.
//
// # Layout
//
//	<prefix>:acct:<id>      hash   account fields and hidden secrets
//	<prefix>:email:<email>  string id, the uniqueness index
//	<prefix>:rt:<id>        zset   refresh-token digests scored by expiry (ms)
//
// Every multi-key mutation runs as a Lua script so the email index, the
// version check and the session family stay consistent under concurrency.
package redisstore
