// Package jwt mints and verifies the signed access and refresh tokens issued
// for accounts.
//
// Each [Manager] handles one token [Kind]. Access and refresh managers are
// built with different keys, and the "typ" claim is checked on parse, so a
// token of one kind never verifies as the other.
package jwt
