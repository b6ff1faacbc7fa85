// Package httpapi serves the account endpoints as JSON over HTTP with a
// gorilla/mux router.
//
// Every reply has the shape of storeauth.Response. The refresh token is set
// as an httpOnly cookie and is also returned in the body for clients that
// cannot hold cookies; refresh and logout accept it from either place. The
// access token is only returned in the body.
package httpapi
