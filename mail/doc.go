// Package mail renders and delivers the OTP emails sent during registration,
// verification resend and password recovery.
//
// [OTPMessage] renders the HTML body from embedded templates. A [Sender]
// delivers one message: [SMTPSender] talks to a relay, [LogSender] writes the
// message to a logger for development. [Dispatcher] moves delivery off the
// request path onto a small worker pool.
//
// Delivery is best effort. Nothing in this package reports a failed send back
// to the operation that produced the message.
package mail
