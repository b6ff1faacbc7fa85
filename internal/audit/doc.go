// Package audit buffers account security events and delivers them to a
// caller-supplied [Sink] on a single background goroutine.
//
// The engine decides which events to emit. This package only owns buffering
// and delivery: a full buffer either drops the event (counted by
// [Dispatcher.Dropped]) or blocks the caller until space frees up or its
// context ends.
//
// # What this package must NOT do
//
//   - Filter events on business rules.
//   - Import storeauth or any sibling internal package.
//   - Carry secrets. Events hold ids, addresses and error codes only.
package audit
