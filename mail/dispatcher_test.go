package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatcherDeliversQueuedMessagesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{}
	var sent atomic.Int32
	d := NewDispatcher(DispatcherConfig{QueueSize: 16, Workers: 2}, sender, WithOutcomeHook(func(o Outcome) {
		if o == OutcomeSent {
			sent.Add(1)
		}
	}))

	for i := 0; i < 10; i++ {
		require.True(t, d.Enqueue(Message{To: "a@x.com", Subject: "s"}))
	}
	d.Close()

	assert.Equal(t, 10, sender.count())
	assert.Equal(t, int32(10), sent.Load())
	assert.False(t, d.Enqueue(Message{To: "a@x.com"}), "closed dispatcher must reject")
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := SenderFunc(func(ctx context.Context, _ Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	var dropped atomic.Int32
	d := NewDispatcher(DispatcherConfig{QueueSize: 1, Workers: 1}, blocking, WithOutcomeHook(func(o Outcome) {
		if o == OutcomeDropped {
			dropped.Add(1)
		}
	}))

	require.True(t, d.Enqueue(Message{To: "first@x.com"}))
	<-started
	require.True(t, d.Enqueue(Message{To: "queued@x.com"}))
	assert.False(t, d.Enqueue(Message{To: "dropped@x.com"}))

	close(release)
	d.Close()

	assert.Equal(t, uint64(1), d.Dropped())
	assert.Equal(t, int32(1), dropped.Load())
}

func TestDispatcherReportsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{err: errors.New("relay down")}
	var failed atomic.Int32
	d := NewDispatcher(DispatcherConfig{QueueSize: 4, Workers: 1, SendTimeout: time.Second}, sender, WithOutcomeHook(func(o Outcome) {
		if o == OutcomeFailed {
			failed.Add(1)
		}
	}))

	require.True(t, d.Enqueue(Message{To: "a@x.com"}))
	d.Close()

	assert.Equal(t, int32(1), failed.Load())
	assert.Equal(t, 0, sender.count())
}

func TestDispatcherDeliversEveryAcceptedMessageRacingClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	for round := 0; round < 50; round++ {
		sender := &recordingSender{}
		d := NewDispatcher(DispatcherConfig{QueueSize: 64, Workers: 2}, sender)

		var (
			wg       sync.WaitGroup
			accepted atomic.Int32
			start    = make(chan struct{})
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 8; j++ {
					if d.Enqueue(Message{To: "a@x.com"}) {
						accepted.Add(1)
					}
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		require.Equal(t, int(accepted.Load()), sender.count(), "round %d", round)
		assert.Zero(t, d.Dropped())
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(DispatcherConfig{}, &recordingSender{})
	d.Close()
	d.Close()
	assert.False(t, d.Enqueue(Message{To: "a@x.com"}))
}

func TestNilDispatcherIsInert(t *testing.T) {
	var d *Dispatcher
	assert.False(t, d.Enqueue(Message{To: "a@x.com"}))
	assert.Zero(t, d.Dropped())
	d.Close()
}
