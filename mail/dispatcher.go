package mail

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is reported once per enqueued or rejected message.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeFailed
	OutcomeDropped
)

// DispatcherConfig controls queueing. Zero values fall back to defaults.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 15 * time.Second
)

// Dispatcher delivers messages on background workers so a slow relay never
// holds up the request that produced the message. A full queue drops the
// message. Failures are logged and never returned to the enqueuer.
type Dispatcher struct {
	cfg       DispatcherConfig
	sender    Sender
	logger    *slog.Logger
	onOutcome func(Outcome)

	// mu orders Enqueue against Close: a message accepted under the read
	// lock is in ch before Close signals the workers to drain.
	mu      sync.RWMutex
	closed  bool
	ch      chan Message
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithOutcomeHook registers fn to be called after every delivery attempt and
// every drop. fn runs on a worker goroutine.
func WithOutcomeHook(fn func(Outcome)) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.onOutcome = fn
		}
	}
}

// NewDispatcher starts cfg.Workers delivery goroutines.
func NewDispatcher(cfg DispatcherConfig, sender Sender, opts ...DispatcherOption) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	d := &Dispatcher{
		cfg:       cfg,
		sender:    sender,
		logger:    slog.New(slog.DiscardHandler),
		onOutcome: func(Outcome) {},
		ch:        make(chan Message, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "mail")

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Enqueue queues msg for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.ch <- msg:
		return true
	default:
		d.dropped.Add(1)
		d.onOutcome(OutcomeDropped)
		d.logger.Warn("mail queue full, message dropped", "to", msg.To, "subject", msg.Subject)
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.onOutcome(OutcomeFailed)
		d.logger.Error("mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	d.onOutcome(OutcomeSent)
}

// Close stops accepting messages, delivers what is already queued and waits
// for the workers to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped returns how many messages were rejected on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
