package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Publisher hands envelopes to the transport. Implementations should not block
// for long: a slow publisher only delays its own session's stream.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Resyncer is implemented by publishers that can make clients reload the
// session state after an event was lost.
type Resyncer interface {
	Resync(sessionID string)
}

const (
	publishAttempts   = 3
	defaultRetryDelay = 50 * time.Millisecond
)

// outbox is the ordered event stream of one session. Events are pushed while
// the session lock is held and delivered by a dispatcher goroutine afterwards.
type outbox struct {
	sessionID  string
	pub        Publisher
	logger     zerolog.Logger
	retryDelay time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Envelope
	seq     uint64
	handled uint64
	closed  bool
	stopped bool

	signal chan struct{}
	done   chan struct{}
}

func newOutbox(sessionID string, pub Publisher, logger zerolog.Logger) *outbox {
	o := &outbox{
		sessionID:  sessionID,
		pub:        pub,
		logger:     logger,
		retryDelay: defaultRetryDelay,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(at time.Time, events ...Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	for _, ev := range events {
		o.seq++
		o.pending = append(o.pending, Envelope{SessionID: o.sessionID, Seq: o.seq, At: at, Event: ev})
	}
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) run(ctx context.Context) {
	defer close(o.done)
	defer func() {
		o.mu.Lock()
		o.stopped = true
		o.cond.Broadcast()
		o.mu.Unlock()
	}()

	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		closed := o.closed
		o.mu.Unlock()

		if len(batch) > 0 {
			o.deliver(ctx, batch)
			continue
		}
		if closed {
			return
		}

		select {
		case <-o.signal:
		case <-ctx.Done():
			return
		}
	}
}

func (o *outbox) deliver(ctx context.Context, batch []Envelope) {
	last := batch[len(batch)-1].Seq
	for _, env := range coalesce(batch) {
		o.publish(ctx, env)
	}
	o.mu.Lock()
	o.handled = last
	o.cond.Broadcast()
	o.mu.Unlock()
}

// publish retries events clients cannot do without. When those still fail the
// publisher is asked to resync the session's clients.
func (o *outbox) publish(ctx context.Context, env Envelope) {
	if env.Event.Droppable() || ctx.Err() != nil {
		// a tick is superseded by the next one; a stopped dispatcher gets one try
		if err := o.tryPublish(ctx, env); err != nil {
			o.logger.Debug().Err(err).Str("event", string(env.Event.Type())).Uint64("seq", env.Seq).Msg("event not published")
		}
		return
	}

	attempts := 0
	backoff := retry.WithMaxRetries(publishAttempts-1, retry.NewExponential(o.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := o.tryPublish(ctx, env); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return
	}
	o.logger.Warn().Err(err).Str("event", string(env.Event.Type())).Uint64("seq", env.Seq).Int("attempts", attempts).Msg("publish event failed")
	if r, ok := o.pub.(Resyncer); ok {
		r.Resync(o.sessionID)
	}
}

// tryPublish makes one attempt. A panicking publisher is logged and not retried.
func (o *outbox) tryPublish(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Interface("panic", r).Str("event", string(env.Event.Type())).Msg("publisher panicked")
			err = nil
		}
	}()
	return o.pub.Publish(ctx, env)
}

// flush blocks until every event pushed so far has been handed to the publisher.
func (o *outbox) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	target := o.seq
	for o.handled < target && !o.stopped {
		o.cond.Wait()
	}
}

// close stops accepting events and waits for the dispatcher to drain.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	select {
	case o.signal <- struct{}{}:
	default:
	}
	<-o.done
}

// coalesce drops a droppable event when a later event of the same type is
// already queued behind it. Everything else keeps its order.
func coalesce(batch []Envelope) []Envelope {
	if len(batch) < 2 {
		return batch
	}
	latest := make(map[EventType]int)
	for i, env := range batch {
		if env.Event.Droppable() {
			latest[env.Event.Type()] = i
		}
	}
	out := batch[:0:0]
	for i, env := range batch {
		if env.Event.Droppable() && latest[env.Event.Type()] != i {
			continue
		}
		out = append(out, env)
	}
	return out
}
