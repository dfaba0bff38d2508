package push

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// DefaultReconnectDelay separates reconnection attempts.
const DefaultReconnectDelay = 2 * time.Second

// seenCapacity bounds the event id memory used to drop replays.
const seenCapacity = 256

// State is the connection state reported to the status callback.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status describes the subscription's current connection.
type Status struct {
	State     State
	Transport string
	Err       error
}

// Subscription owns the live push connection of one client session. It
// connects with the primary transport and, when that connection attempt
// fails, retries once with the fallback transport. Broken streams are
// reconnected after a delay, starting again from the primary.
type Subscription struct {
	ID             string
	primary        Transport
	fallback       Transport
	reconnectDelay time.Duration
	onStatus       func(Status)
	log            *zap.Logger

	seen     map[string]struct{}
	seenRing []string
}

// Option customizes a Subscription.
type Option func(*Subscription)

// WithFallback sets the transport tried after a primary connect error.
func WithFallback(t Transport) Option {
	return func(s *Subscription) { s.fallback = t }
}

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Subscription) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithStatus registers a callback for connection state changes.
func WithStatus(fn func(Status)) Option {
	return func(s *Subscription) { s.onStatus = fn }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Subscription) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSubscription creates a subscription on primary.
func NewSubscription(primary Transport, opts ...Option) *Subscription {
	s := &Subscription{
		ID:             uuid.NewString(),
		primary:        primary,
		reconnectDelay: DefaultReconnectDelay,
		onStatus:       func(Status) {},
		log:            zap.NewNop(),
		seen:           make(map[string]struct{}, seenCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("subscription", s.ID))
	return s
}

// Run delivers events to handle until ctx is done. It only returns
// ctx.Err().
func (s *Subscription) Run(ctx context.Context, handle func(model.PushEvent)) error {
	for {
		stream, name, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("push connect failed", zap.Error(err))
			s.onStatus(Status{State: StateDisconnected, Err: err})
		} else {
			s.onStatus(Status{State: StateConnected, Transport: name})
			err = s.consume(ctx, stream, handle)
			stream.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Info("push stream ended", zap.String("transport", name), zap.Error(err))
			s.onStatus(Status{State: StateDisconnected, Transport: name, Err: err})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// connect tries the primary transport, then the fallback once.
func (s *Subscription) connect(ctx context.Context) (Stream, string, error) {
	s.onStatus(Status{State: StateConnecting, Transport: s.primary.Name()})

	stream, err := s.primary.Connect(ctx)
	if err == nil {
		return stream, s.primary.Name(), nil
	}
	if s.fallback == nil || ctx.Err() != nil {
		return nil, "", err
	}

	s.log.Info("primary transport failed, trying fallback",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)
	s.onStatus(Status{State: StateConnecting, Transport: s.fallback.Name()})

	stream, ferr := s.fallback.Connect(ctx)
	if ferr != nil {
		return nil, "", errors.Join(err, ferr)
	}
	return stream, s.fallback.Name(), nil
}

func (s *Subscription) consume(ctx context.Context, stream Stream, handle func(model.PushEvent)) error {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if s.replayed(ev.ID) {
			continue
		}
		handle(ev)
	}
}

// replayed remembers the last seenCapacity event ids and reports whether id
// was already delivered. Events without an id are never considered replays.
func (s *Subscription) replayed(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return true
	}

	if len(s.seenRing) >= seenCapacity {
		oldest := s.seenRing[0]
		s.seenRing = s.seenRing[1:]
		delete(s.seen, oldest)
	}
	s.seenRing = append(s.seenRing, id)
	s.seen[id] = struct{}{}
	return false
}
