package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// ErrStreamClosed is returned by Next once the stream has been closed.
var ErrStreamClosed = errors.New("push stream closed")

// Transport opens live push streams for one user.
type Transport interface {
	// Name identifies the transport in logs and the status bar.
	Name() string

	// Connect opens a stream. A returned error means no event was or will
	// be delivered through this attempt.
	Connect(ctx context.Context) (Stream, error)
}

// Stream is an open push connection.
type Stream interface {
	// Next blocks until the next event arrives, ctx is done or the
	// connection breaks.
	Next(ctx context.Context) (model.PushEvent, error)

	Close() error
}

// Frame types exchanged over the websocket transport.
const (
	FrameEvent = "event"
	FramePing  = "ping"
	FramePong  = "pong"
)

// Frame is the websocket envelope.
type Frame struct {
	Type  string           `json:"type"`
	Event *model.PushEvent `json:"event,omitempty"`
}

// Subject is the NATS subject carrying userID's events.
func Subject(userID int64) string {
	return fmt.Sprintf("treasury.notifications.%d", userID)
}

// Channel is the Redis pub/sub channel carrying userID's events.
func Channel(userID int64) string {
	return fmt.Sprintf("treasury:notifications:%d", userID)
}

// chanStream adapts a channel of events fed by a reader goroutine.
type chanStream struct {
	events <-chan model.PushEvent
	errs   <-chan error
	done   chan struct{}
	once   sync.Once
	close  func() error
}

func newChanStream(events <-chan model.PushEvent, errs <-chan error, closeFn func() error) *chanStream {
	return &chanStream{
		events: events,
		errs:   errs,
		done:   make(chan struct{}),
		close:  closeFn,
	}
}

func (s *chanStream) Next(ctx context.Context) (model.PushEvent, error) {
	select {
	case <-ctx.Done():
		return model.PushEvent{}, ctx.Err()
	case <-s.done:
		return model.PushEvent{}, ErrStreamClosed
	case ev, ok := <-s.events:
		if !ok {
			select {
			case err := <-s.errs:
				return model.PushEvent{}, err
			default:
				return model.PushEvent{}, ErrStreamClosed
			}
		}
		return ev, nil
	}
}

func (s *chanStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.close()
	})
	return err
}
