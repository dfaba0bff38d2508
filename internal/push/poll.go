package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/api"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 3 * time.Second

// EventLister reads the server's push event buffer.
type EventLister interface {
	Events(ctx context.Context, after int64) (api.EventPage, error)
}

// PollTransport emulates a push stream by polling the events endpoint.
type PollTransport struct {
	client   EventLister
	interval time.Duration
	log      *zap.Logger
}

// NewPollTransport creates a polling transport.
func NewPollTransport(client EventLister, interval time.Duration, log *zap.Logger) *PollTransport {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PollTransport{client: client, interval: interval, log: log.Named("poll")}
}

func (t *PollTransport) Name() string { return "poll" }

// Connect reads the current cursor so only newer events are delivered.
func (t *PollTransport) Connect(ctx context.Context) (Stream, error) {
	page, err := t.client.Events(ctx, -1)
	if err != nil {
		return nil, fmt.Errorf("reading event cursor: %w", err)
	}
	return &pollStream{
		t:      t,
		cursor: page.Cursor,
		done:   make(chan struct{}),
	}, nil
}

type pollStream struct {
	t       *PollTransport
	cursor  int64
	pending []model.PushEvent
	done    chan struct{}
	once    sync.Once
}

// Next is called from a single goroutine, the subscription loop.
func (s *pollStream) Next(ctx context.Context) (model.PushEvent, error) {
	for len(s.pending) == 0 {
		select {
		case <-ctx.Done():
			return model.PushEvent{}, ctx.Err()
		case <-s.done:
			return model.PushEvent{}, ErrStreamClosed
		case <-time.After(s.t.interval):
		}

		page, err := s.t.client.Events(ctx, s.cursor)
		if err != nil {
			return model.PushEvent{}, fmt.Errorf("polling events: %w", err)
		}
		if page.Cursor < s.cursor {
			// The server restarted and its sequence was reset.
			s.t.log.Info("event cursor went backwards", zap.Int64("from", s.cursor), zap.Int64("to", page.Cursor))
		}
		s.cursor = page.Cursor
		s.pending = page.Events
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *pollStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
