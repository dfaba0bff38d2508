package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// NATSTransport subscribes to the user's notification subject.
type NATSTransport struct {
	url    string
	userID int64
	log    *zap.Logger
}

// NewNATSTransport creates a NATS transport for userID.
func NewNATSTransport(url string, userID int64, log *zap.Logger) *NATSTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSTransport{url: url, userID: userID, log: log.Named("nats")}
}

func (t *NATSTransport) Name() string { return "nats" }

// Connect opens a NATS connection and subscribes to Subject(userID).
func (t *NATSTransport) Connect(ctx context.Context) (Stream, error) {
	timeout := 3 * time.Second
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) > 0 {
		timeout = time.Until(dl)
	}

	nc, err := nats.Connect(t.url,
		nats.Name("treasury-notify"),
		nats.Timeout(timeout),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", t.url, err)
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(Subject(t.userID), msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", Subject(t.userID), err)
	}

	events := make(chan model.PushEvent, 16)
	errs := make(chan error, 1)
	stream := newChanStream(events, errs, func() error {
		err := sub.Unsubscribe()
		nc.Close()
		return err
	})

	closed := make(chan struct{})
	nc.SetClosedHandler(func(*nats.Conn) { close(closed) })

	go func() {
		defer close(events)
		for {
			select {
			case <-stream.done:
				return
			case <-closed:
				errs <- errors.New("nats connection closed")
				return
			case msg := <-msgs:
				ev, ok := t.decode(msg.Data)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				case <-stream.done:
					return
				}
			}
		}
	}()

	return stream, nil
}

func (t *NATSTransport) decode(data []byte) (model.PushEvent, bool) {
	var ev model.PushEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.log.Warn("malformed event", zap.Error(err))
		return model.PushEvent{}, false
	}
	return ev, true
}
