package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

const (
	wsPath           = "/api/notifications/ws"
	wsHandshake      = 10 * time.Second
	wsWriteWait      = 5 * time.Second
	wsReadBufferSize = 4096
)

// WebSocketTransport streams events from the notification server's websocket
// endpoint.
type WebSocketTransport struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewWebSocketTransport derives the websocket URL from the API base URL.
func NewWebSocketTransport(baseURL, token string, log *zap.Logger) (*WebSocketTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + wsPath)
	if err != nil {
		return nil, fmt.Errorf("parsing websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q for websocket transport", u.Scheme)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WebSocketTransport{
		url:   u.String(),
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: wsHandshake,
			ReadBufferSize:   wsReadBufferSize,
		},
		log: log.Named("ws"),
	}, nil
}

func (t *WebSocketTransport) Name() string { return "websocket" }

// Connect dials the server and starts reading frames.
func (t *WebSocketTransport) Connect(ctx context.Context) (Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.token)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", t.url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", t.url, err)
	}

	events := make(chan model.PushEvent, 16)
	errs := make(chan error, 1)
	stream := newChanStream(events, errs, conn.Close)

	go t.readLoop(conn, stream.done, events, errs)
	return stream, nil
}

// readLoop decodes frames until the connection breaks. It answers pings and
// is the only writer on conn.
func (t *WebSocketTransport) readLoop(
	conn *websocket.Conn,
	done <-chan struct{},
	events chan<- model.PushEvent,
	errs chan<- error,
) {
	defer close(events)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Info("server closed websocket", zap.Error(err))
			}
			errs <- fmt.Errorf("reading websocket: %w", err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			t.log.Warn("malformed frame", zap.ByteString("sample", sample), zap.Error(err))
			continue
		}

		switch frame.Type {
		case FramePing:
			pong, _ := json.Marshal(Frame{Type: FramePong})
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				errs <- fmt.Errorf("answering ping: %w", err)
				return
			}
		case FrameEvent, model.EventNotificationCreated:
			if frame.Event == nil {
				continue
			}
			ev := *frame.Event
			if ev.Type == "" {
				ev.Type = model.EventNotificationCreated
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}
}
