package push

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// Deps carries what the transports need to reach the backend for one user.
type Deps struct {
	BaseURL string
	Token   string
	UserID  int64
	Events  EventLister
	Config  model.PushConfig
	Log     *zap.Logger
}

// NewTransport builds the transport registered under name: websocket, poll,
// nats or redis.
func NewTransport(name string, d Deps) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "websocket", "ws":
		ws, err := NewWebSocketTransport(d.BaseURL, d.Token, d.Log)
		if err != nil {
			return nil, err
		}
		return ws, nil
	case "poll":
		if d.Events == nil {
			return nil, errors.New("poll transport needs an event source")
		}
		return NewPollTransport(d.Events, d.Config.PollInterval(), d.Log), nil
	case "nats":
		return NewNATSTransport(d.Config.NATSURL, d.UserID, d.Log), nil
	case "redis":
		return NewRedisTransport(d.Config.RedisAddr, d.UserID, d.Log), nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", name)
	}
}

// NewSubscriptionFromConfig builds the subscription described by
// d.Config: the primary transport plus an optional fallback.
func NewSubscriptionFromConfig(d Deps, opts ...Option) (*Subscription, error) {
	primary, err := NewTransport(d.Config.Primary, d)
	if err != nil {
		return nil, fmt.Errorf("primary transport: %w", err)
	}

	all := []Option{WithLogger(d.Log)}
	if d.Config.ReconnectDelay() > 0 {
		all = append(all, WithReconnectDelay(d.Config.ReconnectDelay()))
	}
	if fb := d.Config.Fallback; fb != "" && !strings.EqualFold(fb, d.Config.Primary) {
		fallback, err := NewTransport(fb, d)
		if err != nil {
			return nil, fmt.Errorf("fallback transport: %w", err)
		}
		all = append(all, WithFallback(fallback))
	}

	return NewSubscription(primary, append(all, opts...)...), nil
}
