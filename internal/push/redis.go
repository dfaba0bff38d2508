package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// RedisTransport subscribes to the user's Redis pub/sub channel.
type RedisTransport struct {
	addr   string
	userID int64
	log    *zap.Logger
}

// NewRedisTransport creates a Redis transport for userID.
func NewRedisTransport(addr string, userID int64, log *zap.Logger) *RedisTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisTransport{addr: addr, userID: userID, log: log.Named("redis")}
}

func (t *RedisTransport) Name() string { return "redis" }

// Connect pings the server and subscribes to Channel(userID).
func (t *RedisTransport) Connect(ctx context.Context) (Stream, error) {
	rdb := redis.NewClient(&redis.Options{Addr: t.addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", t.addr, err)
	}

	sub := rdb.Subscribe(ctx, Channel(t.userID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		rdb.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", Channel(t.userID), err)
	}

	events := make(chan model.PushEvent, 16)
	errs := make(chan error, 1)
	stream := newChanStream(events, errs, func() error {
		err := sub.Close()
		rdb.Close()
		return err
	})

	msgs := sub.Channel()
	go func() {
		defer close(events)
		for {
			select {
			case <-stream.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					errs <- errors.New("redis subscription closed")
					return
				}
				var ev model.PushEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					t.log.Warn("malformed event", zap.Error(err))
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
