package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
)

// Publisher forwards push events to an external broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev model.PushEvent) error
	Close() error
}

// NATSPublisher publishes events on push.Subject(userID).
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("treasury-notifyd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(_ context.Context, ev model.PushEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.nc.Publish(push.Subject(ev.UserID), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", push.Subject(ev.UserID), err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}

// RedisPublisher publishes events on push.Channel(userID).
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher connects to the Redis server at addr.
func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return &RedisPublisher{rdb: rdb}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, ev model.PushEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.rdb.Publish(ctx, push.Channel(ev.UserID), data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", push.Channel(ev.UserID), err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
