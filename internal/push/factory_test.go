package push

import (
	"testing"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

func TestNewTransport(t *testing.T) {
	d := Deps{
		BaseURL: "http://localhost:8080",
		Token:   "tok",
		UserID:  7,
		Events:  &fakeLister{},
		Config: model.PushConfig{
			NATSURL:   "nats://127.0.0.1:4222",
			RedisAddr: "127.0.0.1:6379",
		},
	}

	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"websocket", "websocket", false},
		{"WS", "websocket", false},
		{"poll", "poll", false},
		{"nats", "nats", false},
		{" redis ", "redis", false},
		{"sse", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.name, d)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransport() error: %v", err)
			}
			if tr.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.wantName)
			}
		})
	}
}

func TestNewTransportRejectsBadBaseURL(t *testing.T) {
	if _, err := NewTransport("websocket", Deps{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for ftp base url")
	}
	if _, err := NewTransport("poll", Deps{}); err == nil {
		t.Error("expected error for poll without an event source")
	}
}

func TestNewSubscriptionFromConfig(t *testing.T) {
	d := Deps{
		BaseURL: "http://localhost:8080",
		Events:  &fakeLister{},
		Config:  model.PushConfig{Primary: "websocket", Fallback: "poll", ReconnectDelayMs: 250},
	}

	s, err := NewSubscriptionFromConfig(d)
	if err != nil {
		t.Fatalf("NewSubscriptionFromConfig() error: %v", err)
	}
	if s.primary.Name() != "websocket" || s.fallback == nil || s.fallback.Name() != "poll" {
		t.Errorf("transports = %v / %v", s.primary, s.fallback)
	}
	if s.reconnectDelay.Milliseconds() != 250 {
		t.Errorf("reconnectDelay = %v, want 250ms", s.reconnectDelay)
	}

	d.Config.Fallback = "websocket"
	s, err = NewSubscriptionFromConfig(d)
	if err != nil {
		t.Fatalf("NewSubscriptionFromConfig() error: %v", err)
	}
	if s.fallback != nil {
		t.Error("fallback equal to primary should be ignored")
	}

	d.Config.Primary = "carrier-pigeon"
	if _, err := NewSubscriptionFromConfig(d); err == nil {
		t.Error("expected error for unknown primary")
	}
}
