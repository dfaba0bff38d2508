package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// fakeTransport hands out scripted streams.
type fakeTransport struct {
	name       string
	mu         sync.Mutex
	connectErr error
	events     []model.PushEvent
	connects   int
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Connect(_ context.Context) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	ch := make(chan model.PushEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	errs := make(chan error, 1)
	errs <- errors.New("stream drained")
	close(ch)
	return newChanStream(ch, errs, func() error { return nil }), nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func collect(t *testing.T, s *Subscription, want int) []model.PushEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []model.PushEvent
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, func(ev model.PushEvent) {
			mu.Lock()
			got = append(got, ev)
			if len(got) == want {
				cancel()
			}
			mu.Unlock()
		})
		close(done)
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return got
}

func TestSubscriptionFallsBackOnConnectError(t *testing.T) {
	primary := &fakeTransport{name: "websocket", connectErr: errors.New("dial refused")}
	fallback := &fakeTransport{name: "poll", events: []model.PushEvent{
		{ID: "a", Alert: &model.Alert{ID: 1}},
	}}

	var statusMu sync.Mutex
	var statuses []Status
	s := NewSubscription(primary,
		WithFallback(fallback),
		WithReconnectDelay(10*time.Millisecond),
		WithStatus(func(st Status) {
			statusMu.Lock()
			statuses = append(statuses, st)
			statusMu.Unlock()
		}),
	)

	got := collect(t, s, 1)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("events = %+v, want [a]", got)
	}
	if primary.connectCount() < 1 || fallback.connectCount() < 1 {
		t.Errorf("connects primary=%d fallback=%d", primary.connectCount(), fallback.connectCount())
	}

	statusMu.Lock()
	defer statusMu.Unlock()
	connectedOnPoll := false
	for _, st := range statuses {
		if st.State == StateConnected && st.Transport == "poll" {
			connectedOnPoll = true
		}
	}
	if !connectedOnPoll {
		t.Errorf("statuses = %+v, want connected on poll", statuses)
	}
}

func TestSubscriptionDropsReplayedEvents(t *testing.T) {
	primary := &fakeTransport{name: "websocket", events: []model.PushEvent{
		{ID: "a"}, {ID: "b"},
	}}
	s := NewSubscription(primary, WithReconnectDelay(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var got []string
	_ = s.Run(ctx, func(ev model.PushEvent) {
		got = append(got, ev.ID)
	})

	if primary.connectCount() < 2 {
		t.Fatalf("connects = %d, want reconnects", primary.connectCount())
	}
	if len(got) != 2 {
		t.Errorf("delivered %v, want [a b] once", got)
	}
}

func TestSubscriptionStopsOnCancel(t *testing.T) {
	primary := &fakeTransport{name: "websocket", connectErr: errors.New("down")}
	s := NewSubscription(primary, WithReconnectDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(model.PushEvent) {}) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestReplayedCapacity(t *testing.T) {
	s := NewSubscription(&fakeTransport{name: "x"})

	for i := 0; i < seenCapacity+1; i++ {
		s.replayed(fmt.Sprintf("ev-%d", i))
	}
	if len(s.seen) != seenCapacity || len(s.seenRing) != seenCapacity {
		t.Errorf("seen=%d ring=%d, want %d", len(s.seen), len(s.seenRing), seenCapacity)
	}
	if s.replayed("") {
		t.Error("empty id reported as replay")
	}
}

func TestSubjectAndChannel(t *testing.T) {
	if got := Subject(7); got != "treasury.notifications.7" {
		t.Errorf("Subject = %q", got)
	}
	if got := Channel(7); got != "treasury:notifications:7" {
		t.Errorf("Channel = %q", got)
	}
}
