package notify

import (
	"testing"
	"time"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTrackerSuppressesIDAndKey(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now)

	key := model.AlertKey(42)
	tr.MarkDeleted(5, &key, DefaultSuppressionWindow)

	if !tr.Suppresses(model.Notification{ID: 5}) {
		t.Error("id 5 not suppressed")
	}
	if !tr.Suppresses(withAlert(99, 42)) {
		t.Error("alert 42 not suppressed")
	}
	if tr.Suppresses(withAlert(6, 43)) {
		t.Error("unrelated record suppressed")
	}
	// The id key space is separate from the alert key space.
	if tr.Suppresses(model.Notification{ID: 42}) {
		t.Error("id 42 suppressed by alert key 42")
	}
}

func TestTrackerExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now)

	tr.MarkDeleted(5, nil, DefaultSuppressionWindow)

	clock.Advance(59 * time.Second)
	if !tr.IsSuppressed(ptr(5), nil) {
		t.Fatal("suppression expired early")
	}

	clock.Advance(time.Second)
	if tr.IsSuppressed(ptr(5), nil) {
		t.Fatal("suppression outlived its window")
	}
	if live := tr.Sweep(); live != 0 {
		t.Errorf("Sweep() = %d live entries, want 0", live)
	}
}

func TestTrackerNeverShortens(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now)

	key := model.AlertKey(7)
	tr.MarkDeleted(1, &key, HighAssuranceWindow)
	tr.MarkDeleted(1, &key, DefaultSuppressionWindow)

	clock.Advance(2 * time.Minute)
	if !tr.IsSuppressed(ptr(1), &key) {
		t.Error("high-assurance entry shortened by a later normal delete")
	}

	clock.Advance(3 * time.Minute)
	if tr.IsSuppressed(ptr(1), &key) {
		t.Error("entry outlived the high-assurance window")
	}
}

func TestTrackerSweepKeepsLiveEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now)

	k1, k2 := model.AlertKey(1), model.AlertKey(2)
	tr.MarkDeleted(10, &k1, time.Minute)
	tr.MarkDeleted(20, &k2, 10*time.Minute)

	clock.Advance(5 * time.Minute)
	if live := tr.Sweep(); live != 2 {
		t.Errorf("Sweep() = %d, want 2 (id 20 and alert:2)", live)
	}
}
