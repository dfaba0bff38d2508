package notify

import (
	"sync"
	"time"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

const (
	// DefaultSuppressionWindow shields a normal delete.
	DefaultSuppressionWindow = 60 * time.Second

	// HighAssuranceWindow shields deletes whose backend propagation is slow.
	HighAssuranceWindow = 5 * time.Minute
)

// Tracker remembers recently deleted notification ids and business keys so
// that concurrent fetches and push events cannot bring them back. Every entry
// expires independently. State is in-memory only.
type Tracker struct {
	mu   sync.Mutex
	ids  map[int64]time.Time
	keys map[model.BusinessKey]time.Time
	now  func() time.Time
}

// NewTracker creates an empty tracker. now may be nil to use time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		ids:  make(map[int64]time.Time),
		keys: make(map[model.BusinessKey]time.Time),
		now:  now,
	}
}

// MarkDeleted suppresses id and, when non-nil, key for window. A later mark
// never shortens an existing entry.
func (t *Tracker) MarkDeleted(id int64, key *model.BusinessKey, window time.Duration) {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	exp := t.now().Add(window)

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.ids[id]; !ok || old.Before(exp) {
		t.ids[id] = exp
	}
	if key != nil {
		if old, ok := t.keys[*key]; !ok || old.Before(exp) {
			t.keys[*key] = exp
		}
	}
}

// IsSuppressed reports whether either identifier is currently tracked.
// Expired entries are evicted on the way.
func (t *Tracker) IsSuppressed(id *int64, key *model.BusinessKey) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if id != nil {
		if exp, ok := t.ids[*id]; ok {
			if now.Before(exp) {
				return true
			}
			delete(t.ids, *id)
		}
	}
	if key != nil {
		if exp, ok := t.keys[*key]; ok {
			if now.Before(exp) {
				return true
			}
			delete(t.keys, *key)
		}
	}
	return false
}

// Suppresses reports whether n is hidden by its id or its business key.
func (t *Tracker) Suppresses(n model.Notification) bool {
	id := n.ID
	key := n.BusinessKey()
	return t.IsSuppressed(&id, &key)
}

// Sweep evicts every expired entry and returns how many are still live.
func (t *Tracker) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, exp := range t.ids {
		if !now.Before(exp) {
			delete(t.ids, id)
		}
	}
	for key, exp := range t.keys {
		if !now.Before(exp) {
			delete(t.keys, key)
		}
	}
	return len(t.ids) + len(t.keys)
}

// RunSweeper evicts expired entries every interval until stop is closed.
func (t *Tracker) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
