package presence

import (
	"sort"
	"sync"
)

// Tracker maintains the set of users currently online. It is purely
// event-driven: only inbound status updates mutate it.
type Tracker struct {
	mu     sync.RWMutex
	online map[int64]struct{}
}

func New() *Tracker {
	return &Tracker{online: make(map[int64]struct{})}
}

// OnStatusUpdate applies an online/offline transition. Redundant
// updates are no-ops.
func (t *Tracker) OnStatusUpdate(userID int64, isOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isOnline {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
}

func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Online returns a sorted snapshot of online user ids.
func (t *Tracker) Online() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset clears the set, used at session teardown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[int64]struct{})
}
