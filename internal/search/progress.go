package search

import (
	"fmt"
	"sync"

	"medbrand/searchservice/internal/domain"
)

// Tracker is the observable progress counter for one fan-out. The orchestrator
// owns its mutations for the duration of a search; callers reset it before
// starting a new one. Completed only grows and Errors only appends between
// resets.
//
// Observers are invoked synchronously, in registration order, with a
// snapshot. An observer must not call back into the tracker.
type Tracker struct {
	mu        sync.Mutex
	progress  domain.Progress
	nextID    int
	observers []trackerObserver
}

type trackerObserver struct {
	id int
	fn func(domain.Progress)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetTotal records how many providers are about to be dispatched. Called once
// per search, before dispatch.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Total = total
	t.notifyLocked()
}

// Update marks a provider as the currently active one. With complete=true it
// increments the completed counter; the orchestrator calls it with
// complete=true exactly once per provider. A non-nil err appends a
// "provider: message" line regardless of completion state.
func (t *Tracker) Update(provider string, complete bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.CurrentProvider = provider
	if complete {
		t.progress.Completed++
	}
	if err != nil {
		t.progress.Errors = append(t.progress.Errors, fmt.Sprintf("%s: %s", provider, err.Error()))
	}
	t.notifyLocked()
}

// OnProgress registers an observer and returns its unsubscribe function.
func (t *Tracker) OnProgress(fn func(domain.Progress)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.observers = append(t.observers, trackerObserver{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, observer := range t.observers {
			if observer.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() domain.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Reset returns the tracker to its zero state and notifies observers.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = domain.Progress{}
	t.notifyLocked()
}

func (t *Tracker) snapshotLocked() domain.Progress {
	snapshot := t.progress
	snapshot.Errors = append([]string(nil), t.progress.Errors...)
	return snapshot
}

func (t *Tracker) notifyLocked() {
	if len(t.observers) == 0 {
		return
	}
	snapshot := t.snapshotLocked()
	for _, observer := range t.observers {
		observer.fn(snapshot)
	}
}
