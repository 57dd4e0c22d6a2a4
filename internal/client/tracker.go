package client

import "sync"

// Tracker assigns request ids and maps in-flight ids back to their
// originating method. Ids start at 1, increase monotonically, and are
// never reused for the lifetime of a tracker.
//
// Cancellation is lazy: Cancel only marks ids, and the bookkeeping is
// removed on the next Take. A cancelled id takes precedence over a
// late-arriving response for the same id.
type Tracker struct {
	mu        sync.Mutex
	nextID    int64
	pending   map[int64]string
	cancelled map[int64]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		pending:   make(map[int64]string),
		cancelled: make(map[int64]struct{}),
	}
}

// Add allocates the next id for a request of the given method.
func (t *Tracker) Add(method string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.pending[t.nextID] = method
	return t.nextID
}

// Take consumes a pending request and returns its method. It fails with
// ErrRequestCancelled (removing the entry) if the id was cancelled, or
// ErrRequestNotFound if the id is unknown.
func (t *Tracker) Take(id int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.cancelled[id]; ok {
		delete(t.cancelled, id)
		delete(t.pending, id)
		return "", ErrRequestCancelled
	}

	method, ok := t.pending[id]
	if !ok {
		return "", ErrRequestNotFound
	}
	delete(t.pending, id)
	return method, nil
}

// FindID returns the id of a live pending request for the given method,
// used to detect an in-flight duplicate worth superseding. Requests
// already marked cancelled are not candidates.
func (t *Tracker) FindID(method string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, m := range t.pending {
		if m != method {
			continue
		}
		if _, cancelled := t.cancelled[id]; cancelled {
			continue
		}
		return id, true
	}
	return 0, false
}

// Cancel marks ids as cancelled without removing them; removal happens
// on the next Take.
func (t *Tracker) Cancel(ids ...int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.cancelled[id] = struct{}{}
	}
}

// PendingCount returns the number of in-flight requests.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
