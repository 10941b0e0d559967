package store

import (
	"log/slog"
	"sync"

	"github.com/crewbase/crewbase/internal/document"
)

// ChangeType distinguishes delta kinds on the change feed.
type ChangeType int

const (
	// Added: the document did not exist before this transaction.
	Added ChangeType = iota + 1
	// Modified: the document existed and was overwritten.
	Modified
	// Removed: the document was deleted; Record carries its final state.
	Removed
)

// String returns the delta kind for logs.
func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one committed delta on the feed.
type Change struct {
	Type       ChangeType
	Collection string
	Record     document.Record
}

// subscriptionBuffer bounds each watcher's channel. A watcher that
// falls this far behind starts losing deltas (logged); the projector's
// owner is expected to Stop and restart it rather than trail forever.
const subscriptionBuffer = 256

// Subscription is a live feed of committed changes to one collection.
// The owner must call Stop; an abandoned subscription leaks its channel
// and its notifier slot until the store closes.
type Subscription struct {
	// C delivers deltas in commit order. Closed by Stop and by store
	// Close; no delta is delivered after either.
	C <-chan Change

	ch       chan Change
	detach   func()
	stopOnce sync.Once
}

// Stop detaches the subscription and closes C deterministically.
// Safe to call more than once.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		s.detach()
		close(s.ch)
	})
}

// Watch subscribes to committed changes in one collection.
// Deltas arrive after commit, in commit order, stamped with the change
// seq. Filtering is the consumer's concern (see Filter.Match): a
// modified document leaving a filtered set is only visible to a
// consumer that evaluates the filter itself.
func (s *Store) Watch(collection string) *Subscription {
	return s.notifier.subscribe(collection)
}

// notifier fans committed changes out to per-collection subscriptions.
//
// Thread-safety: publish runs on whichever goroutine committed; the
// subscriber map is mutex-guarded. Sends never block - the buffer
// absorbs bursts and overflow drops are logged.
type notifier struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[*Subscription]struct{})}
}

func (n *notifier) subscribe(collection string) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Change, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.detach = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if set, ok := n.subs[collection]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(n.subs, collection)
			}
		}
	}

	if n.closed {
		// Store already closed: hand back an already-stopped feed
		// rather than a channel nobody will ever write to.
		close(ch)
		sub.stopOnce.Do(func() {})
		return sub
	}

	set, ok := n.subs[collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		n.subs[collection] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (n *notifier) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	for _, ch := range changes {
		for sub := range n.subs[ch.Collection] {
			select {
			case sub.ch <- ch:
			default:
				slog.Warn("change feed subscriber overflow, delta dropped",
					"collection", ch.Collection,
					"type", ch.Type.String(),
					"id", ch.Record.ID,
					"seq", ch.Record.Seq,
				)
			}
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, set := range n.subs {
		for sub := range set {
			sub.stopOnce.Do(func() { close(sub.ch) })
		}
	}
	n.subs = nil
}
