package store

import "sync"

// Change is one store change notification.
type Change struct {
	Table string `json:"table"`
	Op    string `json:"op"` // insert | update | delete
	ID    string `json:"id,omitempty"`
}

// notifier fans change notifications out to subscribers. Slow subscribers
// drop notifications rather than blocking writers.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Change)}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release the channel.
func (n *notifier) Subscribe() (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Change, 64)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (n *notifier) publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
