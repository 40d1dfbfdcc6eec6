package repositories

import "sync"

// Notifier fans out table change signals to subscribers.
//
// Each subscription holds at most one pending signal, so bursts of writes coalesce into a
// single wake-up and Notify never blocks a writer.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

type subscription struct {
	tables map[string]struct{}
	ch     chan struct{}
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscription)}
}

// Subscribe returns a channel signalled after writes to any of tables and a func that
// cancels the subscription. With no tables every write signals.
func (n *Notifier) Subscribe(tables ...string) (<-chan struct{}, func()) {
	sub := &subscription{tables: make(map[string]struct{}, len(tables)), ch: make(chan struct{}, 1)}
	for _, t := range tables {
		sub.tables[t] = struct{}{}
	}

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = sub
	n.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Notify signals subscribers watching any of tables.
func (n *Notifier) Notify(tables ...string) {
	if len(tables) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if !sub.matches(tables) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (s *subscription) matches(tables []string) bool {
	if len(s.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}
