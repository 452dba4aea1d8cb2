package auth

import "sync"

// Broadcaster fans session events out to registered listeners. Providers
// embed it to implement Backend.OnSessionChange.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []listenerEntry
}

type listenerEntry struct {
	id uint64
	fn SessionListener
}

// Subscribe registers listener. The returned handle releases it once; later
// calls to Unsubscribe are no-ops.
func (b *Broadcaster) Subscribe(listener SessionListener) Subscription {
	if listener == nil {
		return &subscription{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: listener})
	b.mu.Unlock()

	return &subscription{release: func() { b.remove(id) }}
}

// Publish delivers evt to a snapshot of the current listeners, in
// registration order, outside the lock.
func (b *Broadcaster) Publish(evt SessionEvent) {
	b.mu.RLock()
	snapshot := make([]listenerEntry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(evt)
	}
}

// Len returns the number of live listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// SubscriptionFunc adapts a release function to Subscription. The function
// runs at most once.
func SubscriptionFunc(release func()) Subscription {
	return &subscription{release: release}
}
