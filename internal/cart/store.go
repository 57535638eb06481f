package cart

import "sync"

// Store holds the single authoritative snapshot for one cart session. It has
// exactly one writer path (Replace, called by the coordinator after a request
// settles) and any number of non-blocking readers.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
	subs []chan struct{}
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the current snapshot, or nil before the first load. The value is
// shared and must be treated as immutable.
func (s *Store) Get() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Replace swaps the stored snapshot wholesale and signals subscribers. The
// snapshot is trusted as-received; each response already encodes the server's
// merged view, so last-write-wins across channels is safe.
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a coalescing signal channel that fires after each Replace.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
