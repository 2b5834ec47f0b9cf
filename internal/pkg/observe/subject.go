// internal/pkg/observe/subject.go
package observe

import "sync"

// Listener receives published values
type Listener[T any] func(T)

// Subject is a minimal publish/subscribe hub. Listeners are called
// synchronously, outside the subject lock, in subscription order.
type Subject[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener[T]
	order     []int
}

// Subscribe registers fn and returns a function removing it again
func (s *Subject[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[int]Listener[T])
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Notify delivers v to every current listener
func (s *Subject[T]) Notify(v T) {
	s.mu.Lock()
	fns := make([]Listener[T], 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of listeners
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
