package chat

import (
	"sync"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
)

// EventType describes a store mutation.
type EventType string

const (
	EventAppend  EventType = "append"
	EventReplace EventType = "replace"
	EventRemove  EventType = "remove"
	EventClear   EventType = "clear"
)

// Event is published to subscribers after every store mutation.
type Event struct {
	Type EventType
	Turn chat.Turn
}

// Store is the ordered in-memory log of turns. It is the single shared mutable
// resource of a session; all writers go through id-keyed functional replace,
// never through indexes or retained references, so a mutation that races a
// Clear degrades to a silent no-op.
type Store struct {
	mu          sync.RWMutex
	turns       []chat.Turn
	subscribers map[int]chan Event
	nextSub     int
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{
		turns:       make([]chat.Turn, 0, 16),
		subscribers: make(map[int]chan Event),
	}
}

// Append adds a turn to the end of the log.
func (s *Store) Append(turn chat.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	s.publish(Event{Type: EventAppend, Turn: turn})
}

// ReplaceByID applies updater to a snapshot of the turn with the given id and
// stores the result wholesale. A missing id is a silent, side-effect-free
// no-op; this is what makes detached sub-tasks safe against a racing Clear.
func (s *Store) ReplaceByID(id string, updater func(chat.Turn) chat.Turn) {
	s.mu.Lock()
	var updated chat.Turn
	found := false
	for i, t := range s.turns {
		if t.ID == id {
			updated = updater(t)
			updated.ID = t.ID
			updated.Sender = t.Sender
			s.turns[i] = updated
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.publish(Event{Type: EventReplace, Turn: updated})
	}
}

// RemoveByID deletes the turn with the given id; missing ids are ignored.
func (s *Store) RemoveByID(id string) {
	s.mu.Lock()
	var removed chat.Turn
	found := false
	for i, t := range s.turns {
		if t.ID == id {
			removed = t
			s.turns = append(s.turns[:i], s.turns[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.publish(Event{Type: EventRemove, Turn: removed})
	}
}

// Get returns the turn with the given id, if present.
func (s *Store) Get(id string) (chat.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.turns {
		if t.ID == id {
			return t, true
		}
	}
	return chat.Turn{}, false
}

// All returns a copy of the ordered log.
func (s *Store) All() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len returns the number of turns in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear empties the log.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = s.turns[:0]
	s.mu.Unlock()

	s.publish(Event{Type: EventClear})
}

// Replace swaps the whole log for the given turns, used when hydrating a
// session from persistence.
func (s *Store) Replace(turns []chat.Turn) {
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)

	s.mu.Lock()
	s.turns = copied
	s.mu.Unlock()

	s.publish(Event{Type: EventClear})
	for _, t := range copied {
		s.publish(Event{Type: EventAppend, Turn: t})
	}
}

// Subscribe registers an observer of store mutations. The returned cancel
// function must be called to release the subscription. Slow subscribers drop
// events rather than blocking writers.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 100)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
