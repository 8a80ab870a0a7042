// Package store holds the client's ordered, in-memory copy of the posts
// collection. It is the single source of truth for rendering and knows
// nothing about the network: every mutation here is the result of a remote
// call that already completed.
package store

import (
	"fmt"
	"sync"
)

// DuplicateIDError is returned by Append when the id is already present.
type DuplicateIDError struct {
	ID ID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("post %s already in collection", e.ID)
}

// NotFoundError is returned by ReplaceByID when no post has the id.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("post %s not in collection", e.ID)
}

// Listener receives a snapshot of the collection after each mutation.
type Listener func(posts []Post)

// Store is an insertion-ordered collection of posts, safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	posts []Post

	lmu       sync.Mutex
	listeners map[int]Listener
	nextLID   int
	holds     int
	pending   [][]Post
}

// New creates an empty store.
func New() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// ReplaceAll overwrites the collection with items, keeping their order.
func (s *Store) ReplaceAll(items []Post) {
	s.mu.Lock()
	s.posts = append(make([]Post, 0, len(items)), items...)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Append adds item at the end of the collection.
func (s *Store) Append(item Post) error {
	s.mu.Lock()
	if s.indexLocked(item.ID) >= 0 {
		s.mu.Unlock()
		return &DuplicateIDError{ID: item.ID}
	}
	s.posts = append(s.posts, item)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// ReplaceByID swaps the post with item.ID for item, in place.
// The collection is left untouched and a *NotFoundError returned when the id
// is absent; ReplaceByID never inserts.
func (s *Store) ReplaceByID(item Post) error {
	s.mu.Lock()
	i := s.indexLocked(item.ID)
	if i < 0 {
		s.mu.Unlock()
		return &NotFoundError{ID: item.ID}
	}
	s.posts[i] = item
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// RemoveByID deletes the post with id and reports whether one was removed.
func (s *Store) RemoveByID(id ID) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.posts = append(s.posts[:i:i], s.posts[i+1:]...)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return true
}

// List returns a copy of the collection in order.
func (s *Store) List() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns the post with id.
func (s *Store) Get(id ID) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.posts[i], true
	}
	return Post{}, false
}

// Lookup finds the id of a post whose id prints as text, so ids typed by a
// user match regardless of their wire type.
func (s *Store) Lookup(text string) (ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.posts {
		if s.posts[i].ID.String() == text {
			return s.posts[i].ID, true
		}
	}
	return ID{}, false
}

// Len returns the number of posts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Subscribe registers fn to run after every mutation. Listeners run outside
// the store lock, on the mutating goroutine or, while the store is held, on
// the goroutine that releases the last hold. The returned func unregisters fn.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Hold queues listener notifications until release runs. Callers that mutate
// the store under their own lock release after unlocking, so a listener may
// call back into them.
func (s *Store) Hold() (release func()) {
	s.lmu.Lock()
	s.holds++
	s.lmu.Unlock()

	var once sync.Once
	return func() { once.Do(s.release) }
}

func (s *Store) release() {
	s.lmu.Lock()
	s.holds--
	var pending [][]Post
	if s.holds == 0 {
		pending, s.pending = s.pending, nil
	}
	fns := s.listenersLocked()
	s.lmu.Unlock()

	for _, snap := range pending {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (s *Store) notify(snap []Post) {
	s.lmu.Lock()
	if s.holds > 0 {
		s.pending = append(s.pending, snap)
		s.lmu.Unlock()
		return
	}
	fns := s.listenersLocked()
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) listenersLocked() []Listener {
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (s *Store) indexLocked(id ID) int {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []Post {
	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}
