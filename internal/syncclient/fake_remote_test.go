package syncclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
)

var baseTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// fakeRemote is an in-memory posts API. Calls can be held on a gate to
// control the order in which they complete.
type fakeRemote struct {
	mu     sync.Mutex
	posts  []store.Post
	nextID int64
	calls  []remote.Op

	// next error per op, consumed by one call
	fail map[remote.Op]error
	// gates keyed by gateKey; a call blocks until its channel is closed
	gates   map[string]chan struct{}
	entered chan string
	// when set, Update returns a post with this id instead of the requested one
	updateReturnsID *store.ID
}

func newFakeRemote(posts ...store.Post) *fakeRemote {
	f := &fakeRemote{
		posts:   append([]store.Post(nil), posts...),
		nextID:  100,
		fail:    make(map[remote.Op]error),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 256),
	}
	return f
}

func gateKey(op remote.Op, arg string) string { return string(op) + ":" + arg }

// hold makes the next call matching (op, arg) block until the returned func runs.
func (f *fakeRemote) hold(op remote.Op, arg string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[gateKey(op, arg)] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *fakeRemote) failNext(op remote.Op, err error) {
	f.mu.Lock()
	f.fail[op] = err
	f.mu.Unlock()
}

func (f *fakeRemote) enter(ctx context.Context, op remote.Op, arg string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	gate := f.gates[gateKey(op, arg)]
	delete(f.gates, gateKey(op, arg))
	err := f.fail[op]
	delete(f.fail, op)
	f.mu.Unlock()

	select {
	case f.entered <- gateKey(op, arg):
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &remote.TransportError{Op: op, URL: "fake", Err: ctx.Err()}
		}
	}
	return err
}

func (f *fakeRemote) indexLocked(id store.ID) int {
	for i, p := range f.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func notFound(op remote.Op, id store.ID) error {
	return &remote.ServerError{Op: op, StatusCode: http.StatusNotFound, Message: fmt.Sprintf("post %s not found", id)}
}

func (f *fakeRemote) List(ctx context.Context) ([]store.Post, error) {
	if err := f.enter(ctx, remote.OpList, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Post(nil), f.posts...), nil
}

func (f *fakeRemote) Create(ctx context.Context, content string) (store.Post, error) {
	if err := f.enter(ctx, remote.OpCreate, content); err != nil {
		return store.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := store.Post{ID: store.NumericID(f.nextID), Content: content, CreatedAt: baseTime.Add(time.Duration(f.nextID) * time.Second)}
	f.posts = append(f.posts, p)
	return p, nil
}

func (f *fakeRemote) Update(ctx context.Context, id store.ID, content string) (store.Post, error) {
	if err := f.enter(ctx, remote.OpUpdate, content); err != nil {
		return store.Post{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return store.Post{}, notFound(remote.OpUpdate, id)
	}
	f.posts[i].Content = content
	p := f.posts[i]
	if f.updateReturnsID != nil {
		p.ID = *f.updateReturnsID
	}
	return p, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id store.ID) error {
	if err := f.enter(ctx, remote.OpDelete, id.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return notFound(remote.OpDelete, id)
	}
	f.posts = append(f.posts[:i:i], f.posts[i+1:]...)
	return nil
}

// setServerPost changes a post behind the client's back.
func (f *fakeRemote) setServerPost(p store.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexLocked(p.ID); i >= 0 {
		f.posts[i] = p
		return
	}
	f.posts = append(f.posts, p)
}
