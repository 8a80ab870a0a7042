package syncclient

import (
	"context"
	"sync/atomic"

	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
)

// State is the lifecycle of one operation: Idle → Pending → Applied | Failed.
type State int32

const (
	StateIdle State = iota
	StatePending
	StateApplied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Intent is a user action forwarded from the presentation layer.
type Intent struct {
	Op      remote.Op
	ID      store.ID
	Content string
}

func RefreshIntent() Intent                { return Intent{Op: remote.OpList} }
func CreateIntent(content string) Intent   { return Intent{Op: remote.OpCreate, Content: content} }
func DeleteIntent(id store.ID) Intent      { return Intent{Op: remote.OpDelete, ID: id} }
func UpdateIntent(id store.ID, content string) Intent {
	return Intent{Op: remote.OpUpdate, ID: id, Content: content}
}

// Operation tracks one in-flight intent. There is no retry: a Failed
// operation stays failed and the caller issues a new one.
type Operation struct {
	Intent Intent

	seq   uint64
	state atomic.Int32
	done  chan struct{}

	// written once before done is closed
	post store.Post
	err  error
}

func newOperation(seq uint64, in Intent) *Operation {
	return &Operation{Intent: in, seq: seq, done: make(chan struct{})}
}

// Seq is the issue order of the operation within its Client.
func (o *Operation) Seq() uint64 { return o.seq }

func (o *Operation) State() State { return State(o.state.Load()) }

// Done is closed once the operation is Applied or Failed.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation finishes or ctx ends. Giving up on the wait
// does not cancel the operation; its result is still reconciled.
func (o *Operation) Wait(ctx context.Context) (store.Post, error) {
	select {
	case <-o.done:
		return o.post, o.err
	case <-ctx.Done():
		return store.Post{}, ctx.Err()
	}
}

// Result returns the outcome of a finished operation.
func (o *Operation) Result() (store.Post, error) {
	<-o.done
	return o.post, o.err
}

func (o *Operation) start() { o.state.Store(int32(StatePending)) }

func (o *Operation) finish(p store.Post, err error) {
	o.post = p
	o.err = err
	if err != nil {
		o.state.Store(int32(StateFailed))
	} else {
		o.state.Store(int32(StateApplied))
	}
	close(o.done)
}
