// Package syncclient turns user intents into remote posts calls and folds the
// results back into a store.Store.
//
// Reconciliation is pessimistic: the store changes only after the remote call
// returns, and only through one rule per operation kind:
//
//	refresh  store.ReplaceAll(server list)
//	create   store.Append(server post)
//	update   store.ReplaceByID(server post)
//	delete   store.RemoveByID(id)
//
// Concurrent operations reconcile in completion order unless the client is
// built with OrderIssuance.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/pkg/logger"
)

const tracerName = "github.com/d60-Lab/postsync/internal/syncclient"

// Remote is the posts API as seen by the client.
type Remote interface {
	List(ctx context.Context) ([]store.Post, error)
	Create(ctx context.Context, content string) (store.Post, error)
	Update(ctx context.Context, id store.ID, content string) (store.Post, error)
	Delete(ctx context.Context, id store.ID) error
}

// DeletePolicy decides whether a failed DELETE still removes the local post.
type DeletePolicy int

const (
	// DeleteStrict removes the local post only after a 2xx response.
	DeleteStrict DeletePolicy = iota
	// DeleteLenient removes the local post once any HTTP response arrives,
	// whatever its status. Transport failures still leave it in place.
	DeleteLenient
)

// Ordering decides which result wins when operations on one post race.
type Ordering int

const (
	// OrderCompletion applies every result as it arrives; the last to
	// complete wins.
	OrderCompletion Ordering = iota
	// OrderIssuance drops results that were overtaken by a later-issued
	// operation on the same post, or by a later-issued refresh.
	OrderIssuance
)

// ParseDeletePolicy maps "strict" / "lenient" to a DeletePolicy.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch s {
	case "", "strict":
		return DeleteStrict, nil
	case "lenient":
		return DeleteLenient, nil
	}
	return DeleteStrict, fmt.Errorf("unknown delete policy %q", s)
}

// ParseOrdering maps "completion" / "issuance" to an Ordering.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "completion":
		return OrderCompletion, nil
	case "issuance":
		return OrderIssuance, nil
	}
	return OrderCompletion, fmt.Errorf("unknown ordering %q", s)
}

// Option configures a Client.
type Option func(*Client)

func WithDeletePolicy(p DeletePolicy) Option { return func(c *Client) { c.deletePolicy = p } }
func WithOrdering(o Ordering) Option         { return func(c *Client) { c.ordering = o } }
func WithTracer(t trace.Tracer) Option       { return func(c *Client) { c.tracer = t } }

// Client synchronises a store.Store with a Remote.
type Client struct {
	remote       Remote
	store        *store.Store
	deletePolicy DeletePolicy
	ordering     Ordering
	tracer       trace.Tracer

	seq atomic.Uint64

	// mu serialises reconciliation; take it with lock so store listeners run
	// after it is released.
	mu sync.Mutex
	// seq of the newest refresh applied
	refreshFloor uint64
	// seq of the newest operation applied per post (OrderIssuance only)
	applied map[store.ID]uint64

	imu      sync.Mutex
	inflight map[uint64]*Operation
}

// New creates a Client reconciling into st.
func New(r Remote, st *store.Store, opts ...Option) *Client {
	c := &Client{
		remote:   r,
		store:    st,
		applied:  make(map[store.ID]uint64),
		inflight: make(map[uint64]*Operation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Store returns the store the client reconciles into.
func (c *Client) Store() *store.Store { return c.store }

// Refresh replaces the collection with the server's list.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.execute(ctx, RefreshIntent())
	return err
}

// Create posts content (which may be empty) and appends the server's post.
func (c *Client) Create(ctx context.Context, content string) (store.Post, error) {
	return c.execute(ctx, CreateIntent(content))
}

// Update sends new content for id and replaces the local post with the
// server's version.
func (c *Client) Update(ctx context.Context, id store.ID, content string) (store.Post, error) {
	return c.execute(ctx, UpdateIntent(id, content))
}

// Remove deletes id remotely, then locally according to the DeletePolicy.
func (c *Client) Remove(ctx context.Context, id store.ID) error {
	_, err := c.execute(ctx, DeleteIntent(id))
	return err
}

// Submit issues in without waiting for it. ctx bounds only the remote call.
func (c *Client) Submit(ctx context.Context, in Intent) *Operation {
	op := c.issue(in)
	go c.run(ctx, op)
	return op
}

// InFlight lists issued operations that have not finished, oldest first.
func (c *Client) InFlight() []*Operation {
	c.imu.Lock()
	out := make([]*Operation, 0, len(c.inflight))
	for _, op := range c.inflight {
		out = append(out, op)
	}
	c.imu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (c *Client) execute(ctx context.Context, in Intent) (store.Post, error) {
	op := c.issue(in)
	c.run(ctx, op)
	return op.post, op.err
}

func (c *Client) issue(in Intent) *Operation {
	op := newOperation(c.seq.Add(1), in)
	op.start()
	c.imu.Lock()
	c.inflight[op.seq] = op
	c.imu.Unlock()
	return op
}

func (c *Client) run(ctx context.Context, op *Operation) {
	ctx, span := c.tracer.Start(ctx, "posts."+string(op.Intent.Op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("postsync.seq", int64(op.seq))))
	defer span.End()
	if !op.Intent.ID.IsZero() {
		span.SetAttributes(attribute.String("post.id", op.Intent.ID.String()))
	}

	p, err := c.dispatch(ctx, op)

	c.imu.Lock()
	delete(c.inflight, op.seq)
	c.imu.Unlock()

	fields := []zap.Field{
		zap.String("op", string(op.Intent.Op)),
		zap.Uint64("seq", op.seq),
	}
	if !op.Intent.ID.IsZero() {
		fields = append(fields, zap.Stringer("id", op.Intent.ID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("sync operation failed", append(fields, zap.Error(err))...)
		op.finish(p, err)
		return
	}
	logger.Debug("sync operation applied", fields...)
	op.finish(p, nil)
}

func (c *Client) dispatch(ctx context.Context, op *Operation) (store.Post, error) {
	in := op.Intent
	switch in.Op {
	case remote.OpList:
		posts, err := c.remote.List(ctx)
		if err != nil {
			return store.Post{}, newSyncError(in.Op, in.ID, err)
		}
		return store.Post{}, c.applyRefresh(op, posts)

	case remote.OpCreate:
		p, err := c.remote.Create(ctx, in.Content)
		if err != nil {
			return store.Post{}, newSyncError(in.Op, in.ID, err)
		}
		return p, c.applyCreate(op, p)

	case remote.OpUpdate:
		p, err := c.remote.Update(ctx, in.ID, in.Content)
		if err != nil {
			return store.Post{}, newSyncError(in.Op, in.ID, err)
		}
		return p, c.applyUpdate(op, p)

	case remote.OpDelete:
		err := c.remote.Delete(ctx, in.ID)
		if err == nil {
			return store.Post{}, c.applyDelete(op)
		}
		var se *remote.ServerError
		if c.deletePolicy == DeleteLenient && errors.As(err, &se) {
			// the response still counts as "the call returned"
			if applyErr := c.applyDelete(op); applyErr != nil {
				return store.Post{}, applyErr
			}
		}
		return store.Post{}, newSyncError(in.Op, in.ID, err)
	}
	return store.Post{}, fmt.Errorf("unknown operation %q", in.Op)
}

// lock takes c.mu and holds store notifications until c.mu is released.
func (c *Client) lock() (unlock func()) {
	c.mu.Lock()
	release := c.store.Hold()
	return func() {
		c.mu.Unlock()
		release()
	}
}

// stale reports whether a result for id issued at seq was overtaken.
// Caller holds c.mu.
func (c *Client) stale(id store.ID, seq uint64) bool {
	if c.ordering != OrderIssuance {
		return false
	}
	return seq < c.refreshFloor || seq < c.applied[id]
}

func (c *Client) markApplied(id store.ID, seq uint64) {
	if c.ordering == OrderIssuance {
		c.applied[id] = seq
	}
}

func (c *Client) applyRefresh(op *Operation, posts []store.Post) error {
	defer c.lock()()

	if c.ordering != OrderIssuance {
		c.store.ReplaceAll(posts)
		c.refreshFloor = op.seq
		return nil
	}
	if op.seq < c.refreshFloor {
		return newSyncError(op.Intent.Op, op.Intent.ID, ErrSuperseded)
	}

	// Posts touched by operations issued after this refresh keep their local
	// state; everything else takes the server's.
	merged := make([]store.Post, 0, len(posts))
	listed := make(map[store.ID]bool, len(posts))
	for _, p := range posts {
		listed[p.ID] = true
		if c.applied[p.ID] > op.seq {
			if local, ok := c.store.Get(p.ID); ok {
				merged = append(merged, local)
			}
			continue
		}
		merged = append(merged, p)
	}
	for _, local := range c.store.List() {
		if !listed[local.ID] && c.applied[local.ID] > op.seq {
			merged = append(merged, local)
		}
	}
	c.store.ReplaceAll(merged)

	c.refreshFloor = op.seq
	for id, seq := range c.applied {
		if seq <= op.seq {
			delete(c.applied, id)
		}
	}
	return nil
}

func (c *Client) applyCreate(op *Operation, p store.Post) error {
	defer c.lock()()

	if err := c.store.Append(p); err != nil {
		return newSyncError(op.Intent.Op, p.ID, err)
	}
	c.markApplied(p.ID, op.seq)
	return nil
}

func (c *Client) applyUpdate(op *Operation, p store.Post) error {
	defer c.lock()()

	id := op.Intent.ID
	if c.stale(id, op.seq) {
		return newSyncError(op.Intent.Op, id, ErrSuperseded)
	}
	if p.ID != id {
		return newSyncError(op.Intent.Op, id, &remote.MalformedResponseError{
			Op:  op.Intent.Op,
			Err: fmt.Errorf("server returned post %s for update of %s", p.ID, id),
		})
	}
	if err := c.store.ReplaceByID(p); err != nil {
		return newSyncError(op.Intent.Op, id, err)
	}
	c.markApplied(id, op.seq)
	return nil
}

func (c *Client) applyDelete(op *Operation) error {
	defer c.lock()()

	id := op.Intent.ID
	if c.stale(id, op.seq) {
		return newSyncError(op.Intent.Op, id, ErrSuperseded)
	}
	c.store.RemoveByID(id)
	c.markApplied(id, op.seq)
	return nil
}
