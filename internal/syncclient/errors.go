package syncclient

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
)

// ErrSuperseded is the cause of a SyncError when, under OrderIssuance, a
// result arrives after a later-issued operation on the same post was applied.
var ErrSuperseded = errors.New("superseded by a later-issued operation")

// Kind classifies a sync failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindServer
	KindMalformedResponse
	KindDuplicateID
	KindNotFound
	KindSuperseded
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindMalformedResponse:
		return "malformed_response"
	case KindDuplicateID:
		return "duplicate_id"
	case KindNotFound:
		return "not_found"
	case KindSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// SyncError is returned by every failed Client operation.
type SyncError struct {
	Op   remote.Op
	ID   store.ID
	Kind Kind
	Err  error
}

func newSyncError(op remote.Op, id store.ID, err error) *SyncError {
	return &SyncError{Op: op, ID: id, Kind: classify(err), Err: err}
}

func (e *SyncError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.ID, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func classify(err error) Kind {
	var (
		te  *remote.TransportError
		se  *remote.ServerError
		me  *remote.MalformedResponseError
		dup *store.DuplicateIDError
		nf  *store.NotFoundError
	)
	switch {
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &se):
		return KindServer
	case errors.As(err, &me):
		return KindMalformedResponse
	case errors.As(err, &dup):
		return KindDuplicateID
	case errors.As(err, &nf):
		return KindNotFound
	case errors.Is(err, ErrSuperseded):
		return KindSuperseded
	default:
		return KindUnknown
	}
}

// KindOf returns the Kind of a SyncError anywhere in err's chain.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}
