package remote

import "fmt"

// Op names a remote posts operation.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// TransportError means the request never produced an HTTP response
// (connection refused, DNS failure, client timeout, ...).
type TransportError struct {
	Op  Op
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError means the server answered with a non-2xx status.
type ServerError struct {
	Op         Op
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API error (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// MalformedResponseError means a 2xx body could not be read as the expected
// post shape.
type MalformedResponseError struct {
	Op   Op
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
