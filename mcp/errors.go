package mcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies client errors so callers can decide whether an
// operation is worth retrying.
type ErrorKind string

const (
	// KindConnection covers transport establishment and handshake failures.
	KindConnection ErrorKind = "connection"

	// KindTimeout covers deadline expiry while waiting for the server.
	KindTimeout ErrorKind = "timeout"

	// KindResourceClosed means the underlying connection was lost after
	// being established. Calls failing with this kind are safe to retry
	// after reinitializing.
	KindResourceClosed ErrorKind = "resource_closed"

	// KindProtocol covers malformed or unexpected wire payloads.
	KindProtocol ErrorKind = "protocol"
)

// ClientError is the typed error returned by client operations.
type ClientError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mcp %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mcp %s: %s", e.Op, e.Kind)
}

func (e *ClientError) Unwrap() error { return e.Err }

func newClientError(kind ErrorKind, op string, err error) *ClientError {
	return &ClientError{Kind: kind, Op: op, Err: err}
}

// IsResourceClosed reports whether err is a ClientError of the
// resource-closed kind.
func IsResourceClosed(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Kind == KindResourceClosed
}
