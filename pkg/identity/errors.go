package identity

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidRequest: neither email nor phone number was supplied.
	KindInvalidRequest
	// KindStoreUnavailable: the record store failed or could not be reached.
	KindStoreUnavailable
	// KindNotFound: an update targeted an id that does not exist.
	KindNotFound
	// KindNoPrimaryFound: a cluster without a primary reached the formatter.
	KindNoPrimaryFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindNotFound:
		return "not_found"
	case KindNoPrimaryFound:
		return "no_primary_found"
	default:
		return "unknown"
	}
}

// ErrContactNotFound is returned by stores when Update targets a missing id.
var ErrContactNotFound = errors.New("contact not found")

var ErrMissingIdentifier = errors.New("either email or phoneNumber must be provided")

// Error carries the failure kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// storeError classifies an error returned by a Store. Errors that already carry
// a Kind keep it.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return err
	}
	if errors.Is(err, ErrContactNotFound) {
		return newError(KindNotFound, op, err)
	}
	return newError(KindStoreUnavailable, op, err)
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return identityErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var errListUnsupported = errors.New("store does not support listing contacts")
