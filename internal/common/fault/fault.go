package fault

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is(err, fault.ErrParse).
var (
	ErrNotFound  = errors.New("not found")
	ErrParse     = errors.New("parse error")
	ErrTransport = errors.New("transport error")
	ErrConfig    = errors.New("config error")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind   error
	Op     string
	ItemID string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op
	if e.ItemID != "" {
		msg += " [" + e.ItemID + "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

func NotFound(op, itemID string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, ItemID: itemID, Err: err}
}

func Parse(op, itemID string, err error) error {
	return &Error{Kind: ErrParse, Op: op, ItemID: itemID, Err: err}
}

func Transport(op, itemID string, err error) error {
	return &Error{Kind: ErrTransport, Op: op, ItemID: itemID, Err: err}
}

func Config(op string, err error) error {
	return &Error{Kind: ErrConfig, Op: op, Err: err}
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrParse, ErrTransport, ErrConfig} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
