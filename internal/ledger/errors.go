package ledger

import (
	"errors"
	"fmt"
)

// Root error taxonomy. Services wrap these so callers can branch with
// errors.Is regardless of which layer failed.
var (
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSizeOverflow     = errors.New("size overflow")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrConflict         = errors.New("conflict")
)

var (
	ErrWrongOwner  = fmt.Errorf("slot owned by another program: %w", ErrUnauthorized)
	ErrInvokeDepth = errors.New("ledger: invocation depth exceeded")
	ErrTxDone      = errors.New("ledger: transaction already finished")
)
