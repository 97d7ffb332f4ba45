package handler

import (
	"errors"
	"fmt"
	"math"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/google/uuid"
)

// Status is the machine-readable outcome carried by S_RESULT.
type Status byte

const (
	StatusOK Status = iota
	StatusAlreadyExists
	StatusNotFound
	StatusUnauthorized
	StatusSizeOverflow
	StatusCapacityExceeded
	StatusConflict
	StatusNotEmpty
	StatusPayloadTooLarge
	StatusInvalidArgument
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusSizeOverflow:
		return "SIZE_OVERFLOW"
	case StatusCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case StatusConflict:
		return "CONFLICT"
	case StatusNotEmpty:
		return "NOT_EMPTY"
	case StatusPayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

// errInvalidRequest marks requests that failed to decode.
var errInvalidRequest = errors.New("invalid request")

// errReplyTooLarge marks replies whose counts do not fit their wire field.
var errReplyTooLarge = errors.New("reply too large")

// checkCount fails if n does not fit in a count field of max.
func checkCount(n, limit int, what string) error {
	if n > limit {
		return fmt.Errorf("%w: %d %s, max %d", errReplyTooLarge, n, what, limit)
	}
	return nil
}

// StatusOf maps an error to its status. Specific errors are checked before
// the ledger sentinels they wrap.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, coreds.ErrNotEmpty):
		return StatusNotEmpty
	case errors.Is(err, component.ErrPayloadTooLarge):
		return StatusPayloadTooLarge
	case errors.Is(err, ledger.ErrAlreadyExists):
		return StatusAlreadyExists
	case errors.Is(err, ledger.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorized):
		return StatusUnauthorized
	case errors.Is(err, ledger.ErrSizeOverflow):
		return StatusSizeOverflow
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return StatusCapacityExceeded
	case errors.Is(err, ledger.ErrConflict):
		return StatusConflict
	case errors.Is(err, errInvalidRequest):
		return StatusInvalidArgument
	default:
		return StatusInternal
	}
}

// sendResult replies with S_RESULT:
// [req D][status C][message S][tx 16 bytes][n C][values S...]
func sendResult(sess *net.Session, req uint32, tx uuid.UUID, err error, values ...string) {
	if err == nil {
		if err = checkCount(len(values), math.MaxUint8, "values"); err != nil {
			values = nil
		}
	}
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_RESULT)
	w.WriteD(req)
	st := StatusOf(err)
	w.WriteC(byte(st))
	if err != nil {
		w.WriteS(err.Error())
	} else {
		w.WriteS("")
	}
	w.WriteBytes(tx[:])
	w.WriteC(byte(len(values)))
	for _, v := range values {
		w.WriteS(v)
	}
	sess.Send(w.Bytes())
}
