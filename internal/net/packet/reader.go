package packet

import (
	"encoding/binary"
	"errors"

	"github.com/arcworks/arc/internal/ledger"
)

// ErrTruncated is reported by Reader.Err when a field ran past the payload.
var ErrTruncated = errors.New("packet truncated")

// Reader reads request fields from a frame payload. Byte 0 is always the
// opcode. Reads past the end return zero values and set Err.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) take(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadD reads 4 bytes as little-endian uint32.
func (r *Reader) ReadD() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ReadKey reads a 32-byte address.
func (r *Reader) ReadKey() ledger.Address {
	var a ledger.Address
	copy(a[:], r.take(len(a)))
	return a
}

// ReadS reads a null-terminated UTF-8 string.
func (r *Reader) ReadS() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.err = ErrTruncated
	return ""
}

// ReadBlob reads a u32-length-prefixed byte string.
func (r *Reader) ReadBlob() []byte {
	n := r.ReadD()
	if int64(n) > int64(r.Remaining()) {
		r.err = ErrTruncated
		return nil
	}
	return append([]byte(nil), r.take(int(n))...)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first read error.
func (r *Reader) Err() error { return r.err }
