package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer   = errors.New("layout: short buffer")
	ErrDiscriminator = errors.New("layout: discriminator mismatch")
)

// Reader decodes a record body. The first failed read is sticky: every later
// read returns a zero value and Err reports the original failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewRecordReader checks the leading discriminator and positions the reader
// right after it.
func NewRecordReader(data []byte, d [DiscriminatorSize]byte) (*Reader, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: record of %d bytes", ErrShortBuffer, len(data))
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != d {
		return nil, ErrDiscriminator
	}
	return &Reader{data: data, off: DiscriminatorSize}, nil
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.data)-r.off)
		return false
	}
	return true
}

// ReadU8 reads 1 byte.
func (r *Reader) ReadU8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte; any non-zero value is true.
func (r *Reader) ReadBool() bool {
	return r.ReadU8() != 0
}

// ReadU32 reads 4 bytes as little-endian uint32.
func (r *Reader) ReadU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadU64 reads 8 bytes as little-endian uint64.
func (r *Reader) ReadU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadKey reads a 32-byte key.
func (r *Reader) ReadKey() [KeySize]byte {
	var k [KeySize]byte
	if !r.need(KeySize) {
		return k
	}
	copy(k[:], r.data[r.off:])
	r.off += KeySize
	return k
}

// ReadBytes reads a u32 length prefix and returns a copy of that many bytes.
func (r *Reader) ReadBytes() []byte {
	n := int(r.ReadU32())
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	n := int(r.ReadU32())
	if !r.need(n) {
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// ReadU64Set reads a length-prefixed set of u64 values.
func (r *Reader) ReadU64Set() []uint64 {
	n := int(r.ReadU32())
	if !r.need(n * 8) {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.ReadU64()
	}
	return out
}

// Count reads a u32 element count and checks that at least n*minElem bytes
// remain, so a corrupt prefix cannot trigger a huge allocation.
func (r *Reader) Count(minElem int) int {
	n := int(r.ReadU32())
	if !r.need(n * minElem) {
		return 0
	}
	return n
}

// Err returns the first decode failure, if any.
func (r *Reader) Err() error {
	return r.err
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
