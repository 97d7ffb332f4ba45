package layout

import (
	"encoding/binary"
	"sort"
)

// Writer builds a record body. All multi-byte writes are little-endian and
// variable-length fields carry a u32 length prefix.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// NewRecordWriter starts a record with its 8-byte discriminator.
func NewRecordWriter(d [DiscriminatorSize]byte, sizeHint int) *Writer {
	w := NewWriter(sizeHint)
	w.buf = append(w.buf, d[:]...)
	return w
}

// WriteU8 writes 1 byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte (0 or 1).
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteU32 writes 4 bytes little-endian.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 writes 8 bytes little-endian.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteKey writes a 32-byte key verbatim.
func (w *Writer) WriteKey(k [KeySize]byte) {
	w.buf = append(w.buf, k[:]...)
}

// WriteBytes writes a u32 length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes s like WriteBytes.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteU64Set writes a sorted, length-prefixed set of u64 values.
func (w *Writer) WriteU64Set(vals []uint64) {
	sorted := append([]uint64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	w.WriteU32(uint32(len(sorted)))
	for _, v := range sorted {
		w.WriteU64(v)
	}
}

// Bytes returns the encoded record.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}
