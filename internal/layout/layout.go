// Package layout is the byte-exact record codec shared by every stored record.
//
// A record is an 8-byte discriminator followed by its body. Fixed-width
// fields are little-endian; byte strings, strings, maps and sets carry a
// u32 length prefix. Sets and maps are always written in ascending key order
// so that equal values encode identically.
package layout

import "golang.org/x/crypto/sha3"

const (
	DiscriminatorSize = 8
	KeySize           = 32
	LenPrefixSize     = 4
	U64Size           = 8
	BoolSize          = 1
)

// Discriminator derives the 8-byte type tag for a record name.
func Discriminator(name string) [DiscriminatorSize]byte {
	sum := sha3.Sum256([]byte("record:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
