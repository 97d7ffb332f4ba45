package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// AddressSize is the width of every address, program id and component type.
const AddressSize = 32

// Address identifies a slot, a program or an external signer.
type Address [AddressSize]byte

// SystemProgram is the program a unit of work starts in before any service
// has been invoked.
var SystemProgram Address

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 hex digits, for log lines.
func (a Address) Short() string {
	return hex.EncodeToString(a[:4])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 64-digit hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("parse address %q: want %d bytes, got %d", s, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// HashAddress hashes arbitrary parts into an address. Useful for stable
// identities in fixtures and tooling.
func HashAddress(parts ...[]byte) Address {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var a Address
	h.Sum(a[:0])
	return a
}

// ProgramAddress returns the well-known id of a named program.
func ProgramAddress(name string) Address {
	return HashAddress([]byte("program:"), []byte(name))
}

// RandomAddress returns a fresh random address.
func RandomAddress() Address {
	var a Address
	if _, err := rand.Read(a[:]); err != nil {
		panic(fmt.Sprintf("ledger: read random address: %v", err))
	}
	return a
}

// DeriveAddress computes the deterministic address owned by program for the
// given seed tuple. Seeds are length-prefixed so that ("ab","c") and
// ("a","bc") never collide.
func DeriveAddress(program Address, seeds ...[]byte) Address {
	h := sha3.New256()
	var n [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte("derived-address"))
	var a Address
	h.Sum(a[:0])
	return a
}

// U64Seed encodes v big-endian for use as a derivation seed.
func U64Seed(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
