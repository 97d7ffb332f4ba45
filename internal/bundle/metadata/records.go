package metadata

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
	"golang.org/x/crypto/sha3"
)

// Field limits in bytes.
const (
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200
)

// MaxSize is the declared size of the metadata component: two keys, three
// length-prefixed strings at their limits and the mutability flag.
const MaxSize = 2*layout.KeySize +
	3*layout.LenPrefixSize + MaxNameLen + MaxSymbolLen + MaxURILen +
	layout.BoolSize

// configBase is the size of a config with no mapped components.
const configBase = layout.DiscriminatorSize + layout.KeySize + layout.LenPrefixSize

var discConfig = layout.Discriminator("MetadataBundleConfig")

// NameHash is the key under which a component name is mapped.
func NameHash(name string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Config is the bundle singleton: who administers it and which component
// type each hashed component name resolves to.
type Config struct {
	Authority  ledger.Address
	Components map[[32]byte]component.Type
}

// Size is the exact slot size of cfg.
func (cfg *Config) Size() int {
	return configBase + 2*layout.KeySize*len(cfg.Components)
}

// Resolve returns the component type mapped to name.
func (cfg *Config) Resolve(name string) (component.Type, bool) {
	t, ok := cfg.Components[NameHash(name)]
	return t, ok
}

func (cfg *Config) encode() []byte {
	w := layout.NewRecordWriter(discConfig, cfg.Size())
	w.WriteKey(cfg.Authority)
	keys := make([][32]byte, 0, len(cfg.Components))
	for k := range cfg.Components {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	w.WriteU32(uint32(len(keys)))
	for _, k := range keys {
		w.WriteKey(k)
		w.WriteKey(cfg.Components[k])
	}
	return w.Bytes()
}

func decodeConfig(data []byte) (*Config, error) {
	r, err := layout.NewRecordReader(data, discConfig)
	if err != nil {
		return nil, fmt.Errorf("decode metadata config: %w", err)
	}
	cfg := &Config{Authority: r.ReadKey()}
	n := r.Count(2 * layout.KeySize)
	cfg.Components = make(map[[32]byte]component.Type, n)
	for i := 0; i < n; i++ {
		k := r.ReadKey()
		cfg.Components[k] = r.ReadKey()
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode metadata config: %w", err)
	}
	return cfg, nil
}

// Metadata is the payload of the metadata component.
type Metadata struct {
	UpdateAuthority ledger.Address
	Mint            ledger.Address
	Name            string
	Symbol          string
	URI             string
	IsMutable       bool
}

// Validate checks the field limits.
func (m *Metadata) Validate() error {
	for _, f := range []struct {
		field string
		value string
		max   int
	}{
		{"name", m.Name, MaxNameLen},
		{"symbol", m.Symbol, MaxSymbolLen},
		{"uri", m.URI, MaxURILen},
	} {
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s is %d bytes, max %d", ErrInvalidMetadata, f.field, len(f.value), f.max)
		}
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s is not valid utf-8", ErrInvalidMetadata, f.field)
		}
	}
	return nil
}

// Encode serializes m as a component payload.
func (m *Metadata) Encode() []byte {
	w := layout.NewWriter(MaxSize)
	w.WriteKey(m.UpdateAuthority)
	w.WriteKey(m.Mint)
	w.WriteString(m.Name)
	w.WriteString(m.Symbol)
	w.WriteString(m.URI)
	w.WriteBool(m.IsMutable)
	return w.Bytes()
}

// Decode parses a metadata component payload.
func Decode(data []byte) (*Metadata, error) {
	r := layout.NewReader(data)
	m := &Metadata{
		UpdateAuthority: r.ReadKey(),
		Mint:            r.ReadKey(),
		Name:            r.ReadString(),
		Symbol:          r.ReadString(),
		URI:             r.ReadString(),
		IsMutable:       r.ReadBool(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
