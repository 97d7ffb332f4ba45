package registry

import (
	"fmt"
	"slices"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/layout"
	"github.com/arcworks/arc/internal/ledger"
)

var (
	discConfig            = layout.Discriminator("RegistryConfig")
	discInstanceAuthority = layout.Discriminator("InstanceAuthority")
	discSchema            = layout.Discriminator("ComponentSchema")
	discRegistration      = layout.Discriminator("ActionBundleRegistration")
)

// Record sizes, discriminator included.
const (
	ConfigSize            = layout.DiscriminatorSize + layout.KeySize + layout.U64Size
	InstanceAuthoritySize = layout.DiscriminatorSize + layout.U64Size + layout.KeySize
	registrationBase      = layout.DiscriminatorSize + layout.KeySize + layout.LenPrefixSize + layout.BoolSize + layout.LenPrefixSize
)

// Config is the registry singleton.
type Config struct {
	CoreDS ledger.Address
	// Components counts registered component schemas.
	Components uint64
}

func (cfg *Config) encode() []byte {
	w := layout.NewRecordWriter(discConfig, ConfigSize)
	w.WriteKey(cfg.CoreDS)
	w.WriteU64(cfg.Components)
	return w.Bytes()
}

func decodeConfig(data []byte) (*Config, error) {
	r, err := layout.NewRecordReader(data, discConfig)
	if err != nil {
		return nil, fmt.Errorf("decode registry config: %w", err)
	}
	cfg := &Config{CoreDS: r.ReadKey(), Components: r.ReadU64()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode registry config: %w", err)
	}
	return cfg, nil
}

// InstanceAuthority names the key allowed to administer one instance.
type InstanceAuthority struct {
	Instance  uint64
	Authority ledger.Address
}

func (ia *InstanceAuthority) encode() []byte {
	w := layout.NewRecordWriter(discInstanceAuthority, InstanceAuthoritySize)
	w.WriteU64(ia.Instance)
	w.WriteKey(ia.Authority)
	return w.Bytes()
}

func decodeInstanceAuthority(data []byte) (*InstanceAuthority, error) {
	r, err := layout.NewRecordReader(data, discInstanceAuthority)
	if err != nil {
		return nil, fmt.Errorf("decode instance authority: %w", err)
	}
	ia := &InstanceAuthority{Instance: r.ReadU64(), Authority: r.ReadKey()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode instance authority: %w", err)
	}
	return ia, nil
}

// ComponentSchema records a registered component kind. Its address is the
// component type.
type ComponentSchema struct {
	Locator string
}

func (cs *ComponentSchema) size() int {
	return layout.DiscriminatorSize + layout.LenPrefixSize + len(cs.Locator)
}

func (cs *ComponentSchema) encode() []byte {
	w := layout.NewRecordWriter(discSchema, cs.size())
	w.WriteString(cs.Locator)
	return w.Bytes()
}

func decodeComponentSchema(data []byte) (*ComponentSchema, error) {
	r, err := layout.NewRecordReader(data, discSchema)
	if err != nil {
		return nil, fmt.Errorf("decode component schema: %w", err)
	}
	cs := &ComponentSchema{Locator: r.ReadString()}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode component schema: %w", err)
	}
	return cs, nil
}

// Registration is the capability grant of one action bundle: which
// instances it may act in, which component types it may touch, and whether
// it may link entities to mints. It only ever grows.
type Registration struct {
	ActionBundle ledger.Address
	Instances    []uint64
	CanMint      bool
	Components   []component.Type
}

// Size is the exact slot size for the current grants.
func (reg *Registration) Size() int {
	return registrationBase + layout.U64Size*len(reg.Instances) + layout.KeySize*len(reg.Components)
}

// HasInstance reports whether instance is granted.
func (reg *Registration) HasInstance(instance uint64) bool {
	for _, i := range reg.Instances {
		if i == instance {
			return true
		}
	}
	return false
}

func (reg *Registration) encode() []byte {
	w := layout.NewRecordWriter(discRegistration, reg.Size())
	w.WriteKey(reg.ActionBundle)
	w.WriteU64Set(reg.Instances)
	w.WriteBool(reg.CanMint)
	component.EncodeTypes(w, reg.Components)
	return w.Bytes()
}

func decodeRegistration(data []byte) (*Registration, error) {
	r, err := layout.NewRecordReader(data, discRegistration)
	if err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	reg := &Registration{
		ActionBundle: r.ReadKey(),
		Instances:    r.ReadU64Set(),
		CanMint:      r.ReadBool(),
	}
	reg.Components = component.DecodeTypes(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return reg, nil
}

func unionInstances(a, b []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(a)+len(b))
	var out []uint64
	for _, v := range append(append([]uint64(nil), a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
