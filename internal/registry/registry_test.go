package registry

import (
	"context"
	"testing"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/coreds"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin         = ledger.HashAddress([]byte("admin"))
	stranger      = ledger.HashAddress([]byte("stranger"))
	bundleProgram = ledger.ProgramAddress("test-bundle")
	bundleKey     = ledger.DeriveAddress(bundleProgram, []byte("bundle"))
	otherProgram  = ledger.ProgramAddress("other-bundle")
	otherKey      = ledger.DeriveAddress(otherProgram, []byte("bundle"))
)

type fixture struct {
	t   *testing.T
	rt  *ledger.Runtime
	reg *Service
}

func newFixture(t *testing.T, policy Policy) *fixture {
	store := ledger.NewStore(ledger.Config{Shards: 8})
	f := &fixture{
		t:   t,
		rt:  ledger.NewRuntime(store, zap.NewNop()),
		reg: New(coreds.New(zap.NewNop()), policy, zap.NewNop()),
	}
	require.NoError(t, f.exec(admin, func(c *ledger.Context) error {
		return f.reg.Initialize(c, coreds.ProgramID)
	}))
	return f
}

func (f *fixture) exec(signer ledger.Address, fn func(c *ledger.Context) error) error {
	_, err := f.rt.Execute(context.Background(), f.t.Name(), []ledger.Address{signer}, fn)
	return err
}

func (f *fixture) view(fn func(c *ledger.Context) error) {
	require.NoError(f.t, f.rt.View(context.Background(), fn))
}

func (f *fixture) createInstance(signer ledger.Address, n uint64) (ledger.Address, error) {
	var addr ledger.Address
	err := f.exec(signer, func(c *ledger.Context) error {
		auth, err := c.Signer(signer)
		if err != nil {
			return err
		}
		addr, err = f.reg.InstanceRegistry(c, auth, n)
		return err
	})
	return addr, err
}

func (f *fixture) instance(n uint64) ledger.Address {
	addr, err := f.createInstance(admin, n)
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) schema(locator string) component.Type {
	var typ component.Type
	require.NoError(f.t, f.exec(admin, func(c *ledger.Context) error {
		var err error
		typ, err = f.reg.RegisterComponentSchema(c, locator)
		return err
	}))
	return typ
}

func (f *fixture) registerBundle(signer, ri, bundle ledger.Address) (ledger.Address, error) {
	var addr ledger.Address
	err := f.exec(signer, func(c *ledger.Context) error {
		auth, err := c.Signer(signer)
		if err != nil {
			return err
		}
		addr, err = f.reg.RegisterActionBundle(c, auth, ri, bundle)
		return err
	})
	return addr, err
}

func (f *fixture) grantComponents(ri, bundle ledger.Address, types ...component.Type) error {
	return f.exec(admin, func(c *ledger.Context) error {
		auth, err := c.Signer(admin)
		if err != nil {
			return err
		}
		_, err = f.reg.GrantComponents(c, auth, ri, bundle, types)
		return err
	})
}

func (f *fixture) grantInstances(ri, bundle ledger.Address, instances ...uint64) error {
	return f.exec(admin, func(c *ledger.Context) error {
		auth, err := c.Signer(admin)
		if err != nil {
			return err
		}
		_, err = f.reg.GrantInstances(c, auth, ri, bundle, instances)
		return err
	})
}

// asBundle runs fn inside program with the authority of its "bundle" key.
func (f *fixture) asBundle(program ledger.Address, fn func(c *ledger.Context, auth ledger.Authority) error) error {
	return f.exec(admin, func(c *ledger.Context) error {
		return c.Invoke(program, func(c *ledger.Context) error {
			return fn(c, c.Sign([]byte("bundle")))
		})
	})
}

func (f *fixture) registration(addr ledger.Address) *Registration {
	var reg *Registration
	f.view(func(c *ledger.Context) error {
		var err error
		reg, err = f.reg.Registration(c, addr)
		return err
	})
	return reg
}

func (f *fixture) entity(addr ledger.Address) *coreds.Entity {
	var e *coreds.Entity
	f.view(func(c *ledger.Context) error {
		var err error
		e, err = f.reg.Core().Entity(c, addr)
		return err
	})
	return e
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, Policy{})
	err := f.exec(admin, func(c *ledger.Context) error {
		return f.reg.Initialize(c, coreds.ProgramID)
	})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	fresh := New(coreds.New(zap.NewNop()), Policy{}, zap.NewNop())
	rt := ledger.NewRuntime(ledger.NewStore(ledger.Config{}), zap.NewNop())
	_, err = rt.Execute(context.Background(), "foreign", nil, func(c *ledger.Context) error {
		return fresh.Initialize(c, ledger.ProgramAddress("not-core"))
	})
	assert.ErrorIs(t, err, ErrCoreMismatch)

	_, err = rt.Execute(context.Background(), "early", []ledger.Address{admin}, func(c *ledger.Context) error {
		auth, _ := c.Signer(admin)
		_, err := fresh.InstanceRegistry(c, auth, 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInstanceRegistry(t *testing.T) {
	f := newFixture(t, Policy{})
	addr, err := f.createInstance(stranger, 7)
	require.NoError(t, err, "instance creation is open by default")
	assert.Equal(t, InstanceAddress(7), addr)

	f.view(func(c *ledger.Context) error {
		ia, err := f.reg.InstanceAuthority(c, InstanceAuthorityAddress(addr))
		require.NoError(t, err)
		assert.Equal(t, &InstanceAuthority{Instance: 7, Authority: stranger}, ia)
		return nil
	})

	_, err = f.createInstance(admin, 7)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	err = f.exec(admin, func(c *ledger.Context) error {
		_, err := f.reg.InstanceRegistry(c, ledger.Authority{}, 8)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestInstanceCreatorsAllowList(t *testing.T) {
	f := newFixture(t, Policy{InstanceCreators: []ledger.Address{admin}})
	_, err := f.createInstance(stranger, 1)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = f.createInstance(admin, 1)
	assert.NoError(t, err)
}

func TestRegisterComponentSchema(t *testing.T) {
	f := newFixture(t, Policy{MaxLocatorLen: 32})
	typ := f.schema("arc://metadata")
	assert.Equal(t, SchemaAddress("arc://metadata"), typ)

	register := func(locator string) error {
		return f.exec(admin, func(c *ledger.Context) error {
			_, err := f.reg.RegisterComponentSchema(c, locator)
			return err
		})
	}
	assert.ErrorIs(t, register("  arc://metadata\n"), ErrDuplicateSchema)
	assert.ErrorIs(t, register("arc://metadata"), ledger.ErrAlreadyExists)

	f.schema("arc://café")
	assert.ErrorIs(t, register("arc://cafe\u0301"), ErrDuplicateSchema, "canonically equal locators collide")

	assert.ErrorIs(t, register(""), ErrInvalidLocator)
	assert.ErrorIs(t, register("arc://this-locator-is-far-too-long"), ErrInvalidLocator)

	f.view(func(c *ledger.Context) error {
		cfg, err := f.reg.Config(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), cfg.Components)
		assert.Equal(t, coreds.ProgramID, cfg.CoreDS)

		cs, err := f.reg.ComponentSchema(c, typ)
		require.NoError(t, err)
		assert.Equal(t, "arc://metadata", cs.Locator)
		return nil
	})
}

func TestRegisterActionBundle(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(7)

	_, err := f.registerBundle(stranger, ri, bundleKey)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	addr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)
	assert.Equal(t, RegistrationAddress(ri, bundleKey), addr)

	reg := f.registration(addr)
	assert.Equal(t, bundleKey, reg.ActionBundle)
	assert.Equal(t, []uint64{7}, reg.Instances)
	assert.True(t, reg.CanMint)
	assert.Empty(t, reg.Components)

	rec, ok := f.rt.Store().Get(addr)
	require.True(t, ok)
	assert.Len(t, rec.Data, reg.Size())

	_, err = f.registerBundle(admin, ri, bundleKey)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestGrantComponentsIsMonotonic(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(1)
	addr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)
	x, y := f.schema("arc://x"), f.schema("arc://y")

	require.NoError(t, f.grantComponents(ri, bundleKey, x))
	require.NoError(t, f.grantComponents(ri, bundleKey, y, x))

	reg := f.registration(addr)
	assert.ElementsMatch(t, []component.Type{x, y}, reg.Components)
	rec, ok := f.rt.Store().Get(addr)
	require.True(t, ok)
	assert.Len(t, rec.Data, reg.Size())

	assert.ErrorIs(t, f.grantComponents(ri, bundleKey, ledger.HashAddress([]byte("unregistered"))), ErrSchemaNotFound)
	assert.ErrorIs(t, f.grantComponents(ri, otherKey, x), ledger.ErrNotFound, "bundle was never registered")
}

func TestGrantInstances(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(1)
	f.instance(2)
	_, err := f.createInstance(stranger, 3)
	require.NoError(t, err)
	addr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)

	require.NoError(t, f.grantInstances(ri, bundleKey, 2, 2))
	assert.Equal(t, []uint64{1, 2}, f.registration(addr).Instances)

	assert.ErrorIs(t, f.grantInstances(ri, bundleKey, 3), ledger.ErrUnauthorized, "instance 3 has another authority")
	assert.ErrorIs(t, f.grantInstances(ri, bundleKey, 4), ledger.ErrNotFound)
	assert.Equal(t, []uint64{1, 2}, f.registration(addr).Instances)
}

func TestInitEntityScenario(t *testing.T) {
	f := newFixture(t, Policy{})
	seven := f.instance(7)
	nine := f.instance(9)
	regAddr, err := f.registerBundle(admin, seven, bundleKey)
	require.NoError(t, err)
	metadata := f.schema("arc://metadata")
	require.NoError(t, f.grantComponents(seven, bundleKey, metadata))

	blob := component.Set{metadata: {MaxSize: 64, Data: []byte("blob")}}
	var entity ledger.Address
	err = f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		var err error
		entity, err = f.reg.InitEntity(c, auth, regAddr, seven, 42, blob)
		return err
	})
	require.NoError(t, err)
	e := f.entity(entity)
	assert.Equal(t, uint64(42), e.EntityID)
	assert.Equal(t, blob, e.Components)

	err = f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		_, err := f.reg.InitEntity(c, auth, regAddr, nine, 42, blob)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = f.asBundle(otherProgram, func(c *ledger.Context, auth ledger.Authority) error {
		_, err := f.reg.InitEntity(c, auth, regAddr, seven, 43, blob)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized, "another bundle cannot use this registration")
}

func TestDenialIsIdempotent(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(1)
	regAddr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)
	a, b := f.schema("arc://a"), f.schema("arc://b")
	require.NoError(t, f.grantComponents(ri, bundleKey, a))

	var entity ledger.Address
	require.NoError(t, f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		var err error
		entity, err = f.reg.InitEntity(c, auth, regAddr, ri, 0, component.Set{a: {MaxSize: 8}})
		return err
	}))

	addB := func(c *ledger.Context, auth ledger.Authority) error {
		return f.reg.AddComponents(c, auth, regAddr, entity, []component.Entry{{Type: b, Component: component.Serialized{MaxSize: 8}}})
	}
	removeB := func(c *ledger.Context, auth ledger.Authority) error {
		return f.reg.RemoveComponents(c, auth, regAddr, admin, entity, []component.Type{b})
	}
	modifyB := func(c *ledger.Context, auth ledger.Authority) error {
		return f.reg.ModifyComponents(c, auth, regAddr, entity, []component.Update{{Type: b, Data: []byte{1}}})
	}
	for attempt := 0; attempt < 3; attempt++ {
		assert.ErrorIs(t, f.asBundle(bundleProgram, addB), ledger.ErrUnauthorized)
		assert.ErrorIs(t, f.asBundle(bundleProgram, removeB), ledger.ErrUnauthorized)
		assert.ErrorIs(t, f.asBundle(bundleProgram, modifyB), ledger.ErrUnauthorized)
	}
	assert.Len(t, f.entity(entity).Components, 1)

	require.NoError(t, f.grantComponents(ri, bundleKey, b))
	require.NoError(t, f.asBundle(bundleProgram, addB))
	require.NoError(t, f.asBundle(bundleProgram, modifyB))
	assert.Equal(t, []byte{1}, f.entity(entity).Components[b].Data)
	require.NoError(t, f.asBundle(bundleProgram, removeB))
}

func TestRemoveEntity(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(1)
	regAddr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)
	otherReg, err := f.registerBundle(admin, ri, otherKey)
	require.NoError(t, err)
	a := f.schema("arc://a")
	require.NoError(t, f.grantComponents(ri, bundleKey, a))

	var entity ledger.Address
	require.NoError(t, f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		var err error
		entity, err = f.reg.InitEntity(c, auth, regAddr, ri, 0, component.Set{a: {MaxSize: 8}})
		return err
	}))

	removeAs := func(program, registration ledger.Address) error {
		return f.asBundle(program, func(c *ledger.Context, auth ledger.Authority) error {
			return f.reg.RemoveEntity(c, auth, registration, admin, entity)
		})
	}
	assert.ErrorIs(t, removeAs(bundleProgram, regAddr), coreds.ErrNotEmpty)

	require.NoError(t, f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		return f.reg.RemoveComponents(c, auth, regAddr, admin, entity, []component.Type{a})
	}))
	assert.ErrorIs(t, removeAs(bundleProgram, otherReg), ledger.ErrUnauthorized, "identity must match the registration")
	require.NoError(t, removeAs(otherProgram, otherReg), "any bundle covering the instance may close an empty entity")

	_, ok := f.rt.Store().Get(entity)
	assert.False(t, ok)
}

func TestMintARCNFT(t *testing.T) {
	f := newFixture(t, Policy{})
	ri := f.instance(1)
	two := f.instance(2)
	regAddr, err := f.registerBundle(admin, ri, bundleKey)
	require.NoError(t, err)
	otherReg, err := f.registerBundle(admin, two, otherKey)
	require.NoError(t, err)
	mint := ledger.HashAddress([]byte("mint"))

	var entity ledger.Address
	require.NoError(t, f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		var err error
		entity, err = f.reg.InitEntity(c, auth, regAddr, ri, 0, nil)
		return err
	}))

	err = f.asBundle(otherProgram, func(c *ledger.Context, auth ledger.Authority) error {
		_, err := f.reg.MintARCNFT(c, auth, otherReg, entity, mint)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	var link ledger.Address
	require.NoError(t, f.asBundle(bundleProgram, func(c *ledger.Context, auth ledger.Authority) error {
		var err error
		link, err = f.reg.MintARCNFT(c, auth, regAddr, entity, mint)
		return err
	}))
	assert.Equal(t, coreds.NFTLinkAddress(mint, entity), link)
}

func TestIsAuthorized(t *testing.T) {
	a, b, c := ledger.HashAddress([]byte("a")), ledger.HashAddress([]byte("b")), ledger.HashAddress([]byte("c"))
	granted := component.Dedup([]component.Type{a, b})
	assert.True(t, IsAuthorized(nil, granted))
	assert.True(t, IsAuthorized([]component.Type{b, a, b}, granted))
	assert.False(t, IsAuthorized([]component.Type{a, c}, granted))
	assert.False(t, IsAuthorized([]component.Type{a}, nil))
}
