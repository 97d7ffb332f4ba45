package script

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/arcworks/arc/internal/component"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/registry"
	lua "github.com/yuin/gopher-lua"
)

// openArc installs the arc table. Addresses cross the boundary as hex
// strings; component payloads as Lua strings.
func (e *Engine) openArc() {
	api := map[string]lua.LGFunction{
		"identity":          e.luaIdentity,
		"payer":             e.luaPayer,
		"instance":          e.luaInstance,
		"registration":      e.luaRegistration,
		"schema":            e.luaSchema,
		"entity":            e.luaEntity,
		"init_entity":       e.luaInitEntity,
		"add_components":    e.luaAddComponents,
		"modify_components": e.luaModifyComponents,
		"remove_components": e.luaRemoveComponents,
		"remove_entity":     e.luaRemoveEntity,
		"mint":              e.luaMint,
	}
	e.vm.SetGlobal("arc", e.vm.SetFuncs(e.vm.NewTable(), api))
}

// active returns the call in progress or raises a Lua error.
func (e *Engine) active(L *lua.LState) *call {
	if e.cur == nil {
		L.RaiseError("%s", ErrOutsideCall.Error())
	}
	return e.cur
}

// fail records err for Call and aborts the script.
func (e *Engine) fail(L *lua.LState, cur *call, err error) int {
	if cur.err == nil {
		cur.err = err
	}
	L.RaiseError("%s", err.Error())
	return 0
}

// --- argument helpers ---

func checkAddress(L *lua.LState, n int) ledger.Address {
	addr, err := ledger.ParseAddress(L.CheckString(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return addr
}

func checkU64(L *lua.LState, n int) uint64 {
	u, err := toU64(L.Get(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return u
}

// toU64 accepts a non-negative integral number or a decimal string.
func toU64(v lua.LValue) (uint64, error) {
	switch v := v.(type) {
	case lua.LNumber:
		if v < 0 || v >= 1<<64 || v != lua.LNumber(uint64(v)) {
			return 0, errors.New("not an unsigned integer")
		}
		return uint64(v), nil
	case lua.LString:
		return strconv.ParseUint(string(v), 10, 64)
	default:
		return 0, errors.New("number expected")
	}
}

// checkComponents reads {[type] = {max_size = n, data = s}} or
// {[type] = s}, where a bare string reserves exactly its length.
func checkComponents(L *lua.LState, n int) component.Set {
	tbl := L.CheckTable(n)
	set := component.Set{}
	tbl.ForEach(func(k, v lua.LValue) {
		t, err := ledger.ParseAddress(lua.LVAsString(k))
		if err != nil {
			L.ArgError(n, fmt.Sprintf("component type: %v", err))
		}
		switch val := v.(type) {
		case lua.LString:
			set[t] = component.Serialized{MaxSize: uint64(len(val)), Data: []byte(val)}
		case *lua.LTable:
			size, err := toU64(val.RawGetString("max_size"))
			if err != nil {
				L.ArgError(n, fmt.Sprintf("max_size: %v", err))
			}
			set[t] = component.Serialized{
				MaxSize: size,
				Data:    []byte(lua.LVAsString(val.RawGetString("data"))),
			}
		default:
			L.ArgError(n, "component must be a string or table")
		}
	})
	return set
}

func checkTypes(L *lua.LState, n int) []component.Type {
	tbl := L.CheckTable(n)
	var types []component.Type
	tbl.ForEach(func(_, v lua.LValue) {
		t, err := ledger.ParseAddress(lua.LVAsString(v))
		if err != nil {
			L.ArgError(n, fmt.Sprintf("component type: %v", err))
		}
		types = append(types, t)
	})
	return types
}

// --- arc.* ---

func (e *Engine) luaIdentity(L *lua.LState) int {
	L.Push(lua.LString(e.active(L).identity.String()))
	return 1
}

func (e *Engine) luaPayer(L *lua.LState) int {
	L.Push(lua.LString(e.active(L).ctx.Payer().String()))
	return 1
}

func (e *Engine) luaInstance(L *lua.LState) int {
	L.Push(lua.LString(registry.InstanceAddress(checkU64(L, 1)).String()))
	return 1
}

// arc.registration(instance) is this script's registration in instance.
func (e *Engine) luaRegistration(L *lua.LState) int {
	cur := e.active(L)
	L.Push(lua.LString(registry.RegistrationAddress(checkAddress(L, 1), cur.identity).String()))
	return 1
}

func (e *Engine) luaSchema(L *lua.LState) int {
	canonical, err := registry.CanonicalLocator(L.CheckString(1), registry.DefaultMaxLocatorLen)
	if err != nil {
		L.ArgError(1, err.Error())
	}
	L.Push(lua.LString(registry.SchemaAddress(canonical).String()))
	return 1
}

// arc.entity(addr) returns {id, instance, components} or nil.
func (e *Engine) luaEntity(L *lua.LState) int {
	cur := e.active(L)
	ent, err := e.reg.Core().Entity(cur.ctx, checkAddress(L, 1))
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	t.RawSetString("id", lua.LNumber(ent.EntityID))
	t.RawSetString("instance", lua.LNumber(ent.Instance))
	comps := L.NewTable()
	for _, typ := range ent.Components.Types() {
		c := ent.Components[typ]
		ct := L.NewTable()
		ct.RawSetString("max_size", lua.LNumber(c.MaxSize))
		ct.RawSetString("data", lua.LString(c.Data))
		comps.RawSetString(typ.String(), ct)
	}
	t.RawSetString("components", comps)
	L.Push(t)
	return 1
}

// arc.init_entity(registration, instance, id, components) -> entity
func (e *Engine) luaInitEntity(L *lua.LState) int {
	cur := e.active(L)
	addr, err := e.reg.InitEntity(cur.ctx, cur.signer, checkAddress(L, 1), checkAddress(L, 2), checkU64(L, 3), checkComponents(L, 4))
	if err != nil {
		return e.fail(L, cur, err)
	}
	L.Push(lua.LString(addr.String()))
	return 1
}

// arc.add_components(registration, entity, components)
func (e *Engine) luaAddComponents(L *lua.LState) int {
	cur := e.active(L)
	set := checkComponents(L, 3)
	entries := make([]component.Entry, 0, len(set))
	for _, t := range set.Types() {
		entries = append(entries, component.Entry{Type: t, Component: set[t]})
	}
	if err := e.reg.AddComponents(cur.ctx, cur.signer, checkAddress(L, 1), checkAddress(L, 2), entries); err != nil {
		return e.fail(L, cur, err)
	}
	return 0
}

// arc.modify_components(registration, entity, {[type] = data})
func (e *Engine) luaModifyComponents(L *lua.LState) int {
	cur := e.active(L)
	tbl := L.CheckTable(3)
	var updates []component.Update
	tbl.ForEach(func(k, v lua.LValue) {
		t, err := ledger.ParseAddress(lua.LVAsString(k))
		if err != nil {
			L.ArgError(3, fmt.Sprintf("component type: %v", err))
		}
		updates = append(updates, component.Update{Type: t, Data: []byte(lua.LVAsString(v))})
	})
	component.SortUpdates(updates)
	if err := e.reg.ModifyComponents(cur.ctx, cur.signer, checkAddress(L, 1), checkAddress(L, 2), updates); err != nil {
		return e.fail(L, cur, err)
	}
	return 0
}

// arc.remove_components(registration, entity, {type, ...}); the payer
// receives the released bytes.
func (e *Engine) luaRemoveComponents(L *lua.LState) int {
	cur := e.active(L)
	err := e.reg.RemoveComponents(cur.ctx, cur.signer, checkAddress(L, 1), cur.ctx.Payer(), checkAddress(L, 2), checkTypes(L, 3))
	if err != nil {
		return e.fail(L, cur, err)
	}
	return 0
}

// arc.remove_entity(registration, entity)
func (e *Engine) luaRemoveEntity(L *lua.LState) int {
	cur := e.active(L)
	if err := e.reg.RemoveEntity(cur.ctx, cur.signer, checkAddress(L, 1), cur.ctx.Payer(), checkAddress(L, 2)); err != nil {
		return e.fail(L, cur, err)
	}
	return 0
}

// arc.mint(registration, entity, mint) -> link
func (e *Engine) luaMint(L *lua.LState) int {
	cur := e.active(L)
	link, err := e.reg.MintARCNFT(cur.ctx, cur.signer, checkAddress(L, 1), checkAddress(L, 2), checkAddress(L, 3))
	if err != nil {
		return e.fail(L, cur, err)
	}
	L.Push(lua.LString(link.String()))
	return 1
}
