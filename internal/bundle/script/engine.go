// Package script runs action bundles written in Lua. Every script file in
// the scripts directory becomes its own bundle with its own program id and
// signer, so registrations are granted per script. Scripts reach the
// registry through the functions of the global arc table.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arcworks/arc/internal/ledger"
	"github.com/arcworks/arc/internal/registry"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// SeedSigner derives a script's identity from its program id.
const SeedSigner = "script_signer"

var (
	ErrScriptNotFound   = fmt.Errorf("script: %w", ledger.ErrNotFound)
	ErrFunctionNotFound = fmt.Errorf("script function: %w", ledger.ErrNotFound)
	ErrOutsideCall      = errors.New("arc api used outside a call")
)

// ProgramID is the program id of the script called name.
func ProgramID(name string) ledger.Address {
	return ledger.ProgramAddress("script:" + name)
}

// Identity is the key registrations for script name are issued to.
func Identity(name string) ledger.Address {
	return ledger.DeriveAddress(ProgramID(name), []byte(SeedSigner))
}

// call is the state of the script call in progress.
type call struct {
	ctx      *ledger.Context
	signer   ledger.Authority
	identity ledger.Address
	err      error
}

// Engine holds one Lua VM shared by every loaded script. Calls are
// serialised.
type Engine struct {
	mu      sync.Mutex
	vm      *lua.LState
	reg     *registry.Service
	log     *zap.Logger
	scripts map[string]*lua.LTable
	cur     *call
}

// NewEngine creates the VM and loads every .lua file in dir. A missing dir
// yields an engine with no scripts.
func NewEngine(dir string, reg *registry.Service, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, reg: reg, log: log, scripts: make(map[string]*lua.LTable)}
	e.openArc()
	if err := e.loadDir(dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory, one script per file.
func (e *Engine) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if err := e.load(name, path); err != nil {
			return err
		}
	}
	return nil
}

// load runs path in a fresh environment table. Globals it defines become
// the script's callable functions.
func (e *Engine) load(name, path string) error {
	fn, err := e.vm.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	env := e.vm.NewTable()
	mt := e.vm.NewTable()
	mt.RawSetString("__index", e.vm.G.Global)
	e.vm.SetMetatable(env, mt)
	e.vm.SetFEnv(fn, env)

	e.vm.Push(fn)
	if err := e.vm.PCall(0, 0, nil); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	e.scripts[name] = env
	e.log.Debug("Lua 腳本已載入",
		zap.String("script", name),
		zap.String("identity", Identity(name).Short()),
	)
	return nil
}

// Scripts returns the loaded script names in order.
func (e *Engine) Scripts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.scripts))
	for n := range e.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call runs function fn of script name as that script's program. Return
// values are converted to strings. When a registry operation fails the
// error is returned as is, even if the script caught it.
func (e *Engine) Call(ctx *ledger.Context, name, fn string, args ...string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.scripts[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrScriptNotFound)
	}
	lfn, ok := env.RawGetString(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", name, fn, ErrFunctionNotFound)
	}

	var out []string
	err := ctx.Invoke(ProgramID(name), func(c *ledger.Context) error {
		cur := &call{ctx: c, signer: c.Sign([]byte(SeedSigner)), identity: Identity(name)}
		e.cur = cur
		defer func() { e.cur = nil }()

		lArgs := make([]lua.LValue, len(args))
		for i, a := range args {
			lArgs[i] = lua.LString(a)
		}
		top := e.vm.GetTop()
		callErr := e.vm.CallByParam(lua.P{
			Fn:      lfn,
			NRet:    lua.MultRet,
			Protect: true,
		}, lArgs...)
		if cur.err != nil {
			e.vm.SetTop(top)
			return cur.err
		}
		if callErr != nil {
			e.vm.SetTop(top)
			return fmt.Errorf("%s.%s: %w", name, fn, callErr)
		}
		n := e.vm.GetTop() - top
		out = make([]string, n)
		for i := 0; i < n; i++ {
			out[i] = e.vm.Get(top + 1 + i).String()
		}
		e.vm.Pop(n)
		return nil
	})
	if err != nil {
		e.log.Warn("Lua 腳本呼叫失敗",
			zap.String("script", name),
			zap.String("func", fn),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
