package ledger

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

type entry struct {
	base    uint64 // committed version observed on first touch, 0 if absent
	slot    *slot  // working copy, nil if absent or closed
	written bool
}

// Tx is one atomic unit of work. It buffers every slot it touches and
// commits them together, or not at all.
type Tx struct {
	id      uuid.UUID
	store   *Store
	entries map[Address]*entry
	signers map[Address]struct{}
	payer   Address
	events  []any
	storage map[Address]int64
	done    bool
}

func newTx(store *Store, signers []Address) *Tx {
	tx := &Tx{
		id:      uuid.New(),
		store:   store,
		entries: make(map[Address]*entry),
		signers: make(map[Address]struct{}, len(signers)),
		storage: make(map[Address]int64),
	}
	for i, s := range signers {
		if i == 0 {
			tx.payer = s
		}
		tx.signers[s] = struct{}{}
	}
	return tx
}

func (tx *Tx) lookup(addr Address) *entry {
	if e, ok := tx.entries[addr]; ok {
		return e
	}
	e := &entry{}
	if sl, ok := tx.store.get(addr); ok {
		e.base = sl.version
		e.slot = &sl
	}
	tx.entries[addr] = e
	return e
}

func (tx *Tx) charge(addr Address, delta int) {
	if delta == 0 {
		return
	}
	tx.storage[addr] += int64(delta)
}

// Receipt summarises a committed unit of work.
type Receipt struct {
	ID uuid.UUID
	// Storage is the net number of bytes funded (positive) or reclaimed
	// (negative) per address.
	Storage map[Address]int64
	Events  []any
}

func (tx *Tx) receipt() Receipt {
	return Receipt{ID: tx.id, Storage: tx.storage, Events: tx.events}
}

func conflictError(tx *Tx, addr Address) error {
	return fmt.Errorf("%w: slot %s changed during tx %s", ErrConflict, addr.Short(), tx.id)
}

// ResizeOptions controls how a slot's capacity changes.
type ResizeOptions struct {
	// Zero clears newly exposed bytes on growth. Without it, bytes left
	// behind by an earlier shrink may reappear.
	Zero bool
	// Beneficiary receives reclaimed bytes on shrink. Defaults to the payer.
	Beneficiary Address
}

// Context is a program's view of the running transaction. Every nested
// invocation shares the same Tx.
type Context struct {
	tx      *Tx
	program Address
	depth   int
}

// MaxInvokeDepth bounds nested cross-program invocations.
const MaxInvokeDepth = 4

func (c *Context) Program() Address { return c.program }
func (c *Context) TxID() uuid.UUID  { return c.tx.id }

// Payer is the first signer of the transaction; it funds allocations.
func (c *Context) Payer() Address { return c.tx.payer }

// Invoke runs fn as program within the same transaction.
func (c *Context) Invoke(program Address, fn func(*Context) error) error {
	if c.depth >= MaxInvokeDepth {
		return fmt.Errorf("%w: %d", ErrInvokeDepth, c.depth)
	}
	return fn(&Context{tx: c.tx, program: program, depth: c.depth + 1})
}

// Sign issues the capability token for the executing program's derived
// address at seeds.
func (c *Context) Sign(seeds ...[]byte) Authority {
	return Authority{key: DeriveAddress(c.program, seeds...), issuer: c.program, tx: c.tx}
}

// Signer issues the capability token for an external key that signed the
// transaction.
func (c *Context) Signer(key Address) (Authority, error) {
	if _, ok := c.tx.signers[key]; !ok {
		return Authority{}, fmt.Errorf("%w: %s did not sign", ErrUnauthorized, key.Short())
	}
	return Authority{key: key, tx: c.tx}, nil
}

// Verify fails with ErrUnauthorized unless auth was issued in this
// transaction for expected.
func (c *Context) Verify(auth Authority, expected Address) error {
	if auth.tx == nil {
		return fmt.Errorf("%w: missing authority for %s", ErrUnauthorized, expected.Short())
	}
	if auth.tx != c.tx {
		return fmt.Errorf("%w: authority from another transaction", ErrUnauthorized)
	}
	if auth.key != expected {
		return fmt.Errorf("%w: authority %s, want %s", ErrUnauthorized, auth.key.Short(), expected.Short())
	}
	return nil
}

// Exists reports whether a slot is live at addr.
func (c *Context) Exists(addr Address) bool {
	return c.tx.lookup(addr).slot != nil
}

func (c *Context) owned(addr Address, owner Address) (*entry, error) {
	e := c.tx.lookup(addr)
	if e.slot == nil {
		return nil, fmt.Errorf("slot %s: %w", addr.Short(), ErrNotFound)
	}
	if e.slot.owner != owner {
		return nil, fmt.Errorf("slot %s: %w", addr.Short(), ErrWrongOwner)
	}
	return e, nil
}

// Load returns a copy of the slot at addr, which must be owned by owner.
// The copy spans the full capacity.
func (c *Context) Load(addr Address, owner Address) ([]byte, error) {
	e, err := c.owned(addr, owner)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(e.slot.data), nil
}

// Capacity returns the declared capacity of a slot owned by the caller.
func (c *Context) Capacity(addr Address) (int, error) {
	e, err := c.owned(addr, c.program)
	if err != nil {
		return 0, err
	}
	return len(e.slot.data), nil
}

// Allocate creates a zeroed slot owned by the executing program.
func (c *Context) Allocate(addr Address, capacity int) error {
	if capacity < 0 || capacity > c.tx.store.maxSlotSize {
		return fmt.Errorf("%w: allocate %d bytes, max %d", ErrSizeOverflow, capacity, c.tx.store.maxSlotSize)
	}
	e := c.tx.lookup(addr)
	if e.slot != nil {
		return fmt.Errorf("slot %s: %w", addr.Short(), ErrAlreadyExists)
	}
	e.slot = &slot{owner: c.program, data: make([]byte, capacity)}
	e.written = true
	c.tx.charge(c.tx.payer, capacity)
	return nil
}

// Resize changes the capacity of a slot owned by the executing program.
func (c *Context) Resize(addr Address, capacity int, opts ResizeOptions) error {
	if capacity < 0 || capacity > c.tx.store.maxSlotSize {
		return fmt.Errorf("%w: resize to %d bytes, max %d", ErrSizeOverflow, capacity, c.tx.store.maxSlotSize)
	}
	e, err := c.owned(addr, c.program)
	if err != nil {
		return err
	}
	old := len(e.slot.data)
	switch {
	case capacity > old:
		if capacity <= cap(e.slot.data) {
			e.slot.data = e.slot.data[:capacity]
		} else {
			grown := make([]byte, capacity, capacity)
			copy(grown, e.slot.data[:cap(e.slot.data)])
			e.slot.data = grown
		}
		if opts.Zero {
			clear(e.slot.data[old:])
		}
		c.tx.charge(c.tx.payer, capacity-old)
	case capacity < old:
		e.slot.data = e.slot.data[:capacity]
		beneficiary := opts.Beneficiary
		if beneficiary.IsZero() {
			beneficiary = c.tx.payer
		}
		c.tx.charge(beneficiary, capacity-old)
	}
	e.written = true
	return nil
}

// Write copies data to the start of a slot owned by the executing program.
// Bytes past len(data) are left as they are.
func (c *Context) Write(addr Address, data []byte) error {
	e, err := c.owned(addr, c.program)
	if err != nil {
		return err
	}
	if len(data) > len(e.slot.data) {
		return fmt.Errorf("%w: slot %s holds %d bytes, write of %d", ErrCapacityExceeded, addr.Short(), len(e.slot.data), len(data))
	}
	copy(e.slot.data, data)
	e.written = true
	return nil
}

// Close removes a slot owned by the executing program and returns its bytes
// to beneficiary.
func (c *Context) Close(addr Address, beneficiary Address) error {
	e, err := c.owned(addr, c.program)
	if err != nil {
		return err
	}
	c.tx.charge(beneficiary, -len(e.slot.data))
	e.slot = nil
	e.written = true
	return nil
}

// Emit records an event, delivered only if the transaction commits.
func (c *Context) Emit(ev any) {
	c.tx.events = append(c.tx.events, ev)
}

// Authority is an unforgeable capability token proving that a key approved
// the current transaction: either an external signer or a program signing
// for one of its derived addresses. The zero value proves nothing.
type Authority struct {
	key    Address
	issuer Address
	tx     *Tx
}

func (a Authority) Key() Address { return a.key }

// Issuer is the program that signed, or the zero address for external
// signers.
func (a Authority) Issuer() Address { return a.issuer }

func (a Authority) Valid() bool { return a.tx != nil }
