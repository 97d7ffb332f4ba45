package ledger

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultMaxSlotSize = 10 << 20
	DefaultShards      = 64
)

// Config sizes the slot store.
type Config struct {
	MaxSlotSize int
	Shards      int
}

// Record is a committed slot as seen from outside the store.
type Record struct {
	Address Address
	Owner   Address
	Data    []byte
	Version uint64
}

type slot struct {
	owner   Address
	data    []byte
	version uint64
}

type shard struct {
	mu    sync.RWMutex
	slots map[Address]*slot
}

// Store holds committed slots, sharded by address hash. It is only mutated
// through Tx commits and Restore.
type Store struct {
	shards      []*shard
	maxSlotSize int
	seq         atomic.Uint64

	dirtyMu sync.Mutex
	dirty   map[Address]struct{}
}

func NewStore(cfg Config) *Store {
	if cfg.MaxSlotSize <= 0 {
		cfg.MaxSlotSize = DefaultMaxSlotSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	s := &Store{
		shards:      make([]*shard, cfg.Shards),
		maxSlotSize: cfg.MaxSlotSize,
		dirty:       make(map[Address]struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{slots: make(map[Address]*slot)}
	}
	return s
}

// MaxSlotSize is the largest capacity a single slot may have.
func (s *Store) MaxSlotSize() int {
	return s.maxSlotSize
}

func (s *Store) shardIndex(addr Address) int {
	return int(xxhash.Sum64(addr[:]) % uint64(len(s.shards)))
}

func (s *Store) get(addr Address) (slot, bool) {
	sh := s.shards[s.shardIndex(addr)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sl, ok := sh.slots[addr]
	if !ok {
		return slot{}, false
	}
	return slot{owner: sl.owner, data: bytes.Clone(sl.data), version: sl.version}, true
}

// Get returns a copy of the committed slot at addr.
func (s *Store) Get(addr Address) (Record, bool) {
	sl, ok := s.get(addr)
	if !ok {
		return Record{}, false
	}
	return Record{Address: addr, Owner: sl.owner, Data: sl.data, Version: sl.version}, true
}

// Len returns the number of committed slots.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.slots)
		sh.mu.RUnlock()
	}
	return n
}

// Records returns a copy of every committed slot ordered by address.
func (s *Store) Records() []Record {
	var out []Record
	for _, sh := range s.shards {
		sh.mu.RLock()
		for addr, sl := range sh.slots {
			out = append(out, Record{Address: addr, Owner: sl.owner, Data: bytes.Clone(sl.data), Version: sl.version})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Restore replaces the store contents with records, e.g. from a checkpoint.
// The dirty set is cleared.
func (s *Store) Restore(records []Record) {
	s.lockAll()
	defer s.unlockAll()
	for _, sh := range s.shards {
		sh.slots = make(map[Address]*slot)
	}
	var maxVersion uint64
	for _, r := range records {
		sh := s.shards[s.shardIndex(r.Address)]
		sh.slots[r.Address] = &slot{owner: r.Owner, data: bytes.Clone(r.Data), version: r.Version}
		maxVersion = max(maxVersion, r.Version)
	}
	s.seq.Store(maxVersion)

	s.dirtyMu.Lock()
	s.dirty = make(map[Address]struct{})
	s.dirtyMu.Unlock()
}

// TakeDirty returns every slot changed since the last call: current contents
// for live slots, addresses for closed ones. The dirty set is reset. All
// shards are read-locked throughout, so the result holds either all or none
// of each commit's writes.
func (s *Store) TakeDirty() (upserts []Record, deletes []Address) {
	s.rlockAll()
	defer s.runlockAll()

	s.dirtyMu.Lock()
	dirty := s.dirty
	s.dirty = make(map[Address]struct{})
	s.dirtyMu.Unlock()

	for addr := range dirty {
		sl, ok := s.shards[s.shardIndex(addr)].slots[addr]
		if !ok {
			deletes = append(deletes, addr)
			continue
		}
		upserts = append(upserts, Record{Address: addr, Owner: sl.owner, Data: bytes.Clone(sl.data), Version: sl.version})
	}
	return upserts, deletes
}

// MarkDirty puts addresses back into the dirty set, typically after a failed
// checkpoint.
func (s *Store) MarkDirty(addrs []Address) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	for _, a := range addrs {
		s.dirty[a] = struct{}{}
	}
}

// DirtyCount returns the number of slots waiting for a checkpoint.
func (s *Store) DirtyCount() int {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return len(s.dirty)
}

func (s *Store) lockAll() {
	for _, sh := range s.shards {
		sh.mu.Lock()
	}
}

func (s *Store) unlockAll() {
	for _, sh := range s.shards {
		sh.mu.Unlock()
	}
}

func (s *Store) rlockAll() {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
}

func (s *Store) runlockAll() {
	for _, sh := range s.shards {
		sh.mu.RUnlock()
	}
}

// commit validates every version the transaction observed and applies its
// writes. Shards are locked in index order, and the writes are marked dirty
// before any lock is released.
func (s *Store) commit(tx *Tx) error {
	idx := make(map[int]struct{}, len(tx.entries))
	for addr := range tx.entries {
		idx[s.shardIndex(addr)] = struct{}{}
	}
	order := make([]int, 0, len(idx))
	for i := range idx {
		order = append(order, i)
	}
	sort.Ints(order)
	for _, i := range order {
		s.shards[i].mu.Lock()
	}
	defer func() {
		for _, i := range order {
			s.shards[i].mu.Unlock()
		}
	}()

	for addr, e := range tx.entries {
		var current uint64
		if sl, ok := s.shards[s.shardIndex(addr)].slots[addr]; ok {
			current = sl.version
		}
		if current != e.base {
			return conflictError(tx, addr)
		}
	}

	var changed []Address
	for addr, e := range tx.entries {
		if !e.written {
			continue
		}
		sh := s.shards[s.shardIndex(addr)]
		if e.slot == nil {
			delete(sh.slots, addr)
		} else {
			sh.slots[addr] = &slot{
				owner:   e.slot.owner,
				data:    bytes.Clone(e.slot.data),
				version: s.seq.Add(1),
			}
		}
		changed = append(changed, addr)
	}
	s.MarkDirty(changed)
	return nil
}
