// internal/busmem/ram.go
package busmem

import (
	"fmt"
	"sync"
)

// RAM is a word-aligned in-process memory standing in for the host
// simulator's memory subsystem. The device writes through WriteWord; the
// host side (guest program, tests) writes through Poke, which is the only
// path flagged as external to observers.
type RAM struct {
	mu      sync.Mutex
	words   map[uint32]int32
	limit   uint32 // exclusive upper bound, 0 = unbounded
	base    uint32
	obs     map[uint32]map[int]WriteFunc
	nextObs int
}

// NewRAM creates an unbounded RAM.
func NewRAM() *RAM {
	return &RAM{
		words: map[uint32]int32{},
		obs:   map[uint32]map[int]WriteFunc{},
	}
}

// NewBoundedRAM creates a RAM accepting only addresses in [base, base+size).
func NewBoundedRAM(base, size uint32) *RAM {
	r := NewRAM()
	r.base = base
	r.limit = base + size
	return r
}

func (r *RAM) check(addr uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("%w: %#x not word aligned", ErrAddressRange, addr)
	}
	if r.limit != 0 && (addr < r.base || addr >= r.limit) {
		return fmt.Errorf("%w: %#x", ErrAddressRange, addr)
	}
	return nil
}

// WriteWord stores a word and notifies observers as a device-side write.
func (r *RAM) WriteWord(addr uint32, v int32) error {
	return r.write(addr, v, false)
}

// Poke stores a word and notifies observers as an external write. It models
// a store executed by the guest program running on the host simulator.
func (r *RAM) Poke(addr uint32, v int32) error {
	return r.write(addr, v, true)
}

func (r *RAM) write(addr uint32, v int32, external bool) error {
	r.mu.Lock()
	if err := r.check(addr); err != nil {
		r.mu.Unlock()
		return err
	}
	r.words[addr] = v
	var fns []WriteFunc
	for _, fn := range r.obs[addr] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	// Callbacks run outside the lock so an observer may read memory.
	for _, fn := range fns {
		fn(addr, v, external)
	}
	return nil
}

// ReadWord loads a word. Unwritten words read as zero.
func (r *RAM) ReadWord(addr uint32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(addr); err != nil {
		return 0, err
	}
	return r.words[addr], nil
}

// Observe registers fn for writes to addr. The returned cancel removes it.
func (r *RAM) Observe(addr uint32, fn WriteFunc) (cancel func()) {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	if r.obs[addr] == nil {
		r.obs[addr] = map[int]WriteFunc{}
	}
	r.obs[addr][id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.obs[addr], id)
		r.mu.Unlock()
	}
}
