// internal/busmem/busmem.go
package busmem

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Register offsets from the device base address, one 32-bit word each.
const (
	RegPower   uint32 = 0x00 // device->host: output power, mWh
	RegSensors uint32 = 0x20 // device->host: left in [31:16], right in [15:0]
	RegAngle   uint32 = 0x40 // device->host: panel angle, milli-degrees
	RegCommand uint32 = 0x60 // host->device: commanded target angle, milli-degrees
	RegBattery uint32 = 0x80 // device->host: battery level, mAh
	RegStatus  uint32 = 0xE0 // device->host: bit0 motor moving, bit1 test running
)

// ErrAddressRange is returned by a Memory for a word outside its map.
var ErrAddressRange = errors.New("busmem: address out of range")

// ErrNotObservable is returned by Watch when the attached memory cannot
// deliver write notifications.
var ErrNotObservable = errors.New("busmem: memory does not support write observers")

// Memory is the host simulator's memory subsystem, reduced to atomic word
// access. Implementations must make each call atomic with respect to the
// host's own accesses.
type Memory interface {
	WriteWord(addr uint32, v int32) error
	ReadWord(addr uint32) (int32, error)
}

// WriteFunc receives one write notification. external is true only for
// writes originating outside the device (the guest program).
type WriteFunc func(addr uint32, value int32, external bool)

// Observable is a Memory that can notify about writes to a given address.
type Observable interface {
	Memory
	Observe(addr uint32, fn WriteFunc) (cancel func())
}

// Adapter is the device's single gateway to the bus. Every outgoing word
// write is serialized by one mutex so no two register writes interleave.
type Adapter struct {
	base uint32

	mu  sync.Mutex
	mem Memory
}

// NewAdapter creates an adapter for the given MMIO base. No memory is
// attached until Attach.
func NewAdapter(base uint32) *Adapter {
	return &Adapter{base: base}
}

// Attach connects the adapter to a host memory.
func (a *Adapter) Attach(mem Memory) {
	a.mu.Lock()
	a.mem = mem
	a.mu.Unlock()
}

// Detach disconnects the adapter. Publishes become no-ops.
func (a *Adapter) Detach() {
	a.mu.Lock()
	a.mem = nil
	a.mu.Unlock()
}

// Connected reports whether a host memory is attached.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mem != nil
}

// Address resolves a register offset to its absolute bus address.
func (a *Adapter) Address(reg uint32) uint32 {
	return a.base + reg
}

// Publish writes one device register. The device registers are fixed, so a
// rejected address is a defect in the device itself: it is logged and the
// write dropped, never propagated.
func (a *Adapter) Publish(reg uint32, v int32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mem == nil {
		return
	}
	if err := a.mem.WriteWord(a.base+reg, v); err != nil {
		log.Printf("busmem: write fault at %#x: %v", a.base+reg, err)
	}
}

// ReadRegister reads one device register back from the bus.
func (a *Adapter) ReadRegister(reg uint32) (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mem == nil {
		return 0, fmt.Errorf("busmem: read %#x: not attached", a.base+reg)
	}
	return a.mem.ReadWord(a.base + reg)
}

// Watch subscribes fn to writes on one register. The attached memory must be
// Observable. The returned cancel removes the subscription.
func (a *Adapter) Watch(reg uint32, fn WriteFunc) (func(), error) {
	a.mu.Lock()
	mem := a.mem
	a.mu.Unlock()

	om, ok := mem.(Observable)
	if !ok {
		return nil, ErrNotObservable
	}
	return om.Observe(a.base+reg, fn), nil
}
