// internal/status/status.go
package status

// Status word layout. These bit positions define the device protocol and
// MUST NOT be configurable.

// Flags is the device status word published at the status register.
type Flags uint32

const (
	// MotorMoving is set while a commanded panel move is in progress.
	MotorMoving Flags = 1 << 0

	// TestRunning is set while the scripted sun test owns the input.
	TestRunning Flags = 1 << 1
)

// With returns f with b set.
func (f Flags) With(b Flags) Flags { return f | b }

// Without returns f with b cleared.
func (f Flags) Without(b Flags) Flags { return f &^ b }

// Has reports whether every bit of b is set in f.
func (f Flags) Has(b Flags) bool { return f&b == b }

// Word encodes the flags as the 32-bit bus word.
func (f Flags) Word() int32 { return int32(f) }
