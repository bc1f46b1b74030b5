// internal/config/token.go
package config

import (
	"fmt"
	"strconv"
)

// Test-configuration token: 12 decimal digits, fixed width.
//
// Layout (index ranges, inclusive):
//   0      reserved
//   1-2    test duration, seconds
//   3      cycle count
//   4-7    motor speed, milli-degrees per second
//   8-10   maximum output power, watts
//   11     reserved
//
// The default token "060270009000" decomposes to 60s, 2 cycles,
// 7000 mdeg/s, 900 W (900000 mW).

// TokenLength is the fixed token width.
const TokenLength = 12

// DefaultToken is the sentinel meaning "run with the current defaults".
const DefaultToken = "060270009000"

// Test holds the four runtime test parameters. All fields are positive; a
// Test is only ever produced whole from a valid token (no partial apply).
type Test struct {
	DurationSec       int
	Cycles            int
	MotorSpeedMdegSec int
	MaxPowerMw        int
}

// ParseToken decodes a fixed-width configuration token. Any non-digit
// content, wrong length, or non-positive field rejects the whole token.
func ParseToken(tok string) (Test, error) {
	if len(tok) != TokenLength {
		return Test{}, fmt.Errorf("config token: want %d chars, got %d", TokenLength, len(tok))
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return Test{}, fmt.Errorf("config token: non-digit at position %d", i)
		}
	}

	field := func(lo, hi int) int {
		v, _ := strconv.Atoi(tok[lo:hi]) // digits only, checked above
		return v
	}

	t := Test{
		DurationSec:       field(1, 3),
		Cycles:            field(3, 4),
		MotorSpeedMdegSec: field(4, 8),
		MaxPowerMw:        field(8, 11) * 1000,
	}

	switch {
	case t.DurationSec <= 0:
		return Test{}, fmt.Errorf("config token: test duration must be positive")
	case t.Cycles <= 0:
		return Test{}, fmt.Errorf("config token: cycle count must be positive")
	case t.MotorSpeedMdegSec <= 0:
		return Test{}, fmt.Errorf("config token: motor speed must be positive")
	case t.MaxPowerMw <= 0:
		return Test{}, fmt.Errorf("config token: max power must be positive")
	}

	return t, nil
}

// Token re-encodes the parameters in the fixed-width layout.
func (t Test) Token() string {
	return fmt.Sprintf("0%02d%1d%04d%03d0",
		t.DurationSec, t.Cycles, t.MotorSpeedMdegSec, t.MaxPowerMw/1000)
}

// EncodeResult builds the textual test-result token: the configuration token
// followed by the total duration in ms, a literal 'f', the total charge in
// whole units and the failure count. No other separators.
func EncodeResult(token string, totalDurationMs int64, totalChargeWhole, failures int) string {
	return token + strconv.FormatInt(totalDurationMs, 10) + "f" +
		strconv.Itoa(totalChargeWhole) + strconv.Itoa(failures)
}
