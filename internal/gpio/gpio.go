// Package gpio provides digital pin access behind minimal capability interfaces.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// DigitalInput samples a single logical input level.
type DigitalInput interface {
	// Read returns the logical level of the pin (true = active).
	// Active-low wiring is resolved by the implementation.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// DigitalOutput drives a single logical output level.
type DigitalOutput interface {
	Set(active bool) error
	Close() error
}

// Bias selects the internal pull resistor of an input line.
type Bias string

const (
	BiasNone Bias = "none"
	BiasUp   Bias = "up"
	BiasDown Bias = "down"
)

// InputConfig describes how an input line is requested.
type InputConfig struct {
	Chip      string
	Pin       int
	Bias      Bias
	ActiveLow bool
}

// Pin defaults (BCM numbering). Reed switches close to ground, so the
// counter inputs are pulled up and read active-low.
const (
	DefaultChip     = "gpiochip0"
	DefaultPinCold  = 5
	DefaultPinHot   = 6
	DefaultPinSetup = 13
)
