//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads a line from actual hardware using the Linux GPIO character device.
type RealInput struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealInput requests the configured line as an input.
func NewRealInput(cfg InputConfig) (*RealInput, error) {
	chip := cfg.Chip
	if chip == "" {
		chip = DefaultChip
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch cfg.Bias {
	case BiasUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, cfg.Pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d on %s: %w", cfg.Pin, chip, err)
	}
	return &RealInput{line: line, pin: cfg.Pin}, nil
}

// Read returns the logical level. Active-low inversion is done by the kernel.
func (r *RealInput) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", r.pin, err)
	}
	return v == 1, nil
}

// Close reconfigures the line to input with pull-down (matching Pi boot
// defaults) before releasing it.
func (r *RealInput) Close() error {
	if r.line == nil {
		return nil
	}
	var errs []error
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", r.pin, err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", r.pin, err))
	}
	r.line = nil
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives a line on actual hardware.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealOutput requests the line as an output, initially inactive.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	if chip == "" {
		chip = DefaultChip
	}
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", pin, chip, err)
	}
	return &RealOutput{line: line, pin: pin}, nil
}

// Set drives the line.
func (o *RealOutput) Set(active bool) error {
	v := 0
	if active {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Close returns the line to an input before releasing it.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		o.line.Close()
		o.line = nil
		return fmt.Errorf("reconfigure pin %d: %w", o.pin, err)
	}
	err := o.line.Close()
	o.line = nil
	return err
}
