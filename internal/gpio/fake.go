package gpio

import "errors"

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Push appends samples to the script.
func (f *FakeInput) Push(samples ...bool) {
	f.Samples = append(f.Samples, samples...)
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the input to the first sample.
func (f *FakeInput) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	Levels []bool
	Closed bool
}

// Set records the level.
func (f *FakeOutput) Set(active bool) error {
	f.Levels = append(f.Levels, active)
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// Level returns the last written level, false if none.
func (f *FakeOutput) Level() bool {
	if len(f.Levels) == 0 {
		return false
	}
	return f.Levels[len(f.Levels)-1]
}
