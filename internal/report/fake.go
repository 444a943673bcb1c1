package report

import "time"

// FakeReporter records readings for test assertions.
type FakeReporter struct {
	// Readings contains every reading that was delivered.
	Readings []Reading

	// Attempts counts Report calls, including failed ones.
	Attempts int

	// ReportError, if set, is returned by Report and nothing is recorded.
	ReportError error
}

// NewFakeReporter creates a FakeReporter for testing.
func NewFakeReporter() *FakeReporter {
	return &FakeReporter{}
}

// Report records the reading.
func (f *FakeReporter) Report(name string, value float64) error {
	f.Attempts++
	if f.ReportError != nil {
		return f.ReportError
	}
	f.Readings = append(f.Readings, Reading{Timestamp: time.Now(), Name: name, Value: value})
	return nil
}

// Sum returns the total of all delivered values for name.
func (f *FakeReporter) Sum(name string) float64 {
	var sum float64
	for _, r := range f.Readings {
		if r.Name == name {
			sum += r.Value
		}
	}
	return sum
}

// Values returns the delivered values for name in order.
func (f *FakeReporter) Values(name string) []float64 {
	var out []float64
	for _, r := range f.Readings {
		if r.Name == name {
			out = append(out, r.Value)
		}
	}
	return out
}

// Stats derives delivery counts from the recorded attempts.
func (f *FakeReporter) Stats() Stats {
	s := Stats{Sent: len(f.Readings), Failed: f.Attempts - len(f.Readings)}
	if f.ReportError != nil {
		s.LastError = f.ReportError.Error()
	}
	if n := len(f.Readings); n > 0 {
		s.LastSent = f.Readings[n-1].Timestamp
	}
	return s
}

// Reset clears recorded readings and errors.
func (f *FakeReporter) Reset() {
	f.Readings = nil
	f.Attempts = 0
	f.ReportError = nil
}
