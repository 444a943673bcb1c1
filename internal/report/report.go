// Package report delivers name/value telemetry to the collector.
//
// Delivery is best effort and at most once: each Report opens a channel,
// sends one message and closes it. Callers log failures and move on;
// nothing is retried or queued.
package report

import (
	"strconv"
	"time"
)

// Reporter sends one reading.
type Reporter interface {
	Report(name string, value float64) error
}

// Reading is one name/value pair.
type Reading struct {
	Timestamp time.Time
	Name      string
	Value     float64
}

// FormatValue renders a value with the fewest digits that round-trip.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatDatagram creates the wire form of a reading: "name=value\n".
func FormatDatagram(name string, value float64) []byte {
	b := make([]byte, 0, len(name)+24)
	b = append(b, name...)
	b = append(b, '=')
	b = strconv.AppendFloat(b, value, 'f', -1, 64)
	b = append(b, '\n')
	return b
}

// Stats counts delivery attempts.
type Stats struct {
	Sent      int
	Failed    int
	LastError string
	LastSent  time.Time
}
