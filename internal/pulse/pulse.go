// Package pulse counts debounced edges from a reed-switch style meter input.
//
// Process is polled every loop tick and only touches the in-memory tally.
// Run is the report duty: it folds the tally into the persistent counter,
// emits the delta and resets the tally whether or not the send succeeded.
package pulse

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/meter-sensor/internal/counter"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/report"
)

// Edge selects which debounced transition counts as a pulse.
type Edge string

const (
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
)

// ParseEdge validates an edge name. Empty means rising.
func ParseEdge(s string) (Edge, error) {
	switch Edge(s) {
	case "", EdgeRising:
		return EdgeRising, nil
	case EdgeFalling:
		return EdgeFalling, nil
	default:
		return "", fmt.Errorf("unknown edge %q (want rising or falling)", s)
	}
}

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 50 * time.Millisecond

// Config configures one pulse counter.
type Config struct {
	Name     string
	Debounce time.Duration
	Edge     Edge
}

// Counter is a debounced pulse counter. Not safe for concurrent use.
type Counter struct {
	name     string
	edge     Edge
	in       gpio.DigitalInput
	store    *counter.Counter
	reporter report.Reporter
	deb      debouncer

	tally          int64
	accepted       int64
	reported       int64
	reports        int
	reportFailures int
	readErrors     int
	lastDelta      int64
	lastReport     time.Time

	errLog rate.Sometimes
}

// New creates a pulse counter reading in, folding into store and reporting through r.
func New(cfg Config, in gpio.DigitalInput, store *counter.Counter, r report.Reporter) *Counter {
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Edge == "" {
		cfg.Edge = EdgeRising
	}
	return &Counter{
		name:     cfg.Name,
		edge:     cfg.Edge,
		in:       in,
		store:    store,
		reporter: r,
		deb:      newDebouncer(cfg.Debounce),
		errLog:   rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// Name returns the report name.
func (c *Counter) Name() string { return c.name }

// Process samples the input once and counts an accepted edge.
func (c *Counter) Process(now time.Time) {
	level, err := c.in.Read()
	if err != nil {
		c.readErrors++
		c.errLog.Do(func() {
			log.Printf("pulse %s: read error (%d so far): %v", c.name, c.readErrors, err)
		})
		return
	}

	if !c.deb.update(level, now) {
		return
	}
	if (c.edge == EdgeRising) == c.deb.stable {
		c.tally++
		c.accepted++
	}
}

// Run is the report duty.
func (c *Counter) Run(now time.Time) {
	delta := c.tally
	if err := c.store.Add(delta); err != nil {
		// Tally is never negative; keep it for the next cycle if it somehow is.
		log.Printf("pulse %s: fold %d: %v", c.name, delta, err)
		return
	}
	c.tally = 0

	c.reports++
	c.lastDelta = delta
	c.lastReport = now
	c.reported += delta
	if err := c.reporter.Report(c.name, float64(delta)); err != nil {
		c.reportFailures++
		log.Printf("pulse %s: report delta %d dropped: %v", c.name, delta, err)
	}
}

// SetValue overrides the persistent total. The pending tally is untouched.
func (c *Counter) SetValue(v int64) {
	old := c.store.Value()
	c.store.SetValue(v)
	log.Printf("pulse %s: value set %d -> %d", c.name, old, v)
}

// Tally returns pulses counted since the last report.
func (c *Counter) Tally() int64 { return c.tally }

// Total returns the persistent value plus the unreported tally.
func (c *Counter) Total() int64 { return c.store.Value() + c.tally }

// Store returns the backing persistent counter.
func (c *Counter) Store() *counter.Counter { return c.store }

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	Name           string
	Edge           Edge
	Level          bool
	Baselined      bool
	Tally          int64
	Accepted       int64
	Reported       int64
	Reports        int
	ReportFailures int
	ReadErrors     int
	LastDelta      int64
	LastReport     time.Time
	Store          counter.Snapshot
}

// Snapshot returns the current state.
func (c *Counter) Snapshot() Snapshot {
	return Snapshot{
		Name:           c.name,
		Edge:           c.edge,
		Level:          c.deb.stable,
		Baselined:      c.deb.baselined,
		Tally:          c.tally,
		Accepted:       c.accepted,
		Reported:       c.reported,
		Reports:        c.reports,
		ReportFailures: c.reportFailures,
		ReadErrors:     c.readErrors,
		LastDelta:      c.lastDelta,
		LastReport:     c.lastReport,
		Store:          c.store.Snapshot(),
	}
}
