// Package sensor polls temperature probes exposed as millidegree files
// (Linux thermal zones and similar) and reports them as readings.
package sensor

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/report"
)

// DefaultThermalPath is the SoC temperature on a Raspberry Pi.
const DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"

// Probe is one temperature source.
type Probe struct {
	Name string
	Path string
}

// ReadMillidegrees reads a file holding an integer in thousandths of a
// degree Celsius and returns degrees.
func ReadMillidegrees(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return float64(milli) / 1000.0, nil
}

// Poller is the sensor poll duty.
type Poller struct {
	probes   []Probe
	reporter report.Reporter
	power    gpio.DigitalOutput
	settle   time.Duration
	sleep    func(time.Duration)

	last   map[string]float64
	errors int
	errLog rate.Sometimes
}

// NewPoller creates a poller. power may be nil; when set it is driven
// active for settle before reading and released afterwards.
func NewPoller(probes []Probe, r report.Reporter, power gpio.DigitalOutput, settle time.Duration) *Poller {
	return &Poller{
		probes:   probes,
		reporter: r,
		power:    power,
		settle:   settle,
		sleep:    time.Sleep,
		last:     make(map[string]float64),
		errLog:   rate.Sometimes{First: 3, Interval: 10 * time.Minute},
	}
}

// Run reads every probe once and reports what it could read.
func (p *Poller) Run(now time.Time) {
	if p.power != nil {
		if err := p.power.Set(true); err != nil {
			p.fail(fmt.Errorf("power on: %w", err))
		}
		defer func() {
			if err := p.power.Set(false); err != nil {
				p.fail(fmt.Errorf("power off: %w", err))
			}
		}()
		if p.settle > 0 {
			p.sleep(p.settle)
		}
	}

	for _, probe := range p.probes {
		v, err := ReadMillidegrees(probe.Path)
		if err != nil {
			p.fail(err)
			continue
		}
		p.last[probe.Name] = v
		if err := p.reporter.Report(probe.Name, v); err != nil {
			log.Printf("sensor %s: report dropped: %v", probe.Name, err)
		}
	}
}

func (p *Poller) fail(err error) {
	p.errors++
	p.errLog.Do(func() {
		log.Printf("sensor: %v", err)
	})
}

// Last returns the most recent value of every probe read so far.
func (p *Poller) Last() map[string]float64 {
	out := make(map[string]float64, len(p.last))
	for k, v := range p.last {
		out[k] = v
	}
	return out
}

// Errors returns the number of failed reads.
func (p *Poller) Errors() int { return p.errors }
