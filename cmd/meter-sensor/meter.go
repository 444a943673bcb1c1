package main

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/meter-sensor/internal/config"
	"github.com/sweeney/meter-sensor/internal/counter"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/nvstore"
	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/report"
	"github.com/sweeney/meter-sensor/internal/scheduler"
	"github.com/sweeney/meter-sensor/internal/sensor"
	"github.com/sweeney/meter-sensor/internal/settings"
	"github.com/sweeney/meter-sensor/internal/status"
)

// statsReporter is a reporter that keeps delivery counts.
type statsReporter interface {
	report.Reporter
	Stats() report.Stats
}

// meter owns everything the main loop drives. Only runLoop touches it.
type meter struct {
	counters []*pulse.Counter
	sched    *scheduler.Scheduler
	poller   *sensor.Poller
	reporter statsReporter

	settingsRegion nvstore.Region
	settings       settings.Settings
}

// newMeter loads every counter log, seeding empty logs from the stored
// settings, and registers the periodic duties.
func newMeter(cfg *config.Config, secs *config.Sections, inputs map[string]gpio.DigitalInput,
	rep statsReporter, stored settings.Settings, power gpio.DigitalOutput) (*meter, error) {
	m := &meter{
		sched:          scheduler.New(),
		reporter:       rep,
		settingsRegion: secs.Settings,
		settings:       stored,
	}

	for _, cc := range cfg.Counters {
		store, err := counter.New(cc.Name, secs.Counters[cc.Name], cfg.Storage.Capacity)
		if err != nil {
			return nil, err
		}
		fallback, _ := stored.CounterValue(cc.Name)
		if err := store.Init(fallback); err != nil {
			return nil, fmt.Errorf("load counter %s: %w", cc.Name, err)
		}

		in, ok := inputs[cc.Name]
		if !ok {
			return nil, fmt.Errorf("no input for counter %s", cc.Name)
		}
		edge, err := pulse.ParseEdge(cc.Edge)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", cc.Name, err)
		}
		pc := pulse.New(pulse.Config{Name: cc.Name, Debounce: cc.Debounce, Edge: edge}, in, store, rep)
		m.counters = append(m.counters, pc)

		m.sched.Register("report-"+cc.Name, cfg.Intervals.Report, pc)
		m.sched.Register("flush-"+cc.Name, cfg.Intervals.Flush, store)
	}

	if len(cfg.Sensors.Probes) > 0 {
		probes := make([]sensor.Probe, 0, len(cfg.Sensors.Probes))
		for _, p := range cfg.Sensors.Probes {
			probes = append(probes, sensor.Probe{Name: p.Name, Path: p.Path})
		}
		m.poller = sensor.NewPoller(probes, rep, power, cfg.Sensors.Settle)
		m.sched.Register("sensors", cfg.Intervals.Sensor, m.poller)
	}
	return m, nil
}

// tick samples every input once, then runs whatever duties are due.
func (m *meter) tick(now time.Time) {
	for _, c := range m.counters {
		c.Process(now)
	}
	m.sched.Tick(now)
}

// applySettings stores s and moves every counter whose baseline changed
// to the new value. Unchanged fields leave the live counters alone. The
// counters are only marked dirty; their flush duty persists them.
func (m *meter) applySettings(s settings.Settings) error {
	if err := settings.Save(m.settingsRegion, s); err != nil {
		return err
	}
	prev := m.settings
	m.settings = s
	log.Printf("settings saved: energy=%v cold=%d hot=%d", s.EnergyKWh, s.ColdWater, s.HotWater)

	for _, c := range m.counters {
		v, ok := s.CounterValue(c.Name())
		if !ok {
			continue
		}
		if old, _ := prev.CounterValue(c.Name()); old == v {
			continue
		}
		c.SetValue(v)
	}
	return nil
}

// shutdown reports and folds what is pending, then flushes every log.
func (m *meter) shutdown(now time.Time) {
	for _, c := range m.counters {
		c.Run(now)
		if err := c.Store().Process(); err != nil {
			log.Printf("counter %s: final flush failed: %v", c.Name(), err)
		}
	}
}

func (m *meter) updateTracker(tracker *status.Tracker) {
	snaps := make([]pulse.Snapshot, 0, len(m.counters))
	for _, c := range m.counters {
		snaps = append(snaps, c.Snapshot())
	}
	tracker.Update(snaps, m.sched.Tasks(), m.reporter.Stats())
	if m.poller != nil {
		tracker.SetSensors(m.poller.Last(), m.poller.Errors())
	}
}
