// Package status provides a thread-safe status tracker for the meter-sensor daemon.
// The main loop writes to it every tick; HTTP handlers read from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/report"
	"github.com/sweeney/meter-sensor/internal/scheduler"
	"github.com/sweeney/meter-sensor/internal/settings"
)

// Mode is the boot-selected operating mode.
type Mode string

const (
	ModeMetering     Mode = "metering"
	ModeProvisioning Mode = "provisioning"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs         int64
	ReportInterval time.Duration
	FlushInterval  time.Duration
	SensorInterval time.Duration
	Transport      string
	Target         string // collector address or broker URL
	HTTPAddr       string
	StoragePath    string
	Capacity       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; slices and maps are copies owned by the caller.
type Snapshot struct {
	Mode          Mode
	Counters      []pulse.Snapshot
	Tasks         []scheduler.TaskInfo
	Reporter      report.Stats
	Settings      settings.Settings
	SettingsValid bool
	Sensors       map[string]float64
	SensorErrors  int
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every pulse input has established its baseline.
func (s Snapshot) Ready() bool {
	if s.Mode != ModeMetering || len(s.Counters) == 0 {
		return false
	}
	for _, c := range s.Counters {
		if !c.Baselined {
			return false
		}
	}
	return true
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Mode:      ModeMetering,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces counter, task and reporter state.
// Called from runLoop on every tick.
func (t *Tracker) Update(counters []pulse.Snapshot, tasks []scheduler.TaskInfo, rep report.Stats) {
	t.mu.Lock()
	t.snap.Counters = counters
	t.snap.Tasks = tasks
	t.snap.Reporter = rep
	t.mu.Unlock()
}

// SetMode records the operating mode.
func (t *Tracker) SetMode(m Mode) {
	t.mu.Lock()
	t.snap.Mode = m
	t.mu.Unlock()
}

// SetSettings records the stored settings record and whether it validated.
func (t *Tracker) SetSettings(s settings.Settings, valid bool) {
	t.mu.Lock()
	t.snap.Settings = s
	t.snap.SettingsValid = valid
	t.mu.Unlock()
}

// SetSensors records the latest probe values.
func (t *Tracker) SetSensors(values map[string]float64, errors int) {
	t.mu.Lock()
	t.snap.Sensors = values
	t.snap.SensorErrors = errors
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counters = append([]pulse.Snapshot(nil), t.snap.Counters...)
	s.Tasks = append([]scheduler.TaskInfo(nil), t.snap.Tasks...)
	if t.snap.Sensors != nil {
		s.Sensors = make(map[string]float64, len(t.snap.Sensors))
		for k, v := range t.snap.Sensors {
			s.Sensors[k] = v
		}
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
