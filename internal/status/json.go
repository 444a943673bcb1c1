package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/scheduler"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode          string             `json:"mode"`
	Ready         bool               `json:"ready"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	Counters      []CounterJSON      `json:"counters"`
	Tasks         []TaskJSON         `json:"tasks"`
	Reporter      ReporterJSON       `json:"reporter"`
	Settings      SettingsJSON       `json:"settings"`
	Sensors       map[string]float64 `json:"sensors,omitempty"`
	SensorErrors  int                `json:"sensor_errors"`
	Config        ConfigJSON         `json:"config"`
}

// CounterJSON is one pulse input with its persistent log.
type CounterJSON struct {
	Name           string    `json:"name"`
	Edge           string    `json:"edge"`
	Level          string    `json:"level"`
	Baselined      bool      `json:"baselined"`
	Total          int64     `json:"total"`
	Tally          int64     `json:"tally"`
	Accepted       int64     `json:"accepted"`
	Reported       int64     `json:"reported"`
	Reports        int       `json:"reports"`
	ReportFailures int       `json:"report_failures"`
	ReadErrors     int       `json:"read_errors"`
	LastDelta      int64     `json:"last_delta"`
	LastReport     string    `json:"last_report,omitempty"`
	Store          StoreJSON `json:"store"`
}

// StoreJSON is the wear-leveled log state of a counter.
type StoreJSON struct {
	Value      int64  `json:"value"`
	Persisted  int64  `json:"persisted"`
	State      string `json:"state"`
	Generation uint32 `json:"generation"`
	NextSlot   int    `json:"next_slot"`
	Capacity   int    `json:"capacity"`
	ValidSlots int    `json:"valid_slots"`
	Flushes    int    `json:"flushes"`
	LastError  string `json:"last_error,omitempty"`
}

// TaskJSON is one scheduled duty.
type TaskJSON struct {
	Name       string `json:"name"`
	IntervalMs int64  `json:"interval_ms"`
	Runs       int    `json:"runs"`
	Panics     int    `json:"panics"`
	NextDue    string `json:"next_due,omitempty"`
	LastTookUs int64  `json:"last_took_us"`
}

// ReporterJSON reports telemetry delivery counts.
type ReporterJSON struct {
	Transport string `json:"transport"`
	Target    string `json:"target"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	LastError string `json:"last_error,omitempty"`
	LastSent  string `json:"last_sent,omitempty"`
}

// SettingsJSON is the stored settings record.
type SettingsJSON struct {
	Valid     bool    `json:"valid"`
	EnergyKWh float32 `json:"energy_kwh"`
	Cold      int32   `json:"cold_counter"`
	Hot       int32   `json:"hot_counter"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs        int64  `json:"tick_ms"`
	ReportSeconds int64  `json:"report_seconds"`
	FlushSeconds  int64  `json:"flush_seconds"`
	SensorSeconds int64  `json:"sensor_seconds"`
	Transport     string `json:"transport"`
	Target        string `json:"target"`
	HTTPAddr      string `json:"http_addr"`
	StoragePath   string `json:"storage_path"`
	Capacity      int    `json:"capacity"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// LevelName renders a stable input level.
func LevelName(c pulse.Snapshot) string {
	switch {
	case !c.Baselined:
		return "UNKNOWN"
	case c.Level:
		return "ACTIVE"
	default:
		return "IDLE"
	}
}

func buildCounter(c pulse.Snapshot) CounterJSON {
	return CounterJSON{
		Name:           c.Name,
		Edge:           string(c.Edge),
		Level:          LevelName(c),
		Baselined:      c.Baselined,
		Total:          c.Store.Value + c.Tally,
		Tally:          c.Tally,
		Accepted:       c.Accepted,
		Reported:       c.Reported,
		Reports:        c.Reports,
		ReportFailures: c.ReportFailures,
		ReadErrors:     c.ReadErrors,
		LastDelta:      c.LastDelta,
		LastReport:     formatTime(c.LastReport),
		Store: StoreJSON{
			Value:      c.Store.Value,
			Persisted:  c.Store.Persisted,
			State:      c.Store.State.String(),
			Generation: c.Store.Generation,
			NextSlot:   c.Store.Next,
			Capacity:   c.Store.Capacity,
			ValidSlots: c.Store.ValidSlots,
			Flushes:    c.Store.Flushes,
			LastError:  c.Store.LastError,
		},
	}
}

func buildTask(ti scheduler.TaskInfo) TaskJSON {
	return TaskJSON{
		Name:       ti.Name,
		IntervalMs: ti.Interval.Milliseconds(),
		Runs:       ti.Runs,
		Panics:     ti.Panics,
		NextDue:    formatTime(ti.NextDue),
		LastTookUs: ti.LastTook.Microseconds(),
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Mode:          string(snap.Mode),
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Counters:      make([]CounterJSON, 0, len(snap.Counters)),
		Tasks:         make([]TaskJSON, 0, len(snap.Tasks)),
		Reporter: ReporterJSON{
			Transport: snap.Config.Transport,
			Target:    snap.Config.Target,
			Sent:      snap.Reporter.Sent,
			Failed:    snap.Reporter.Failed,
			LastError: snap.Reporter.LastError,
			LastSent:  formatTime(snap.Reporter.LastSent),
		},
		Settings: SettingsJSON{
			Valid:     snap.SettingsValid,
			EnergyKWh: snap.Settings.EnergyKWh,
			Cold:      snap.Settings.ColdWater,
			Hot:       snap.Settings.HotWater,
		},
		Sensors:      snap.Sensors,
		SensorErrors: snap.SensorErrors,
		Config: ConfigJSON{
			TickMs:        snap.Config.TickMs,
			ReportSeconds: int64(snap.Config.ReportInterval.Seconds()),
			FlushSeconds:  int64(snap.Config.FlushInterval.Seconds()),
			SensorSeconds: int64(snap.Config.SensorInterval.Seconds()),
			Transport:     snap.Config.Transport,
			Target:        snap.Config.Target,
			HTTPAddr:      snap.Config.HTTPAddr,
			StoragePath:   snap.Config.StoragePath,
			Capacity:      snap.Config.Capacity,
		},
	}
	for _, c := range snap.Counters {
		inner.Counters = append(inner.Counters, buildCounter(c))
	}
	for _, ti := range snap.Tasks {
		inner.Tasks = append(inner.Tasks, buildTask(ti))
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
