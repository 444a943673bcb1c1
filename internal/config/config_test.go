package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/meter-sensor/internal/nvstore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# empty\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Tick != 10*time.Millisecond {
		t.Errorf("Tick: got %v", cfg.Tick)
	}
	if cfg.Intervals.Report != time.Minute {
		t.Errorf("Report: got %v", cfg.Intervals.Report)
	}
	if cfg.Intervals.Flush != 15*time.Minute {
		t.Errorf("Flush: got %v", cfg.Intervals.Flush)
	}
	if cfg.Storage.Capacity != 30 {
		t.Errorf("Capacity: got %d", cfg.Storage.Capacity)
	}
	if cfg.Reporter.Transport != "udp" || cfg.Reporter.Addr != "192.168.0.5:42001" {
		t.Errorf("Reporter: got %+v", cfg.Reporter)
	}
	if len(cfg.Counters) != 2 {
		t.Fatalf("Counters: got %d, want 2", len(cfg.Counters))
	}
	hot := cfg.Counters[0]
	if hot.Name != "hot" || hot.Pin != 6 || hot.Debounce != 50*time.Millisecond || hot.Base != 64 {
		t.Errorf("hot counter: got %+v", hot)
	}
	if cfg.Counters[1].Name != "cold" || cfg.Counters[1].Pin != 5 {
		t.Errorf("cold counter: got %+v", cfg.Counters[1])
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
tick: 20ms
intervals:
  report: 30s
reporter:
  transport: mqtt
  broker: tcp://broker:1883
counters:
  - name: gas
    pin: 17
    edge: falling
    debounce: 100ms
    base: 32
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tick != 20*time.Millisecond {
		t.Errorf("Tick: got %v", cfg.Tick)
	}
	if cfg.Intervals.Report != 30*time.Second {
		t.Errorf("Report: got %v", cfg.Intervals.Report)
	}
	if cfg.Intervals.Flush != 15*time.Minute {
		t.Errorf("Flush should keep default, got %v", cfg.Intervals.Flush)
	}
	if cfg.Reporter.Transport != "mqtt" || cfg.Reporter.Broker != "tcp://broker:1883" {
		t.Errorf("Reporter: got %+v", cfg.Reporter)
	}
	if len(cfg.Counters) != 1 || cfg.Counters[0].Name != "gas" || cfg.Counters[0].Edge != "falling" {
		t.Errorf("Counters: got %+v", cfg.Counters)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("METER_REPORTER_ADDR", "10.0.0.9:5000")
	cfg, err := Load(writeConfig(t, "tick: 10ms\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reporter.Addr != "10.0.0.9:5000" {
		t.Errorf("Addr: got %q", cfg.Reporter.Addr)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero report interval", "intervals:\n  report: 0s\n", "intervals.report"},
		{"bad transport", "reporter:\n  transport: carrier-pigeon\n", "transport"},
		{"bad edge", "counters:\n  - name: hot\n    pin: 6\n    edge: sideways\n    base: 64\n", "edge"},
		{"duplicate counter", "counters:\n  - {name: hot, pin: 6, edge: rising, base: 64}\n  - {name: hot, pin: 5, edge: rising, base: 544}\n", "duplicate"},
		{"overlapping logs", "counters:\n  - {name: hot, pin: 6, edge: rising, base: 64}\n  - {name: cold, pin: 5, edge: rising, base: 100}\n", "layout"},
		{"log past end", "storage:\n  size: 256\n", "layout"},
		{"zero capacity", "storage:\n  capacity: 0\n", "capacity"},
		{"single slot", "storage:\n  capacity: 1\n", "capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# defaults\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	region := nvstore.NewMemRegion(int(cfg.Storage.Size))
	secs, err := cfg.Layout(region)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if secs.Settings.Base() != 0 {
		t.Errorf("settings base: got %d", secs.Settings.Base())
	}
	hot, cold := secs.Counters["hot"], secs.Counters["cold"]
	if hot == nil || cold == nil {
		t.Fatalf("missing sections: %+v", secs.Counters)
	}
	if hot.Base()+hot.Size() > cold.Base() {
		t.Errorf("hot [%d,+%d) overlaps cold at %d", hot.Base(), hot.Size(), cold.Base())
	}

	cfg.Counters[1].Base = hot.Base() + 16
	if _, err := cfg.Layout(region); !errors.Is(err, nvstore.ErrOverlap) {
		t.Errorf("got %v, want ErrOverlap", err)
	}
}
