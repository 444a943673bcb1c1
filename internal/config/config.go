// Package config loads daemon configuration from an optional YAML file,
// environment overrides (METER_*) and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/meter-sensor/internal/counter"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/nvstore"
	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/report"
	"github.com/sweeney/meter-sensor/internal/sensor"
	"github.com/sweeney/meter-sensor/internal/settings"
)

// Config is the full daemon configuration.
type Config struct {
	Tick      time.Duration   `mapstructure:"tick"`
	Chip      string          `mapstructure:"chip"`
	HTTPAddr  string          `mapstructure:"http_addr"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Setup     SetupConfig     `mapstructure:"setup"`
	Counters  []CounterConfig `mapstructure:"counters"`
	Intervals IntervalConfig  `mapstructure:"intervals"`
	Reporter  ReporterConfig  `mapstructure:"reporter"`
	Sensors   SensorConfig    `mapstructure:"sensors"`
}

// StorageConfig describes the non-volatile region file and its layout.
type StorageConfig struct {
	Path     string `mapstructure:"path"`
	Size     int64  `mapstructure:"size"`
	Capacity int    `mapstructure:"capacity"` // slots per counter
}

// SetupConfig is the mode-selection input sampled once at boot.
type SetupConfig struct {
	Pin       int  `mapstructure:"pin"` // -1 disables
	ActiveLow bool `mapstructure:"active_low"`
}

// CounterConfig defines one pulse meter input and its log region.
type CounterConfig struct {
	Name      string        `mapstructure:"name"`
	Pin       int           `mapstructure:"pin"`
	Bias      string        `mapstructure:"bias"` // up, down, none
	ActiveLow bool          `mapstructure:"active_low"`
	Edge      string        `mapstructure:"edge"` // rising, falling
	Debounce  time.Duration `mapstructure:"debounce"`
	Base      int64         `mapstructure:"base"` // log region offset
}

// IntervalConfig holds the scheduler periods.
type IntervalConfig struct {
	Report time.Duration `mapstructure:"report"`
	Flush  time.Duration `mapstructure:"flush"`
	Sensor time.Duration `mapstructure:"sensor"`
}

// ReporterConfig selects and configures the telemetry transport.
type ReporterConfig struct {
	Transport   string        `mapstructure:"transport"` // udp, mqtt
	Addr        string        `mapstructure:"addr"`      // udp host:port
	Broker      string        `mapstructure:"broker"`    // mqtt broker URL
	TopicPrefix string        `mapstructure:"topic_prefix"`
	ClientID    string        `mapstructure:"client_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SensorConfig lists temperature probes polled by the sensor duty.
type SensorConfig struct {
	Probes   []ProbeConfig `mapstructure:"probes"`
	PowerPin int           `mapstructure:"power_pin"` // -1 disables
	Settle   time.Duration `mapstructure:"settle"`
}

// ProbeConfig is one millidegree file.
type ProbeConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tick", 10*time.Millisecond)
	v.SetDefault("chip", gpio.DefaultChip)
	v.SetDefault("http_addr", ":80")

	v.SetDefault("storage.path", "/var/lib/meter-sensor/nv.bin")
	v.SetDefault("storage.size", 1024)
	v.SetDefault("storage.capacity", 30)

	v.SetDefault("setup.pin", gpio.DefaultPinSetup)
	v.SetDefault("setup.active_low", true)

	v.SetDefault("counters", []map[string]interface{}{
		{"name": "hot", "pin": gpio.DefaultPinHot, "bias": "up", "active_low": true, "edge": "rising", "debounce": pulse.DefaultDebounce, "base": 64},
		{"name": "cold", "pin": gpio.DefaultPinCold, "bias": "up", "active_low": true, "edge": "rising", "debounce": pulse.DefaultDebounce, "base": 544},
	})

	v.SetDefault("intervals.report", time.Minute)
	v.SetDefault("intervals.flush", 15*time.Minute)
	v.SetDefault("intervals.sensor", 5*time.Minute)

	v.SetDefault("reporter.transport", "udp")
	v.SetDefault("reporter.addr", "192.168.0.5:42001")
	v.SetDefault("reporter.broker", "tcp://192.168.0.5:1883")
	v.SetDefault("reporter.topic_prefix", report.DefaultTopicPrefix)
	v.SetDefault("reporter.client_id", "meter-sensor")
	v.SetDefault("reporter.timeout", 2*time.Second)

	v.SetDefault("sensors.probes", []map[string]interface{}{
		{"name": "temp_board", "path": sensor.DefaultThermalPath},
	})
	v.SetDefault("sensors.power_pin", -1)
	v.SetDefault("sensors.settle", 0)
}

// Load reads configuration. An empty path searches the standard locations;
// finding no file there is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("METER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/meter-sensor/")
		v.AddConfigPath("$HOME/.meter-sensor")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks intervals, names and that the storage layout fits.
func (c *Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	}
	for name, d := range map[string]time.Duration{
		"intervals.report": c.Intervals.Report,
		"intervals.flush":  c.Intervals.Flush,
		"intervals.sensor": c.Intervals.Sensor,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.Storage.Size <= 0 {
		return fmt.Errorf("storage.size must be positive, got %d", c.Storage.Size)
	}
	if c.Storage.Capacity < counter.MinCapacity {
		return fmt.Errorf("storage.capacity must be at least %d, got %d", counter.MinCapacity, c.Storage.Capacity)
	}
	if len(c.Counters) == 0 {
		return errors.New("at least one counter is required")
	}

	seen := make(map[string]bool)
	for _, cc := range c.Counters {
		if cc.Name == "" {
			return errors.New("counter name must not be empty")
		}
		if seen[cc.Name] {
			return fmt.Errorf("duplicate counter %q", cc.Name)
		}
		seen[cc.Name] = true
		if cc.Pin < 0 {
			return fmt.Errorf("counter %s: pin must not be negative", cc.Name)
		}
		if _, err := pulse.ParseEdge(cc.Edge); err != nil {
			return fmt.Errorf("counter %s: %w", cc.Name, err)
		}
		switch cc.Bias {
		case "", "up", "down", "none":
		default:
			return fmt.Errorf("counter %s: unknown bias %q", cc.Name, cc.Bias)
		}
		if cc.Debounce < 0 {
			return fmt.Errorf("counter %s: debounce must not be negative", cc.Name)
		}
	}

	if _, err := c.Layout(nvstore.NewMemRegion(int(c.Storage.Size))); err != nil {
		return err
	}

	switch c.Reporter.Transport {
	case "udp":
		if c.Reporter.Addr == "" {
			return errors.New("reporter.addr is required for udp transport")
		}
	case "mqtt":
		if c.Reporter.Broker == "" {
			return errors.New("reporter.broker is required for mqtt transport")
		}
	default:
		return fmt.Errorf("unknown reporter.transport %q (want udp or mqtt)", c.Reporter.Transport)
	}

	for _, p := range c.Sensors.Probes {
		if p.Name == "" || p.Path == "" {
			return fmt.Errorf("sensor probe needs name and path, got %+v", p)
		}
	}
	return nil
}

// Sections maps owner names to their claimed region sections.
type Sections struct {
	Settings *nvstore.Section
	Counters map[string]*nvstore.Section
}

// Layout claims the settings record and every counter log in region.
func (c *Config) Layout(region nvstore.Region) (*Sections, error) {
	l := nvstore.NewLayout(region)
	s := &Sections{Counters: make(map[string]*nvstore.Section)}

	var err error
	s.Settings, err = l.Claim("settings", 0, settings.RecordSize)
	if err != nil {
		return nil, fmt.Errorf("storage layout: %w", err)
	}
	for _, cc := range c.Counters {
		sec, err := l.Claim(cc.Name, cc.Base, counter.RegionSize(c.Storage.Capacity))
		if err != nil {
			return nil, fmt.Errorf("storage layout: %w", err)
		}
		s.Counters[cc.Name] = sec
	}
	return s, nil
}
