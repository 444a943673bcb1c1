// Command meter-sensor counts utility meter pulses on GPIO inputs, keeps
// the totals in wear-leveled non-volatile storage and reports deltas to a
// collector.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/meter-sensor/internal/config"
	"github.com/sweeney/meter-sensor/internal/counter"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/nvstore"
	"github.com/sweeney/meter-sensor/internal/report"
	"github.com/sweeney/meter-sensor/internal/settings"
	"github.com/sweeney/meter-sensor/internal/status"
	"github.com/sweeney/meter-sensor/internal/web"
)

func main() {
	cfgPath := flag.String("config", "", "Config file (default: search /etc/meter-sensor, ~/.meter-sensor, .)")
	printState := flag.Bool("print-state", false, "Print input levels and stored totals, then exit")

	flag.Parse()

	if err := run(*cfgPath, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfgPath string, printState bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	region, err := nvstore.OpenMmapRegion(cfg.Storage.Path, cfg.Storage.Size)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer region.Close()

	secs, err := cfg.Layout(region)
	if err != nil {
		return err
	}
	stored, valid, err := settings.Load(secs.Settings)
	if err != nil {
		return err
	}
	if !valid {
		log.Printf("no valid settings record; counters with empty logs start at 0")
	}

	inputs := make(map[string]gpio.DigitalInput, len(cfg.Counters))
	for _, cc := range cfg.Counters {
		in, err := gpio.NewRealInput(gpio.InputConfig{
			Chip:      cfg.Chip,
			Pin:       cc.Pin,
			Bias:      gpio.Bias(cc.Bias),
			ActiveLow: cc.ActiveLow,
		})
		if err != nil {
			return fmt.Errorf("init input %s: %w", cc.Name, err)
		}
		defer in.Close()
		inputs[cc.Name] = in
	}

	if printState {
		return printInputs(cfg, secs, inputs, stored, valid)
	}

	mode, err := sampleMode(cfg)
	if err != nil {
		return err
	}

	rep := newReporter(cfg.Reporter)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:         cfg.Tick.Milliseconds(),
		ReportInterval: cfg.Intervals.Report,
		FlushInterval:  cfg.Intervals.Flush,
		SensorInterval: cfg.Intervals.Sensor,
		Transport:      cfg.Reporter.Transport,
		Target:         reporterTarget(cfg.Reporter),
		HTTPAddr:       cfg.HTTPAddr,
		StoragePath:    cfg.Storage.Path,
		Capacity:       cfg.Storage.Capacity,
	})
	tracker.SetMode(mode)
	tracker.SetSettings(stored, valid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if mode == status.ModeProvisioning {
		sink := &directSink{region: secs.Settings, tracker: tracker}
		stop := startWeb(cfg.HTTPAddr, tracker, sink)
		defer stop()
		log.Printf("setup input active: provisioning mode, metering disabled")
		s := <-sigCh
		log.Printf("received %v, shutting down", s)
		return nil
	}

	var power gpio.DigitalOutput
	if cfg.Sensors.PowerPin >= 0 {
		out, err := gpio.NewRealOutput(cfg.Chip, cfg.Sensors.PowerPin)
		if err != nil {
			return fmt.Errorf("init sensor power: %w", err)
		}
		defer out.Close()
		power = out
	}

	m, err := newMeter(cfg, secs, inputs, rep, stored, power)
	if err != nil {
		return err
	}

	overrides := make(chan settings.Settings, 1)
	stop := startWeb(cfg.HTTPAddr, tracker, web.ChanSink(overrides))
	defer stop()

	log.Printf("started: tick=%v report=%v flush=%v transport=%s target=%s",
		cfg.Tick, cfg.Intervals.Report, cfg.Intervals.Flush, cfg.Reporter.Transport, reporterTarget(cfg.Reporter))

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	return runLoop(m, tracker, time.Now, ticker.C, sigCh, overrides)
}

func runLoop(m *meter, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, overrides <-chan settings.Settings) error {
	m.sched.Start(now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			m.shutdown(now())
			if tracker != nil {
				m.updateTracker(tracker)
			}
			return nil

		case s := <-overrides:
			if err := m.applySettings(s); err != nil {
				log.Printf("settings update failed: %v", err)
				continue
			}
			if tracker != nil {
				tracker.SetSettings(s, true)
			}

		case <-tick:
			m.tick(now())

			// Update status tracker for HTTP consumers
			if tracker != nil {
				m.updateTracker(tracker)
			}
		}
	}
}

// sampleMode reads the setup input once at boot.
func sampleMode(cfg *config.Config) (status.Mode, error) {
	if cfg.Setup.Pin < 0 {
		return status.ModeMetering, nil
	}
	in, err := gpio.NewRealInput(gpio.InputConfig{
		Chip:      cfg.Chip,
		Pin:       cfg.Setup.Pin,
		Bias:      gpio.BiasUp,
		ActiveLow: cfg.Setup.ActiveLow,
	})
	if err != nil {
		return "", fmt.Errorf("init setup input: %w", err)
	}
	defer in.Close()
	return modeFor(in)
}

func modeFor(in gpio.DigitalInput) (status.Mode, error) {
	active, err := in.Read()
	if err != nil {
		return "", fmt.Errorf("read setup input: %w", err)
	}
	if active {
		return status.ModeProvisioning, nil
	}
	return status.ModeMetering, nil
}

func newReporter(cfg config.ReporterConfig) statsReporter {
	if cfg.Transport == "mqtt" {
		return report.NewMQTTReporter(cfg.Broker, cfg.TopicPrefix, cfg.ClientID, cfg.Timeout)
	}
	return report.NewUDPReporter(cfg.Addr, cfg.Timeout)
}

func reporterTarget(cfg config.ReporterConfig) string {
	if cfg.Transport == "mqtt" {
		return cfg.Broker
	}
	return cfg.Addr
}

// directSink saves settings straight to storage. Used in provisioning mode,
// where no main loop is running.
type directSink struct {
	mu      sync.Mutex
	region  nvstore.Region
	tracker *status.Tracker
}

func (d *directSink) Submit(s settings.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := settings.Save(d.region, s); err != nil {
		return err
	}
	d.tracker.SetSettings(s, true)
	log.Printf("settings saved: energy=%v cold=%d hot=%d", s.EnergyKWh, s.ColdWater, s.HotWater)
	return nil
}

// startWeb starts the status server unless addr is empty and returns its
// shutdown func.
func startWeb(addr string, tracker *status.Tracker, sink web.SettingsSink) func() {
	if addr == "" {
		return func() {}
	}
	srv := web.New(addr, tracker, sink)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	log.Printf("http status server listening on %s", addr)
	return func() { srv.Shutdown(context.Background()) }
}

func printInputs(cfg *config.Config, secs *config.Sections, inputs map[string]gpio.DigitalInput, stored settings.Settings, valid bool) error {
	for _, cc := range cfg.Counters {
		active, err := inputs[cc.Name].Read()
		if err != nil {
			return fmt.Errorf("read input %s: %w", cc.Name, err)
		}
		store, err := counter.New(cc.Name, secs.Counters[cc.Name], cfg.Storage.Capacity)
		if err != nil {
			return err
		}
		fallback, _ := stored.CounterValue(cc.Name)
		if err := store.Init(fallback); err != nil {
			return fmt.Errorf("load counter %s: %w", cc.Name, err)
		}
		snap := store.Snapshot()
		fmt.Printf("%s: %s, total %d (generation %d)\n", cc.Name, levelString(active), snap.Value, snap.Generation)
	}
	if valid {
		fmt.Printf("settings: energy=%v cold=%d hot=%d\n", stored.EnergyKWh, stored.ColdWater, stored.HotWater)
	} else {
		fmt.Println("settings: none")
	}
	return nil
}

func levelString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}
