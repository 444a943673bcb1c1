package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/meter-sensor/internal/counter"
	"github.com/sweeney/meter-sensor/internal/pulse"
	"github.com/sweeney/meter-sensor/internal/report"
	"github.com/sweeney/meter-sensor/internal/settings"
	"github.com/sweeney/meter-sensor/internal/status"
)

type recordingSink struct {
	got []settings.Settings
	err error
}

func (r *recordingSink) Submit(s settings.Settings) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, s)
	return nil
}

func newTestServer(t *testing.T, sink SettingsSink) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickMs:         10,
		ReportInterval: time.Minute,
		FlushInterval:  15 * time.Minute,
		Transport:      "udp",
		Target:         "192.168.0.5:42001",
		HTTPAddr:       ":80",
		Capacity:       30,
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, sink)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update([]pulse.Snapshot{{
		Name:      "cold",
		Edge:      pulse.EdgeRising,
		Baselined: true,
		Tally:     2,
		Store:     counter.Snapshot{Name: "cold", Value: 88012, Capacity: 30},
	}}, nil, report.Stats{Sent: 3})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if len(sj.Status.Counters) != 1 || sj.Status.Counters[0].Total != 88014 {
		t.Errorf("Counters: got %+v", sj.Status.Counters)
	}
	if sj.Status.Reporter.Sent != 3 {
		t.Errorf("Reporter.Sent: got %d, want 3", sj.Status.Reporter.Sent)
	}
	if sj.Status.Config.TickMs != 10 {
		t.Errorf("Config.TickMs: got %d, want 10", sj.Status.Config.TickMs)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update([]pulse.Snapshot{{Name: "hot", Baselined: true, Level: true}}, nil, report.Stats{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(body.String(), "ACTIVE") {
		t.Error("page should show the input level")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestGetSettings(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetSettings(settings.Settings{EnergyKWh: 2.5, ColdWater: 7, HotWater: 9}, true)

	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings: %v", err)
	}
	defer resp.Body.Close()

	var got settings.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.HotWater != 9 || got.ColdWater != 7 || got.EnergyKWh != 2.5 {
		t.Errorf("got %+v", got)
	}
}

func TestPostSettingsJSONMergesFields(t *testing.T) {
	sink := &recordingSink{}
	ts, tr := newTestServer(t, sink)
	tr.SetSettings(settings.Settings{EnergyKWh: 2.5, ColdWater: 7, HotWater: 9}, true)

	resp, err := http.Post(ts.URL+"/api/settings", "application/json",
		strings.NewReader(`{"hot_counter": 41000}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if len(sink.got) != 1 {
		t.Fatalf("submitted %d updates, want 1", len(sink.got))
	}
	want := settings.Settings{EnergyKWh: 2.5, ColdWater: 7, HotWater: 41000}
	if sink.got[0] != want {
		t.Errorf("submitted %+v, want %+v", sink.got[0], want)
	}
}

func TestPostSettingsForm(t *testing.T) {
	sink := &recordingSink{}
	ts, _ := newTestServer(t, sink)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.PostForm(ts.URL+"/api/settings", url.Values{
		"energy_kwh":   {"1234.5"},
		"cold_counter": {"88012"},
		"hot_counter":  {""},
	})
	if err != nil {
		t.Fatalf("POST form: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	want := settings.Settings{EnergyKWh: 1234.5, ColdWater: 88012}
	if len(sink.got) != 1 || sink.got[0] != want {
		t.Errorf("submitted %+v, want %+v", sink.got, want)
	}
}

func TestPostSettingsRejectsInvalid(t *testing.T) {
	sink := &recordingSink{}
	ts, _ := newTestServer(t, sink)

	for _, body := range []string{`{"cold_counter": -1}`, `not json`, `{"hot_counter": "many"}`} {
		resp, err := http.Post(ts.URL+"/api/settings", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", body, resp.StatusCode)
		}
	}
	if len(sink.got) != 0 {
		t.Errorf("invalid updates reached the sink: %+v", sink.got)
	}
}

func TestPostSettingsUnavailable(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/settings", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("read-only: status %d, want 503", resp.StatusCode)
	}

	ts, _ = newTestServer(t, &recordingSink{err: ErrBusy})
	resp, err = http.Post(ts.URL+"/api/settings", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("busy: status %d, want 503", resp.StatusCode)
	}
}

func TestChanSink(t *testing.T) {
	ch := make(chan settings.Settings, 1)
	sink := ChanSink(ch)

	if err := sink.Submit(settings.Settings{HotWater: 1}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := sink.Submit(settings.Settings{HotWater: 2}); err != ErrBusy {
		t.Errorf("second submit: got %v, want ErrBusy", err)
	}
	if got := <-ch; got.HotWater != 1 {
		t.Errorf("received %+v", got)
	}
}
