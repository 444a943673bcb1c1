// Package web provides an HTTP status server for the meter-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/meter-sensor/internal/settings"
	"github.com/sweeney/meter-sensor/internal/status"
)

// ErrBusy is returned by a SettingsSink that cannot accept an update now.
var ErrBusy = errors.New("settings update already pending")

// SettingsSink accepts validated settings submitted over HTTP.
type SettingsSink interface {
	Submit(s settings.Settings) error
}

// ChanSink hands settings to the main loop without blocking.
type ChanSink chan<- settings.Settings

// Submit implements SettingsSink.
func (c ChanSink) Submit(s settings.Settings) error {
	select {
	case c <- s:
		return nil
	default:
		return ErrBusy
	}
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	sink       SettingsSink
}

// New creates a Server that reads state from the given tracker. sink may be
// nil, in which case settings cannot be changed.
func New(addr string, tracker *status.Tracker, sink SettingsSink) *Server {
	s := &Server{tracker: tracker, sink: sink}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/api/settings", s.getSettings)
	r.Post("/api/settings", s.postSettings)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot().Settings)
}

// settingsUpdate carries the fields a client chose to change.
type settingsUpdate struct {
	EnergyKWh *float32 `json:"energy_kwh"`
	Cold      *int32   `json:"cold_counter"`
	Hot       *int32   `json:"hot_counter"`
}

func (u settingsUpdate) apply(s settings.Settings) settings.Settings {
	if u.EnergyKWh != nil {
		s.EnergyKWh = *u.EnergyKWh
	}
	if u.Cold != nil {
		s.ColdWater = *u.Cold
	}
	if u.Hot != nil {
		s.HotWater = *u.Hot
	}
	return s
}

func (s *Server) postSettings(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings are read-only"))
		return
	}

	var upd settingsUpdate
	var err error
	form := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	if form {
		upd, err = parseForm(r)
	} else {
		err = json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&upd)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode settings: %w", err))
		return
	}

	next := upd.apply(s.tracker.Snapshot().Settings)
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sink.Submit(next); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, next)
}

// parseForm reads the fields of the HTML settings form. Empty fields are
// left unchanged.
func parseForm(r *http.Request) (settingsUpdate, error) {
	var upd settingsUpdate
	if err := r.ParseForm(); err != nil {
		return upd, err
	}
	if v := r.PostFormValue("energy_kwh"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return upd, fmt.Errorf("energy_kwh: %w", err)
		}
		f32 := float32(f)
		upd.EnergyKWh = &f32
	}
	for _, field := range []struct {
		key string
		dst **int32
	}{
		{"cold_counter", &upd.Cold},
		{"hot_counter", &upd.Hot},
	} {
		v := r.PostFormValue(field.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return upd, fmt.Errorf("%s: %w", field.key, err)
		}
		n32 := int32(n)
		*field.dst = &n32
	}
	return upd, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
