// Package scheduler provides a cooperative, tick-driven dispatcher for
// periodic duties. It has no goroutines and no clock of its own: the caller
// passes the current time to Tick from its main loop.
//
// Missed periods are skipped. A duty that becomes due after the loop was
// blocked for several intervals fires once, and its next deadline is
// measured from that firing.
package scheduler

import (
	"fmt"
	"log"
	"runtime/debug"
	"time"
)

// Task is a periodic duty.
// Run must return promptly; the scheduler does not preempt or time it out.
type Task interface {
	Run(now time.Time)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(now time.Time)

// Run calls f(now).
func (f TaskFunc) Run(now time.Time) { f(now) }

type entry struct {
	name     string
	task     Task
	interval time.Duration
	nextDue  time.Time
	runs     int
	panics   int
	lastRun  time.Time
	lastTook time.Duration
}

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name     string
	Interval time.Duration
	NextDue  time.Time
	Runs     int
	Panics   int
	LastRun  time.Time
	LastTook time.Duration
}

// Scheduler dispatches registered tasks. Not safe for concurrent use.
type Scheduler struct {
	tasks   []*entry
	started bool
	last    time.Time // loop time of the last Start or Tick

	// now is used only to measure task run time.
	now func() time.Time
}

// New creates an empty, unstarted scheduler.
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Register adds a task that runs every interval once the scheduler starts.
// A task registered after Start is first due one interval after the most
// recent Start or Tick time.
// Registering a duplicate name or a non-positive interval is a programming
// error and panics.
func (s *Scheduler) Register(name string, interval time.Duration, t Task) {
	if interval <= 0 {
		panic(fmt.Sprintf("scheduler: task %q: interval must be positive, got %v", name, interval))
	}
	if t == nil {
		panic(fmt.Sprintf("scheduler: task %q is nil", name))
	}
	for _, e := range s.tasks {
		if e.name == name {
			panic(fmt.Sprintf("scheduler: task %q already registered", name))
		}
	}
	e := &entry{name: name, task: t, interval: interval}
	if s.started {
		e.nextDue = s.last.Add(interval)
	}
	s.tasks = append(s.tasks, e)
}

// Start arms every task: each first becomes due one interval after now.
func (s *Scheduler) Start(now time.Time) {
	for _, e := range s.tasks {
		e.nextDue = now.Add(e.interval)
	}
	s.started = true
	s.last = now
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool { return s.started }

// Tick runs every task whose deadline is at or before now, in registration
// order, and returns the number of tasks run. Each due task runs at most
// once per Tick and its next deadline becomes now + interval.
func (s *Scheduler) Tick(now time.Time) int {
	if !s.started {
		return 0
	}
	s.last = now
	fired := 0
	for _, e := range s.tasks {
		if now.Before(e.nextDue) {
			continue
		}
		e.nextDue = now.Add(e.interval)
		s.run(e, now)
		fired++
	}
	return fired
}

// run invokes a task and contains any panic so one faulty duty cannot stop the loop.
func (s *Scheduler) run(e *entry, now time.Time) {
	start := s.now()
	defer func() {
		e.runs++
		e.lastRun = now
		e.lastTook = s.now().Sub(start)
		if r := recover(); r != nil {
			e.panics++
			log.Printf("scheduler: task %s panicked: %v\n%s", e.name, r, debug.Stack())
		}
	}()
	e.task.Run(now)
}

// Tasks returns a snapshot of all registered tasks in registration order.
func (s *Scheduler) Tasks() []TaskInfo {
	out := make([]TaskInfo, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = TaskInfo{
			Name:     e.name,
			Interval: e.interval,
			NextDue:  e.nextDue,
			Runs:     e.runs,
			Panics:   e.panics,
			LastRun:  e.lastRun,
			LastTook: e.lastTook,
		}
	}
	return out
}
