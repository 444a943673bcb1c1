// Package counter implements a wear-leveling persistent counter.
//
// The counter value lives in memory and is flushed periodically into a
// rotating log of fixed-size slots. Each flush writes a fresh slot with a
// higher generation; slots are never rewritten in place while they hold the
// newest value, so an interrupted write can only damage the slot being
// written. At boot the valid slot with the highest generation wins.
package counter

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/meter-sensor/internal/nvstore"
)

var (
	// ErrNotInitialized is returned by Process before Init has run.
	ErrNotInitialized = errors.New("counter: not initialized")

	// ErrNegativeDelta is returned by Add for negative increments.
	ErrNegativeDelta = errors.New("counter: negative delta")

	// ErrGenerationExhausted is returned when the generation field would wrap.
	ErrGenerationExhausted = errors.New("counter: generation exhausted")
)

// State is the lifecycle state of a Counter.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	StateDirty
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateLoaded:
		return "LOADED"
	case StateDirty:
		return "DIRTY"
	case StatePersisted:
		return "PERSISTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Counter is a durable int64 counter backed by capacity slots in region.
// Not safe for concurrent use; the main loop owns it.
type Counter struct {
	name     string
	region   nvstore.Region
	capacity int

	value        int64
	persisted    int64
	hasPersisted bool
	generation   uint32
	next         int
	state        State

	validSlots int
	flushes    int
	lastErr    error
}

// New creates a counter over region using capacity slots from offset 0.
func New(name string, region nvstore.Region, capacity int) (*Counter, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("counter %s: capacity must be at least %d, got %d", name, MinCapacity, capacity)
	}
	if need := int64(capacity) * SlotSize; region.Size() < need {
		return nil, fmt.Errorf("counter %s: region holds %d bytes, need %d for %d slots: %w",
			name, region.Size(), need, capacity, nvstore.ErrOutOfRange)
	}
	return &Counter{name: name, region: region, capacity: capacity}, nil
}

// MinCapacity is the smallest log that never overwrites its only valid slot.
const MinCapacity = 2

// RegionSize returns the bytes needed for capacity slots.
func RegionSize(capacity int) int64 {
	return int64(capacity) * SlotSize
}

// Init scans every slot and restores the newest valid value. When no slot
// validates (first boot or fully corrupted log) the counter starts from
// fallback and writing begins at slot 0.
func (c *Counter) Init(fallback int64) error {
	buf := make([]byte, SlotSize)

	var best Slot
	bestIdx := -1
	valid := 0
	for i := 0; i < c.capacity; i++ {
		if _, err := c.region.ReadAt(buf, int64(i)*SlotSize); err != nil {
			return fmt.Errorf("counter %s: read slot %d: %w", c.name, i, err)
		}
		s, ok := decodeSlot(buf)
		if !ok {
			continue
		}
		valid++
		if bestIdx < 0 || s.Generation > best.Generation {
			best = s
			bestIdx = i
		}
	}

	c.validSlots = valid
	c.state = StateLoaded

	if bestIdx < 0 {
		c.value = fallback
		c.persisted = 0
		c.hasPersisted = false
		c.generation = 0
		c.next = 0
		log.Printf("counter %s: no valid slot, starting from %d", c.name, fallback)
		return nil
	}

	c.value = best.Value
	c.persisted = best.Value
	c.hasPersisted = true
	c.generation = best.Generation
	c.next = (bestIdx + 1) % c.capacity
	log.Printf("counter %s: restored %d (generation %d, slot %d, %d/%d slots valid)",
		c.name, best.Value, best.Generation, bestIdx, valid, c.capacity)
	return nil
}

// Name returns the counter label.
func (c *Counter) Name() string { return c.name }

// Value returns the in-memory value.
func (c *Counter) Value() int64 { return c.value }

// SetValue overrides the value. Persistence still waits for the next flush.
func (c *Counter) SetValue(v int64) {
	c.value = v
	if c.state != StateUninitialized && c.dirty() {
		c.state = StateDirty
	}
}

// Add increments the value by delta, which must not be negative.
func (c *Counter) Add(delta int64) error {
	if delta < 0 {
		return fmt.Errorf("counter %s: add %d: %w", c.name, delta, ErrNegativeDelta)
	}
	if delta == 0 {
		return nil
	}
	c.SetValue(c.value + delta)
	return nil
}

func (c *Counter) dirty() bool {
	return !c.hasPersisted || c.value != c.persisted
}

// Dirty reports whether the in-memory value differs from the last flush.
func (c *Counter) Dirty() bool {
	return c.state != StateUninitialized && c.dirty()
}

// Process flushes the value into the next slot if it changed since the last
// flush. An unchanged value costs no write. On error the counter stays dirty
// and the same slot is retried next cycle.
func (c *Counter) Process() error {
	if c.state == StateUninitialized {
		return ErrNotInitialized
	}
	if !c.dirty() {
		return nil
	}
	if c.generation == ^uint32(0) {
		return fmt.Errorf("counter %s: %w", c.name, ErrGenerationExhausted)
	}

	s := Slot{Generation: c.generation + 1, Value: c.value}
	if _, err := c.region.WriteAt(s.encode(), int64(c.next)*SlotSize); err != nil {
		c.lastErr = err
		return fmt.Errorf("counter %s: write slot %d: %w", c.name, c.next, err)
	}
	if err := c.region.Sync(); err != nil {
		c.lastErr = err
		return fmt.Errorf("counter %s: sync slot %d: %w", c.name, c.next, err)
	}

	c.generation = s.Generation
	c.next = (c.next + 1) % c.capacity
	c.persisted = s.Value
	c.hasPersisted = true
	c.state = StatePersisted
	c.flushes++
	c.lastErr = nil
	return nil
}

// Run is the scheduler duty for periodic flushing.
func (c *Counter) Run(now time.Time) {
	if err := c.Process(); err != nil {
		log.Printf("counter %s: flush failed: %v", c.name, err)
	}
}

// Snapshot is a point-in-time view of the counter for status reporting.
type Snapshot struct {
	Name       string
	Value      int64
	Persisted  int64
	State      State
	Generation uint32
	Next       int
	Capacity   int
	ValidSlots int
	Flushes    int
	LastError  string
}

// Snapshot returns the current counter state.
func (c *Counter) Snapshot() Snapshot {
	s := Snapshot{
		Name:       c.name,
		Value:      c.value,
		Persisted:  c.persisted,
		State:      c.state,
		Generation: c.generation,
		Next:       c.next,
		Capacity:   c.capacity,
		ValidSlots: c.validSlots,
		Flushes:    c.flushes,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// State returns the lifecycle state.
func (c *Counter) State() State { return c.state }

// Generation returns the highest generation known (0 before any flush).
func (c *Counter) Generation() uint32 { return c.generation }

// Next returns the rotation pointer: the slot index the next flush writes.
func (c *Counter) Next() int { return c.next }

// Capacity returns the number of slots.
func (c *Counter) Capacity() int { return c.capacity }
