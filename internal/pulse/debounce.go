package pulse

import "time"

// debouncer turns raw samples into stable levels. A new level is accepted
// once it has been observed continuously for at least the debounce window.
// The very first stable level is the baseline and is not a transition.
type debouncer struct {
	window time.Duration

	// Current stable (debounced) level
	stable bool
	// Whether we have established a baseline
	baselined bool

	// Level observed while waiting out the window
	pending      bool
	pendingSet   bool
	pendingSince time.Time
}

func newDebouncer(window time.Duration) debouncer {
	return debouncer{window: window}
}

// update feeds one sample and reports whether the stable level changed.
func (d *debouncer) update(level bool, now time.Time) bool {
	if !d.baselined {
		if !d.pendingSet || d.pending != level {
			// Start observing, or restart after a change during baseline
			d.pending = level
			d.pendingSet = true
			d.pendingSince = now
		}
		if now.Sub(d.pendingSince) >= d.window {
			d.stable = level
			d.baselined = true
			d.pendingSet = false
		}
		return false
	}

	if level == d.stable {
		// Bounce back to the stable level, drop any pending change
		d.pendingSet = false
		return false
	}

	if !d.pendingSet || d.pending != level {
		d.pending = level
		d.pendingSet = true
		d.pendingSince = now
	}

	if now.Sub(d.pendingSince) >= d.window {
		d.stable = level
		d.pendingSet = false
		return true
	}
	return false
}
