// Package bargein decides when live mic energy should cut off assistant
// playback.
package bargein

import (
	"sync"
	"time"

	"github.com/vivabot-tech/lingualive/internal/audio"
)

const (
	// DefaultThreshold is the RMS energy above which a mic frame counts as
	// the user speaking over the assistant.
	DefaultThreshold = 0.05

	// DefaultCooldown is the minimum gap between two triggers, so one
	// sustained utterance does not fire a barrage of interruptions.
	DefaultCooldown = 300 * time.Millisecond
)

// Detector fires when mic energy crosses a threshold, rate limited by a
// cooldown window.
type Detector struct {
	threshold float64
	cooldown  time.Duration
	now       func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewDetector builds a detector. Non-positive threshold or cooldown fall
// back to the defaults.
func NewDetector(threshold float64, cooldown time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Detector{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Check reports whether the given PCM16-LE frame should trigger an
// interruption. A true result starts the cooldown window.
func (d *Detector) Check(frame []byte) bool {
	return d.CheckEnergy(audio.RMSBytes(frame))
}

// CheckEnergy is Check for a precomputed RMS energy value.
func (d *Detector) CheckEnergy(energy float64) bool {
	if energy <= d.threshold {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.cooldown {
		return false
	}
	d.last = now
	return true
}

// Reset clears the cooldown window, typically on session start.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = time.Time{}
}
