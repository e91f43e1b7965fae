package bargein

import (
	"testing"
	"time"

	"github.com/vivabot-tech/lingualive/internal/audio"
)

func newTestDetector() (*Detector, *time.Time) {
	d := NewDetector(0, 0)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDetectorTriggersAboveThreshold(t *testing.T) {
	d, _ := newTestDetector()

	if d.CheckEnergy(0.04) {
		t.Fatal("triggered below threshold")
	}
	if d.CheckEnergy(0.05) {
		t.Fatal("triggered at exactly the threshold")
	}
	if !d.CheckEnergy(0.06) {
		t.Fatal("expected trigger above threshold")
	}
}

func TestDetectorCooldownSuppressesRepeats(t *testing.T) {
	d, now := newTestDetector()

	if !d.CheckEnergy(0.5) {
		t.Fatal("expected first trigger")
	}

	*now = now.Add(100 * time.Millisecond)
	if d.CheckEnergy(0.5) {
		t.Fatal("triggered inside cooldown window")
	}

	*now = now.Add(250 * time.Millisecond)
	if !d.CheckEnergy(0.5) {
		t.Fatal("expected trigger after cooldown elapsed")
	}
}

func TestDetectorResetClearsCooldown(t *testing.T) {
	d, _ := newTestDetector()

	if !d.CheckEnergy(0.5) {
		t.Fatal("expected first trigger")
	}
	if d.CheckEnergy(0.5) {
		t.Fatal("triggered inside cooldown window")
	}

	d.Reset()
	if !d.CheckEnergy(0.5) {
		t.Fatal("expected trigger after reset")
	}
}

func TestDetectorCheckUsesFrameEnergy(t *testing.T) {
	d, _ := newTestDetector()

	quiet := make([]float32, 1024)
	for i := range quiet {
		quiet[i] = 0.01
	}
	if d.Check(audio.FloatToPCM16(quiet)) {
		t.Fatal("quiet frame triggered")
	}

	loud := make([]float32, 1024)
	for i := range loud {
		loud[i] = 0.3
	}
	if !d.Check(audio.FloatToPCM16(loud)) {
		t.Fatal("loud frame did not trigger")
	}
}
