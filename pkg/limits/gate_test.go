package limits

import (
	"sync"
	"testing"
	"time"
)

func TestIntervalGate_FirstCallAllowed(t *testing.T) {
	gate := NewIntervalGate()

	ok, remaining := gate.Gate(10*time.Second, false)
	if !ok {
		t.Error("Expected first call to be allowed")
	}
	if remaining != 0 {
		t.Errorf("Expected zero remaining, got %v", remaining)
	}
}

func TestIntervalGate_RefusesWithinInterval(t *testing.T) {
	gate := NewIntervalGate()

	if ok, _ := gate.Gate(10*time.Second, false); !ok {
		t.Fatal("Expected first call to be allowed")
	}

	ok, remaining := gate.Gate(10*time.Second, false)
	if ok {
		t.Error("Expected second immediate call to be refused")
	}
	if remaining <= 0 {
		t.Errorf("Expected positive remaining wait, got %v", remaining)
	}
	if remaining > 10*time.Second {
		t.Errorf("Remaining wait exceeds interval: %v", remaining)
	}
}

func TestIntervalGate_AllowsAfterInterval(t *testing.T) {
	gate := NewIntervalGate()

	if ok, _ := gate.Gate(50*time.Millisecond, false); !ok {
		t.Fatal("Expected first call to be allowed")
	}

	ok, remaining := gate.Gate(50*time.Millisecond, false)
	if ok {
		t.Fatal("Expected immediate second call to be refused")
	}

	time.Sleep(remaining + 10*time.Millisecond)

	if ok, _ := gate.Gate(50*time.Millisecond, false); !ok {
		t.Error("Expected call after remaining interval to be allowed")
	}
}

func TestIntervalGate_WaitSleepsOutInterval(t *testing.T) {
	gate := NewIntervalGate()
	gate.Gate(80*time.Millisecond, false)

	start := time.Now()
	ok, remaining := gate.Gate(80*time.Millisecond, true)
	elapsed := time.Since(start)

	if !ok {
		t.Error("Expected waited call to be allowed")
	}
	if remaining != 0 {
		t.Errorf("Expected zero remaining after wait, got %v", remaining)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("Expected to sleep close to the interval, slept %v", elapsed)
	}
}

func TestIntervalGate_ZeroIntervalDisablesGating(t *testing.T) {
	gate := NewIntervalGate()

	for i := 0; i < 100; i++ {
		if ok, _ := gate.Gate(0, false); !ok {
			t.Fatal("Expected zero interval to disable gating")
		}
	}
}

func TestIntervalGate_ConcurrentAccess(t *testing.T) {
	gate := NewIntervalGate()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := gate.Gate(time.Minute, false); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Errorf("Expected exactly one concurrent call to be granted, got %d", allowed)
	}
}

func TestGates_PerProviderIsolation(t *testing.T) {
	gates := NewGates()

	a := gates.For("anthropic")
	b := gates.For("openai")

	if a == b {
		t.Fatal("Expected distinct gates per provider family")
	}
	if gates.For("anthropic") != a {
		t.Error("Expected stable gate per provider family")
	}

	// Gating one family must not affect the other.
	a.Gate(time.Minute, false)
	if ok, _ := b.Gate(time.Minute, false); !ok {
		t.Error("Expected sibling family to be unaffected")
	}
}
