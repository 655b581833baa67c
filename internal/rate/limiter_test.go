package rate

import (
	"testing"
	"time"
)

func TestFixedWindow(t *testing.T) {
	current := time.Unix(1000, 0)
	m := NewMemory()
	m.now = func() time.Time { return current }
	rule := PerMinute(2)

	for i := 0; i < 2; i++ {
		if ok, _ := m.Allow("claim:0xabc", rule); !ok {
			t.Fatalf("call %d should pass", i)
		}
	}
	ok, retry := m.Allow("claim:0xabc", rule)
	if ok || retry != time.Minute {
		t.Fatalf("expected refusal with 1m retry, got %v %v", ok, retry)
	}
	if ok, _ := m.Allow("claim:0xdef", rule); !ok {
		t.Fatalf("other keys keep their own budget")
	}

	current = current.Add(time.Minute)
	if ok, _ := m.Allow("claim:0xabc", rule); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestDisabledRule(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 100; i++ {
		if ok, _ := m.Allow("k", Rule{}); !ok {
			t.Fatalf("zero rule must not limit")
		}
	}
}

func TestSweep(t *testing.T) {
	current := time.Unix(1000, 0)
	m := NewMemory()
	m.now = func() time.Time { return current }
	m.Allow("a", PerMinute(1))
	m.Allow("b", Rule{Limit: 1, Window: time.Hour})

	current = current.Add(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
}
