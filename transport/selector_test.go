package transport

import (
	"errors"
	"testing"
	"time"
)

func TestSelector_RoundRobinCycles(t *testing.T) {
	s := NewSelector()
	pool := &Pool{Name: "collectors", Endpoints: []string{"a:1", "b:1", "c:1"}}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"a:1", "b:1", "c:1", "a:1", "b:1", "c:1"}
	for i, w := range want {
		got, err := s.Select("collectors", "")
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if got != w {
			t.Errorf("select %d = %q, want %q", i, got, w)
		}
	}
}

func TestSelector_RandomStaysWithinPool(t *testing.T) {
	s := NewSelector()
	pool := &Pool{Name: "p", Endpoints: []string{"a:1", "b:1"}, Strategy: StrategyRandom}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	members := map[string]bool{"a:1": true, "b:1": true}
	for i := 0; i < 20; i++ {
		got, err := s.Select("p", "")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if !members[got] {
			t.Fatalf("selected %q outside the pool", got)
		}
	}
}

func TestSelector_StickyPinsKeyToEndpoint(t *testing.T) {
	s := NewSelector()
	pool := &Pool{Name: "p", Endpoints: []string{"a:1", "b:1"}, Strategy: StrategySticky}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := s.Select("p", "pipe-1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := s.Select("p", "pipe-1")
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if got != first {
			t.Fatalf("sticky key moved from %q to %q", first, got)
		}
	}

	second, err := s.Select("p", "pipe-2")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if second == first {
		t.Errorf("distinct keys share endpoint %q under round-robin assignment", second)
	}
}

func TestSelector_StickyTTLExpiresAssignment(t *testing.T) {
	s := NewSelector()
	pool := &Pool{
		Name:      "p",
		Endpoints: []string{"a:1", "b:1"},
		Strategy:  StrategySticky,
		StickyTTL: time.Millisecond,
	}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := s.Select("p", "k")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	second, err := s.Select("p", "k")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	// Expiry re-runs round-robin assignment, which has advanced.
	if second == first {
		t.Errorf("expired assignment still pinned to %q", first)
	}
}

func TestSelector_StickyWithoutKeyFails(t *testing.T) {
	s := NewSelector()
	pool := &Pool{Name: "p", Endpoints: []string{"a:1"}, Strategy: StrategySticky}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Select("p", ""); !errors.Is(err, ErrStickyKeyRequired) {
		t.Fatalf("error = %v, want %v", err, ErrStickyKeyRequired)
	}
}

func TestSelector_UnknownPoolFails(t *testing.T) {
	s := NewSelector()
	if _, err := s.Select("nope", ""); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrPoolNotFound)
	}
}

func TestPool_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pool    Pool
		wantErr bool
	}{
		{"valid defaults", Pool{Name: "p", Endpoints: []string{"a:1"}}, false},
		{"valid sticky", Pool{Name: "p", Endpoints: []string{"a:1"}, Strategy: StrategySticky}, false},
		{"missing name", Pool{Endpoints: []string{"a:1"}}, true},
		{"no endpoints", Pool{Name: "p"}, true},
		{"unknown strategy", Pool{Name: "p", Endpoints: []string{"a:1"}, Strategy: "latency"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pool.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
