package eventloop

import (
	"sync"
	"testing"
	"time"
)

func TestLoop_Run_EmptyLoopReturns(t *testing.T) {
	l := New()

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on an empty loop")
	}
}

func TestLoop_Post_RunsTasksInOrder(t *testing.T) {
	l := New()

	var got []int
	for i := 1; i <= 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Run()

	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("ran %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("task order = %v, want %v", got, want)
		}
	}
}

func TestLoop_Post_DuringTickRunsNextTick(t *testing.T) {
	l := New()

	var order []string
	l.Post(func() {
		order = append(order, "first")
		l.Post(func() { order = append(order, "nested") })
	})
	l.Post(func() { order = append(order, "second") })
	l.Run()

	want := []string{"first", "second", "nested"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if l.Ticks() < 2 {
		t.Errorf("Ticks() = %d, want >= 2 (nested task defers to a later tick)", l.Ticks())
	}
}

func TestLoop_Execute_FromOtherGoroutine(t *testing.T) {
	l := New()

	ran := false
	release := l.KeepAlive()
	go func() {
		l.Execute(func() { ran = true })
		release()
	}()
	l.Run()

	if !ran {
		t.Fatal("externally submitted task did not run")
	}
}

func TestLoop_Execute_PreservesSubmissionOrder(t *testing.T) {
	l := New()

	var mu sync.Mutex
	var got []int
	release := l.KeepAlive()
	go func() {
		for i := 1; i <= 10; i++ {
			i := i
			l.Execute(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			})
		}
		release()
	}()
	l.Run()

	if len(got) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(got))
	}
	for i := range got {
		if got[i] != i+1 {
			t.Fatalf("execution order = %v, want ascending", got)
		}
	}
}

func TestLoop_KeepAlive_HoldsRunOpen(t *testing.T) {
	l := New()

	release := l.KeepAlive()
	exited := make(chan struct{})
	go func() {
		l.Run()
		close(exited)
	}()

	select {
	case <-exited:
		t.Fatal("Run exited while a keep-alive was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after keep-alive release")
	}
}

func TestLoop_KeepAlive_ReleaseIsIdempotent(t *testing.T) {
	l := New()

	release := l.KeepAlive()
	release()
	release() // second call must not unbalance the count

	other := l.KeepAlive()
	exited := make(chan struct{})
	go func() {
		l.Run()
		close(exited)
	}()

	select {
	case <-exited:
		t.Fatal("Run exited while the second keep-alive was held")
	case <-time.After(50 * time.Millisecond):
	}
	other()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit")
	}
}

func TestLoop_Run_PicksUpWorkSubmittedBetweenRuns(t *testing.T) {
	l := New()
	l.Run()

	ran := false
	l.Execute(func() { ran = true })
	l.Run()

	if !ran {
		t.Fatal("task submitted between runs did not execute")
	}
}

func TestLoop_Counters(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Post(func() {})
	}
	l.Run()

	if l.TasksExecuted() != 3 {
		t.Errorf("TasksExecuted() = %d, want 3", l.TasksExecuted())
	}
	if l.Ticks() == 0 {
		t.Error("Ticks() = 0, want > 0")
	}
}
