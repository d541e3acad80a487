package eventloop

import (
	"container/heap"
	"time"
)

// taskState tracks a scheduled task's lifecycle.
type taskState int

const (
	taskPending taskState = iota
	taskCanceled
	taskFired
)

// ScheduledTask is a timer registered with PostAt or PostDelayed.
// Loop-affine, like the methods that create it.
type ScheduledTask struct {
	loop       *Loop
	deadline   time.Time
	seq        uint64
	fn         func()
	background bool
	state      taskState
}

// Cancel withdraws the task if it has not fired yet. Canceling a fired or
// already-canceled task is a no-op. Once a task has been dispatched it runs
// to completion; there is no preemption.
func (t *ScheduledTask) Cancel() {
	if t.state != taskPending {
		return
	}
	t.state = taskCanceled
	t.fn = nil
	if !t.background {
		t.loop.activeTimers--
	}
}

// Deadline returns the scheduled fire time.
func (t *ScheduledTask) Deadline() time.Time {
	return t.deadline
}

// PostAt schedules task to run at deadline. The timer keeps Run alive until
// it fires or is canceled.
func (l *Loop) PostAt(deadline time.Time, task func()) *ScheduledTask {
	return l.schedule(deadline, task, false)
}

// PostDelayed schedules task to run after d. The timer keeps Run alive until
// it fires or is canceled.
func (l *Loop) PostDelayed(d time.Duration, task func()) *ScheduledTask {
	return l.schedule(l.clk.Now().Add(d), task, false)
}

// PostDelayedBackground schedules a timer that does not keep Run alive:
// when only background timers remain, Run exits and leaves them in place
// for a later Run to fire. Periodic maintenance (flush intervals, idle
// sweeps) belongs here.
func (l *Loop) PostDelayedBackground(d time.Duration, task func()) *ScheduledTask {
	return l.schedule(l.clk.Now().Add(d), task, true)
}

func (l *Loop) schedule(deadline time.Time, task func(), background bool) *ScheduledTask {
	l.timerSeq++
	st := &ScheduledTask{
		loop:       l,
		deadline:   deadline,
		seq:        l.timerSeq,
		fn:         task,
		background: background,
	}
	heap.Push(&l.timers, st)
	if !background {
		l.activeTimers++
	}
	return st
}

// fireDueTimers pops and runs every timer whose deadline has passed.
// Canceled entries are discarded lazily here.
func (l *Loop) fireDueTimers() {
	now := l.clk.Now()
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.state == taskCanceled {
			heap.Pop(&l.timers)
			continue
		}
		if next.deadline.After(now) {
			return
		}
		heap.Pop(&l.timers)
		next.state = taskFired
		if !next.background {
			l.activeTimers--
		}
		fn := next.fn
		next.fn = nil
		fn()
		l.timersFired++
	}
}

// peekTimer returns the earliest pending timer, discarding canceled heads.
func (l *Loop) peekTimer() (*ScheduledTask, bool) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.state == taskCanceled {
			heap.Pop(&l.timers)
			continue
		}
		return next, true
	}
	return nil, false
}

// dueTimer reports whether a pending timer has already come due.
func (l *Loop) dueTimer() bool {
	next, ok := l.peekTimer()
	return ok && !next.deadline.After(l.clk.Now())
}

// timerHeap is a min-heap ordered by deadline, then by registration order
// for equal deadlines.
type timerHeap []*ScheduledTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*ScheduledTask))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	st := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return st
}
