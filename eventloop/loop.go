// Package eventloop provides the single-threaded cooperative run loop that
// drives every other component in this module.
//
// One goroutine owns a Loop and calls Run; tasks, timers, promise
// continuations and I/O completions all execute there, one after another,
// so no other synchronization exists anywhere above this package.
//
// Thread contract:
//   - Post, PostAt, PostDelayed and task cancellation are loop-affine:
//     call them only from code already running on the loop.
//   - Execute is the goroutine-safe entry point. Bridge goroutines
//     (socket reads, blocking sink writes) hand results back with it.
//   - KeepAlive holds Run open while off-loop work is in flight.
//
// Run returns when no work remains: task queues empty, no pending
// foreground timers, and no keep-alives held. Background timers (periodic
// maintenance such as batch flush intervals) do not keep the loop alive.
package eventloop

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/justapithecus/sluice/log"
)

// Loop is a single-threaded cooperative task scheduler.
//
// A zero Loop is not usable; construct with New.
type Loop struct {
	clk    clock.Clock
	logger *log.Logger
	name   string

	// local is the task queue for the current and upcoming ticks.
	// Loop-goroutine only.
	local []func()

	// mu guards external, keep and wake coordination with other goroutines.
	mu       sync.Mutex
	external []func()
	keep     int
	wake     chan struct{}

	timers       timerHeap
	timerSeq     uint64
	activeTimers int // pending foreground timers

	ticks       uint64
	tasksDone   uint64
	timersFired uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the time source. Tests use clock.NewMock to drive timers
// deterministically.
func WithClock(clk clock.Clock) Option {
	return func(l *Loop) { l.clk = clk }
}

// WithLogger sets the logger used for loop lifecycle and suppressed-error
// traces. Defaults to a no-op logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithName labels the loop in log output.
func WithName(name string) Option {
	return func(l *Loop) { l.name = name }
}

// New creates a loop. The caller's goroutine becomes the loop goroutine the
// moment it calls Run.
func New(opts ...Option) *Loop {
	l := &Loop{
		clk:    clock.New(),
		logger: log.NewNop(),
		name:   "eventloop",
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues task for execution on the next run-loop tick, FIFO relative
// to other posted tasks. Loop-goroutine only; from other goroutines use
// Execute.
func (l *Loop) Post(task func()) {
	l.local = append(l.local, task)
}

// Execute enqueues task from any goroutine and wakes the loop if it is
// sleeping. Tasks submitted with Execute run in submission order, interleaved
// at tick boundaries with locally posted tasks.
func (l *Loop) Execute(task func()) {
	l.mu.Lock()
	l.external = append(l.external, task)
	l.mu.Unlock()
	l.wakeUp()
}

// KeepAlive holds the loop open until the returned release func is called.
// Bridges acquire one before starting off-loop work so Run does not exit
// while a completion is still on its way in. Release is idempotent and
// goroutine-safe.
func (l *Loop) KeepAlive() (release func()) {
	l.mu.Lock()
	l.keep++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.keep--
			l.mu.Unlock()
			l.wakeUp()
		})
	}
}

// Run executes tasks and fires timers until no work remains. It may be
// called again after it returns; externally submitted tasks that arrived
// in between are picked up then.
func (l *Loop) Run() {
	l.logger.Debug("loop running", map[string]any{"loop": l.name})
	for {
		l.ticks++
		l.migrateExternal()
		l.fireDueTimers()

		// Snapshot the queue: tasks posted while running belong to the
		// next tick, which keeps timer dispatch from being starved by
		// task chains.
		tasks := l.local
		l.local = nil
		for _, task := range tasks {
			task()
			l.tasksDone++
		}

		if len(l.local) > 0 {
			continue
		}
		if l.idleOrSleep() {
			break
		}
	}
	l.logger.Debug("loop idle", map[string]any{
		"loop":   l.name,
		"ticks":  l.ticks,
		"tasks":  l.tasksDone,
		"timers": l.timersFired,
	})
}

// idleOrSleep decides what to do with an empty task queue: return true to
// stop Run, or block until new work arrives and return false.
func (l *Loop) idleOrSleep() (stop bool) {
	l.mu.Lock()
	if len(l.external) > 0 {
		l.mu.Unlock()
		return false
	}
	keep := l.keep
	l.mu.Unlock()

	if l.dueTimer() {
		return false
	}
	if l.activeTimers == 0 && keep == 0 {
		// Abandoned background timers stay in the heap; a later Run
		// fires any that have come due by then.
		return true
	}

	l.sleep()
	return false
}

// sleep blocks until the wake channel fires or the earliest pending timer
// comes due.
func (l *Loop) sleep() {
	var timerC <-chan time.Time
	if next, ok := l.peekTimer(); ok {
		d := next.deadline.Sub(l.clk.Now())
		if d <= 0 {
			return
		}
		timer := l.clk.Timer(d)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-l.wake:
	case <-timerC:
	}
}

// wakeUp nudges a sleeping Run. Non-blocking; coalesces with an already
// pending wake.
func (l *Loop) wakeUp() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// migrateExternal moves externally submitted tasks onto the local queue.
func (l *Loop) migrateExternal() {
	l.mu.Lock()
	tasks := l.external
	l.external = nil
	l.mu.Unlock()
	l.local = append(l.local, tasks...)
}

// Logger returns the loop's logger; never nil.
func (l *Loop) Logger() *log.Logger {
	return l.logger
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clk.Now()
}

// Ticks reports completed run-loop ticks. Loop-affine; read it from the
// loop goroutine or after Run returns.
func (l *Loop) Ticks() uint64 { return l.ticks }

// TasksExecuted reports tasks run to completion. Loop-affine.
func (l *Loop) TasksExecuted() uint64 { return l.tasksDone }

// TimersFired reports timers dispatched. Loop-affine.
func (l *Loop) TimersFired() uint64 { return l.timersFired }
