package sched

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hermit-os/kernel-go/internal/percore"
)

// Timer is the one-shot deadline timer spec.md §4.3 describes ("arms a
// per-core deadline"); each internal/arch/* package supplies the concrete
// APIC/GICv3-timer/SBI implementation. SetOneshot(nil) disarms.
type Timer interface {
	SetOneshot(deadlineNanos *int64)
}

// NoopTimer discards arm/disarm requests; HandleWaitingTasks must then be
// driven explicitly by the caller (Reschedule does not call it), which is
// exactly what package sched's tests do to keep scheduling deterministic.
type NoopTimer struct{}

func (NoopTimer) SetOneshot(*int64) {}

var (
	taskTableMu sync.Mutex
	taskTable   = map[TaskId]*Task{}
	nextID      TaskId
	freedIDs    []TaskId
)

func allocateTaskID() TaskId {
	taskTableMu.Lock()
	defer taskTableMu.Unlock()
	if n := len(freedIDs); n > 0 {
		id := freedIDs[n-1]
		freedIDs = freedIDs[:n-1]
		return id
	}
	nextID++
	return nextID
}

func registerTask(t *Task) {
	taskTableMu.Lock()
	defer taskTableMu.Unlock()
	taskTable[t.ID] = t
}

func unregisterTask(id TaskId) {
	taskTableMu.Lock()
	defer taskTableMu.Unlock()
	delete(taskTable, id)
	freedIDs = append(freedIDs, id)
}

// LookupTask finds a task by id across every core, under the global
// task-table lock of spec.md §5.
func LookupTask(id TaskId) (*Task, bool) {
	taskTableMu.Lock()
	defer taskTableMu.Unlock()
	t, ok := taskTable[id]
	return t, ok
}

// PerCoreScheduler is the spec.md §3/§4.4 scheduler entity: one per core,
// accessed only by its owning core with local interrupts disabled except
// for the remote input queue, which other cores push onto under remoteMu
// (see pushRemote).
type PerCoreScheduler struct {
	CoreID int
	Logger *slog.Logger
	Timer  Timer

	mu      sync.Mutex
	ready   priorityQueue
	blocked blockedQueue
	current *Task
	idle    *Task

	// fpuOwner tracks which task's FPU state is currently live in hardware
	// registers, x86_64 lazy-FPU switch only (spec.md §4.4).
	fpuOwner *Task

	finished []*Task

	remoteMu    sync.Mutex
	remoteInput []*Task
}

// NewPerCoreScheduler creates a scheduler for coreID with its idle task
// already standing up, per spec.md §4.4 ("current and idle are always
// populated").
func NewPerCoreScheduler(coreID int, idleEntry func(arg any)) *PerCoreScheduler {
	idle := newTask(allocateTaskID(), idleEntry, nil, PriorityIdle, coreID)
	idle.Status = StatusIdle
	registerTask(idle)

	s := &PerCoreScheduler{
		CoreID:  coreID,
		Logger:  slog.Default(),
		Timer:   NoopTimer{},
		current: idle,
		idle:    idle,
	}
	idle.start(s)
	// idle is already "current" from construction -- no switchTo ever ran
	// to hand it the baton, so pre-load one token as if it had.
	idle.runSignal <- struct{}{}
	return s
}

// Current returns the task presently running on this core.
func (s *PerCoreScheduler) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Spawn implements spec.md §4.4's spawn operation.
func (s *PerCoreScheduler) Spawn(entry func(arg any), arg any, prio Priority, coreID int) (TaskId, error) {
	if err := prio.validate(); err != nil {
		return 0, err
	}
	t := newTask(allocateTaskID(), entry, arg, prio, coreID)
	t.Status = StatusReady
	registerTask(t)

	if coreID == s.CoreID {
		t.start(s)
		s.mu.Lock()
		s.ready.push(t)
		s.mu.Unlock()
	} else {
		target, ok := percore.ByID(coreID)
		if !ok {
			return 0, fmt.Errorf("sched: spawn: core %d is not bound", coreID)
		}
		sch, ok := target.Scheduler.(*PerCoreScheduler)
		if !ok {
			return 0, fmt.Errorf("sched: spawn: core %d has no scheduler bound", coreID)
		}
		t.start(sch)
		sch.pushRemote(t)
		// spec.md §4.4 step 5: "send a wakeup IPI" -- modeled as an
		// immediate cross-goroutine notification rather than a literal
		// interrupt vector; see internal/interrupts for the vector-level
		// contract this stands in for.
		sch.WakeupIPI()
	}
	return t.ID, nil
}

func (s *PerCoreScheduler) pushRemote(t *Task) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	s.remoteInput = append(s.remoteInput, t)
}

// drainRemoteLocked moves every task waiting in the remote input queue into
// the local ready queue. Must be called with s.mu held; spec.md §9
// supplement: drained only at reschedule time, never asynchronously from
// the IPI handler.
func (s *PerCoreScheduler) drainRemoteLocked() {
	s.remoteMu.Lock()
	pending := s.remoteInput
	s.remoteInput = nil
	s.remoteMu.Unlock()
	for _, t := range pending {
		s.ready.push(t)
	}
}

// wakeupSignal is a single package-wide one-slot channel that WakeupIPI
// posts a token into. Nothing in this package receives from it.
var wakeupSignal = struct {
	mu sync.Mutex
	ch chan struct{}
}{ch: make(chan struct{}, 1)}

// WakeupIPI stands in for spec.md §4.3 wakeup_core(core). It only posts a
// token into wakeupSignal (dropped if one is already pending) and does not
// reach the target core's idle task; that core picks up remotely spawned
// tasks the next time its own idle loop calls Reschedule.
func (s *PerCoreScheduler) WakeupIPI() {
	select {
	case wakeupSignal.ch <- struct{}{}:
	default:
	}
}

// reschedule is the internal implementation of spec.md §4.4's Reschedule,
// shared by the timer-tick entry point and by transitions away from
// Running. outgoingStatus is the status the current task should take before
// a replacement is chosen; pass StatusRunning to mean "no forced
// transition, just check for preemption".
func (s *PerCoreScheduler) reschedule(outgoingStatus TaskStatus, wakeup *int64) {
	s.mu.Lock()
	s.drainFinishedLocked()
	s.drainRemoteLocked()

	cur := s.current

	switch outgoingStatus {
	case StatusRunning:
		if cur.Status == StatusRunning {
			top := s.ready.highestNonEmpty()
			if top < 0 || Priority(top) <= cur.Priority {
				s.mu.Unlock()
				return
			}
			cur.Status = StatusReady
			s.ready.push(cur)
		}
	case StatusBlocked:
		cur.Status = StatusBlocked
		s.blocked.add(cur, wakeup)
		s.rearmTimerLocked()
	case StatusFinished:
		cur.Status = StatusFinished
		s.finished = append(s.finished, cur)
	}

	next := s.ready.pop()
	if next == nil {
		next = s.idle
	}
	s.current = next
	next.Status = StatusRunning
	s.mu.Unlock()

	if next == cur {
		return
	}
	s.switchTo(cur, next, outgoingStatus)
}

// switchTo hands the baton to next and, unless cur has finished, parks cur
// until it is resumed. This stands in for the architecture-specific context
// switch of spec.md §4.4 step 4; the FPU lazy-switch bookkeeping happens
// here, matching "optionally skipping the FPU save/restore if the
// replacement equals the FPU owner".
func (s *PerCoreScheduler) switchTo(cur, next *Task, outgoingStatus TaskStatus) {
	next.runSignal <- struct{}{}
	if outgoingStatus == StatusFinished {
		return
	}
	<-cur.runSignal
}

// Reschedule is the tick/yield entry point of spec.md §4.4, called with
// interrupts disabled (from the timer handler, an explicit yield, or any
// other preemption point).
func (s *PerCoreScheduler) Reschedule() {
	s.reschedule(StatusRunning, nil)
}

// Yield cooperatively gives up the CPU at equal priority by forcing a
// switch regardless of the preemption comparison -- used when a task wants
// to let same-priority siblings run (spec.md §1 Non-goals: "cooperative
// rescheduling on the same priority is allowed").
func (s *PerCoreScheduler) Yield() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == s.idle {
		s.Reschedule()
		return
	}
	s.forceSwitch(StatusReady, nil)
}

func (s *PerCoreScheduler) forceSwitch(status TaskStatus, wakeup *int64) {
	s.mu.Lock()
	s.drainFinishedLocked()
	s.drainRemoteLocked()
	cur := s.current
	cur.Status = status
	switch status {
	case StatusReady:
		s.ready.push(cur)
	case StatusBlocked:
		s.blocked.add(cur, wakeup)
		s.rearmTimerLocked()
	}
	next := s.ready.pop()
	if next == nil {
		next = s.idle
	}
	s.current = next
	next.Status = StatusRunning
	s.mu.Unlock()

	if next == cur {
		return
	}
	s.switchTo(cur, next, status)
}

// BlockCurrentTask implements spec.md §4.4's block_current_task: the
// current task transitions to Blocked, optionally with an absolute wakeup
// deadline (nil means indefinite).
func (s *PerCoreScheduler) BlockCurrentTask(wakeupNanos *int64) {
	s.forceSwitch(StatusBlocked, wakeupNanos)
}

// Block implements synch.Blocker so package synch's Futex can suspend a
// task without importing package sched.
func (s *PerCoreScheduler) Block(deadline time.Time, wake <-chan struct{}) {
	var dl *int64
	if !deadline.IsZero() {
		n := deadline.UnixNano()
		dl = &n
	}
	task := s.Current()
	if wake != nil {
		go func() {
			<-wake
			s.WakeTask(task)
		}()
	}
	s.BlockCurrentTask(dl)
}

// WakeTask moves t from Blocked to Ready immediately, ahead of its
// deadline, per spec.md §4.5's custom-wakeup used by futex_wake. If t is
// not presently blocked (already woken, or finished), this is a no-op.
func (s *PerCoreScheduler) WakeTask(t *Task) {
	if t.CoreID != s.CoreID {
		target, ok := percore.ByID(t.CoreID)
		if !ok {
			return
		}
		if sch, ok := target.Scheduler.(*PerCoreScheduler); ok {
			sch.WakeTask(t)
		}
		return
	}
	s.mu.Lock()
	if !s.blocked.remove(t) {
		s.mu.Unlock()
		return
	}
	t.Status = StatusReady
	s.ready.push(t)
	s.rearmTimerLocked()
	s.mu.Unlock()
}

// rearmTimerLocked reprograms the one-shot timer to the blocked list's new
// head, or disarms it if empty, per spec.md §4.4. Must hold s.mu.
func (s *PerCoreScheduler) rearmTimerLocked() {
	s.Timer.SetOneshot(s.blocked.nextWakeup())
}

// HandleWaitingTasks drains every blocked-list entry whose deadline has
// elapsed back into the run queue and reprograms the timer, per spec.md
// §4.4.
func (s *PerCoreScheduler) HandleWaitingTasks(nowNanos int64) {
	s.mu.Lock()
	elapsed := s.blocked.drainElapsed(nowNanos)
	for _, t := range elapsed {
		t.Status = StatusReady
		s.ready.push(t)
	}
	s.rearmTimerLocked()
	s.mu.Unlock()
}

func (s *PerCoreScheduler) drainFinishedLocked() {
	if len(s.finished) == 0 {
		return
	}
	for _, t := range s.finished {
		t.Stacks.Free()
		t.TLS.Free()
		unregisterTask(t.ID)
		for _, w := range t.joinWaiters {
			close(w)
		}
	}
	s.finished = nil
}

// Exit implements spec.md §4.4's exit(code): the current task becomes
// Finished and is never scheduled again; its resources are reclaimed the
// next time the owning core drains the finished list.
func (s *PerCoreScheduler) Exit(code int) {
	s.mu.Lock()
	s.current.exitCode = code
	s.mu.Unlock()
	s.reschedule(StatusFinished, nil)
}

// Join implements spec.md §4.4's join(id): parks the caller until the
// target task exits, then returns its exit code.
func (s *PerCoreScheduler) Join(id TaskId) (int, error) {
	t, ok := LookupTask(id)
	if !ok {
		return 0, fmt.Errorf("sched: join: task %d not found", id)
	}
	done := make(chan struct{})
	s.mu.Lock()
	t.joinWaiters = append(t.joinWaiters, done)
	s.mu.Unlock()

	s.Block(time.Time{}, done)
	return t.exitCode, nil
}

// FPUOwnerSwitch implements spec.md §4.4's lazy FPU switch: on a "device not
// available" exception, save the current owner's state and make cur the new
// owner, returning whether a save/restore was necessary.
func (s *PerCoreScheduler) FPUOwnerSwitch(cur *Task, save, restore func(t *Task)) (switched bool) {
	s.mu.Lock()
	owner := s.fpuOwner
	s.fpuOwner = cur
	s.mu.Unlock()

	if owner == cur {
		return false
	}
	if owner != nil {
		save(owner)
	}
	restore(cur)
	return true
}

// highestReadyPriority reports the highest priority that has a ready task,
// or -1 if the ready queue is empty, used by tests asserting the MSB-bitmap
// invariant (spec.md §8 property 3).
func (s *PerCoreScheduler) highestReadyPriority() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.highestNonEmpty()
}
