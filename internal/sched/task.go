// Package sched implements the task scheduler of spec.md §4.4: per-core
// priority run queues, the blocked-task list with absolute wakeups, task
// lifecycle (spawn/exit/join), and the lazy FPU switch on x86_64.
//
// Go has no user-mode context switch, so each Task's entry point runs on its
// own goroutine; only one goroutine per core is ever allowed to run at a
// time, enforced by a baton handed from PerCoreScheduler.switchTo to the
// chosen task's runSignal channel and back. That mirrors the arena-of-slots
// guidance in spec.md §9 ("an arena of task slots addressed by index is
// preferable to a shared<T> smart-pointer scheme") in spirit: tasks are
// plain structs linked by intrusive prev/next pointers and relinked while
// the scheduler mutex (standing in for "interrupts disabled") is held.
package sched

import (
	"fmt"
	"runtime"

	"github.com/hermit-os/kernel-go/internal/percore"
)

// TaskId is the spec.md §3 process-unique task identifier.
type TaskId uint32

// Priority is the spec.md §3 scheduling priority, 0..=30, higher preempts
// lower.
type Priority uint8

const (
	PriorityIdle   Priority = 0
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	MaxPriority    Priority = 30
)

func (p Priority) validate() error {
	if p > MaxPriority {
		return fmt.Errorf("sched: priority %d exceeds maximum %d", p, MaxPriority)
	}
	return nil
}

// TaskStatus is the spec.md §3/§4.4 lifecycle state.
type TaskStatus int

const (
	StatusInvalid TaskStatus = iota
	StatusReady
	StatusRunning
	StatusBlocked
	StatusFinished
	StatusIdle
)

func (s TaskStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusFinished:
		return "finished"
	case StatusIdle:
		return "idle"
	default:
		return "invalid"
	}
}

// TaskHandle is the detachable cross-core wakeup reference of spec.md §3.
type TaskHandle struct {
	ID       TaskId
	Priority Priority
	CoreID   int
}

// Task is the spec.md §3 scheduler entity. Exactly one of {run queue,
// blocked list, per-core "current" slot} owns it at a time; prev/next are
// the intrusive links used by whichever structure currently does.
type Task struct {
	ID       TaskId
	Priority Priority
	Status   TaskStatus
	CoreID   int

	Stacks *TaskStacks
	TLS    *TLSBlock

	// FPUState is the lazily saved/restored x86_64 xsave/fxsave area;
	// unused on AArch64 and RISC-V, which have no lazy-FPU scheme in this
	// spec.
	FPUState [512]byte

	entry func(arg any)
	arg   any

	exitCode    int
	joinWaiters []chan struct{}

	wakeupAt *int64 // absolute Unix nanoseconds; nil means indefinite

	runSignal chan struct{}
	sched     *PerCoreScheduler

	prev, next *Task
}

func newTask(id TaskId, entry func(arg any), arg any, prio Priority, core int) *Task {
	return &Task{
		ID:        id,
		Priority:  prio,
		Status:    StatusInvalid,
		CoreID:    core,
		entry:     entry,
		arg:       arg,
		runSignal: make(chan struct{}, 1),
	}
}

// start binds t to its owning scheduler and launches the goroutine that
// stands in for the context-switch trampoline of spec.md §4.4 step 4: "a
// context restore resumes in a trampoline that calls entry(arg) and, on
// return, calls exit(0)". The goroutine parks on its own runSignal until
// PerCoreScheduler.switchTo first hands it the baton.
func (t *Task) start(sched *PerCoreScheduler) {
	t.sched = sched
	go func() {
		// Pin this goroutine to its own OS thread and register that thread
		// as "core CoreID", so synch.NestedDisable/NestedEnable and
		// percore.Current resolve to the right Core even though this task
		// runs on a goroutine distinct from whichever one last held the
		// baton (spec.md §4.7's reserved-base-register has no Go
		// equivalent across goroutines otherwise). Tests that never call
		// percore.BindBSP/BindAP for this core simply leave percore
		// unexercised; the error is not fatal.
		runtime.LockOSThread()
		_, _ = percore.BindCurrentThreadToCore(sched.CoreID)
		<-t.runSignal
		if t.entry != nil {
			t.entry(t.arg)
		}
		sched.Exit(0)
	}()
}
