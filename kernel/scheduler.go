package kernel

import (
	"errors"

	"github.com/jnwhiteh/nachosfs/ksync"
)

// ErrNotMyChild is returned when Join names a thread id that is not among
// the caller's own children (spec.md §4.5: "a parent may join only its own
// children").
var ErrNotMyChild = errors.New("kernel: not my child")

// Scheduler is the cooperative single-thread-at-a-time scheduler spec.md §5
// and §6 describe: at most one Thread's goroutine is ever runnable. Every
// other thread's goroutine is parked in awaitTurn, blocked on cond, which is
// broadcast whenever current changes or a thread exits -- spec.md §5 lists
// Condition::Wait itself as a suspension point, so the CPU-grant mechanism
// is built on one directly rather than on a semaphore per thread.
type Scheduler struct {
	mu      *ksync.Lock
	cond    *ksync.Condition
	current *Thread
	nextID  int
	ready   []*Thread
	threads map[int]*Thread
}

// New creates an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{mu: ksync.NewLock("scheduler"), threads: make(map[int]*Thread)}
	s.cond = ksync.NewCondition("scheduler", s.mu)
	return s
}

// NewMainThread registers and returns the first thread, already runnable,
// without going through the ready queue -- the analogue of NACHOS's
// statically-constructed initial thread.
func (s *Scheduler) NewMainThread() *Thread {
	s.mu.Acquire()
	defer s.mu.Release()
	t := &Thread{ID: s.nextID, children: make(map[int]*Thread)}
	s.nextID++
	s.threads[t.ID] = t
	s.current = t
	return t
}

// schedule pops the front of the ready queue, if any, grants it the CPU,
// and wakes every goroutine parked in awaitTurn so it can recheck whether
// it is now the one scheduled. Callers must hold mu.
func (s *Scheduler) schedule() {
	if len(s.ready) == 0 {
		s.current = nil
	} else {
		s.current = s.ready[0]
		s.ready = s.ready[1:]
	}
	s.cond.Broadcast()
}

// awaitTurn blocks the calling goroutine until t is the scheduled thread.
// Callers must hold mu; Condition.Wait releases it while parked and
// reacquires it before returning.
func (s *Scheduler) awaitTurn(t *Thread) {
	for s.current != t {
		s.cond.Wait()
	}
}

// Fork creates a child of parent, adds it to the ready queue, and starts a
// goroutine that blocks until the scheduler grants it a turn before running
// body -- the "clone current address space... schedule the child to run"
// contract of spec.md §4.5. Fork does not yield the parent's own turn: the
// parent keeps running until its next Yield/Join/Finish.
func (s *Scheduler) Fork(parent *Thread, body func(child *Thread)) *Thread {
	s.mu.Acquire()
	child := &Thread{
		ID:       s.nextID,
		parent:   parent,
		children: make(map[int]*Thread),
	}
	s.nextID++
	s.threads[child.ID] = child
	if parent != nil {
		parent.children[child.ID] = child
	}
	s.ready = append(s.ready, child)
	s.mu.Release()

	go func() {
		s.mu.Acquire()
		s.awaitTurn(child)
		s.mu.Release()
		body(child)
	}()
	return child
}

// Yield voluntarily relinquishes the CPU, re-joining the ready queue behind
// any other runnable thread, and blocks until scheduled again.
func (s *Scheduler) Yield(t *Thread) {
	s.mu.Acquire()
	defer s.mu.Release()
	s.ready = append(s.ready, t)
	s.schedule()
	s.awaitTurn(t)
}

// Finish marks t exited with the given status, wakes every thread waiting
// to Join it, and hands the CPU to the next ready thread. The caller's
// goroutine is expected to return immediately afterward -- Finish never
// grants t another turn.
func (s *Scheduler) Finish(t *Thread, status int32) {
	s.mu.Acquire()
	defer s.mu.Release()
	t.exited = true
	t.exitCode = status
	woken := t.waiters
	t.waiters = nil
	s.ready = append(s.ready, woken...)
	s.schedule()
}

// Join blocks the calling thread until its child named by childID has
// called Finish, returning that child's exit status.
func (s *Scheduler) Join(t *Thread, childID int) (int32, error) {
	s.mu.Acquire()
	defer s.mu.Release()

	child, ok := t.children[childID]
	if !ok {
		return 0, ErrNotMyChild
	}
	if !child.exited {
		child.waiters = append(child.waiters, t)
		s.schedule()
		s.awaitTurn(t)
	}
	code := child.exitCode
	delete(t.children, childID)
	return code, nil
}
