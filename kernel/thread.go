// Package kernel implements the syscall half of C5: a cooperative thread
// scheduler standing in for NACHOS's Thread/Scheduler pair (Fork, Yield,
// Join and Finish; there is no separate Sleep primitive), and the
// dispatcher that services SyscallException and PageFaultException traps by
// delegating to filesys, vm and machine. Grounded on
// original_source/code/userprog/exception.cc and on the goroutine-actor
// idiom fs/server.go uses for the teacher's own FileSystem loop.
package kernel

import (
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/filesys"
	"github.com/jnwhiteh/nachosfs/vm"
)

// Thread is one kernel thread: a saved address space, an open-file table
// (fd 0 and 1 reserved for stdin/stdout per spec.md §4.5's syscall table),
// and the fork/join bookkeeping spec.md §4.5 and §9 describe (a per-thread
// child list, a waiter list woken on Finish). It holds no turn token of its
// own -- Scheduler grants the CPU by way of a single condition variable
// every thread's goroutine blocks on, per spec.md §5's "Condition::Wait may
// suspend".
type Thread struct {
	ID       int
	AS       *vm.AddressSpace
	PFSvc    *vm.PageFaultService
	fds      [config.FDNumber]*filesys.OpenFile
	parent   *Thread
	children map[int]*Thread

	exited   bool
	exitCode int32
	waiters  []*Thread
}

// Fd returns the open file bound to fd, or nil if the slot is empty or out
// of range.
func (t *Thread) Fd(fd int) *filesys.OpenFile {
	if fd < 0 || fd >= config.FDNumber {
		return nil
	}
	return t.fds[fd]
}

// allocFd finds the lowest free descriptor at or above 2 (0 and 1 are
// reserved for stdin/stdout) and binds of to it, per exception.cc's
// linear "for (i = 2; i < FdNumber...)" scan.
func (t *Thread) allocFd(of *filesys.OpenFile) int {
	for i := 2; i < config.FDNumber; i++ {
		if t.fds[i] == nil {
			t.fds[i] = of
			return i
		}
	}
	return -1
}
