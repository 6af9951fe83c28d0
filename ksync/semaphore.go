// Package ksync provides the small set of blocking primitives the kernel
// core is specified against: a counting Semaphore, a mutual-exclusion Lock,
// and a condition variable. Real NACHOS builds these on top of the
// scheduler's own ready/waiter queues so that P/Acquire/Wait actually
// deschedule the calling kernel thread rather than spin; since this
// simulation's "kernel threads" are goroutines, the same semantics fall out
// of a buffered channel and sync.Mutex without needing to hand-roll a
// scheduler-aware wait queue.
package ksync

import "sync"

// Semaphore is a classic counting semaphore: P blocks while the count is
// zero, V increments it and wakes one waiter. This is the primitive every
// disk-I/O completion in this kernel blocks on (spec.md §5, "every disk I/O
// blocks the caller on a semaphore that is raised by a simulated
// disk-completion interrupt").
type Semaphore struct {
	name string
	ch   chan struct{}
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(name string, count int) *Semaphore {
	s := &Semaphore{name: name, ch: make(chan struct{}, 1<<20)}
	for i := 0; i < count; i++ {
		s.ch <- struct{}{}
	}
	return s
}

// P waits for the semaphore to become available, decrementing its count.
func (s *Semaphore) P() { <-s.ch }

// V increments the semaphore's count, waking a waiter if one is blocked.
func (s *Semaphore) V() { s.ch <- struct{}{} }

// Lock is a simple mutual-exclusion lock, named for debuggability the way
// NACHOS names every Lock and Semaphore it constructs.
type Lock struct {
	name string
	mu   sync.Mutex
}

// NewLock creates a named lock.
func NewLock(name string) *Lock { return &Lock{name: name} }

// Acquire blocks until the lock is held by the caller.
func (l *Lock) Acquire() { l.mu.Lock() }

// Release releases a lock held by the caller.
func (l *Lock) Release() { l.mu.Unlock() }

// Condition is a condition variable associated with an external Lock, in
// the NACHOS style: the lock is a separate object, bound once at
// NewCondition, and Wait/Signal/Broadcast take no arguments.
type Condition struct {
	name string
	cond *sync.Cond
}

// NewCondition creates a condition variable guarded by lock.
func NewCondition(name string, lock *Lock) *Condition {
	return &Condition{name: name, cond: sync.NewCond(&lock.mu)}
}

// Wait releases the associated lock and blocks until Signal or Broadcast is
// called, then reacquires the lock before returning.
func (c *Condition) Wait() { c.cond.Wait() }

// Signal wakes one waiter, if any.
func (c *Condition) Signal() { c.cond.Signal() }

// Broadcast wakes every waiter.
func (c *Condition) Broadcast() { c.cond.Broadcast() }
