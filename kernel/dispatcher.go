package kernel

import (
	"errors"
	"io"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/filesys"
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/vm"
)

// ErrHalt is returned by Dispatch when the user program calls Halt; the
// (out-of-scope) CPU simulator driving Dispatch is expected to stop feeding
// it instructions once it sees this.
var ErrHalt = errors.New("kernel: halt")

// ErrThreadFinished is returned by Dispatch after an Exit syscall. The
// thread's Scheduler.Finish call may already have handed the CPU to
// another ready thread's goroutine by the time Dispatch would otherwise
// advance PC/NextPC, so Dispatch skips that step entirely rather than race
// with whichever thread now holds the turn.
var ErrThreadFinished = errors.New("kernel: thread finished")

// ErrBadFd is returned by Read/Write/Close for a descriptor with nothing
// bound to it.
var ErrBadFd = errors.New("kernel: bad file descriptor")

// readerAtOpenFile adapts filesys.OpenFile's int-offset ReadAt to the
// io.ReaderAt vm.New requires to load an executable's NOFF segments.
type readerAtOpenFile struct{ of *filesys.OpenFile }

func (r readerAtOpenFile) ReadAt(p []byte, off int64) (int, error) {
	return r.of.ReadAt(p, int(off))
}

// Dispatcher services SyscallException and PageFaultException traps,
// delegating file I/O to a FileSystem, process lifecycle to a Scheduler,
// and paging to each thread's own PageFaultService. Grounded on
// exception.cc's ExceptionHandler.
//
// RunUser, when set, is handed a freshly forked or exec'd child thread and
// its now-current machine state; it stands in for the out-of-scope CPU
// simulator actually executing that thread's instructions. When nil, a
// forked or exec'd child runs no instructions and finishes immediately
// with status 0 -- enough to exercise fork/join ordering without an
// instruction-set simulator.
type Dispatcher struct {
	fs     *filesys.FileSystem
	sched  *Scheduler
	stdout io.Writer

	RunUser func(m *machine.Machine, t *Thread)
}

// NewDispatcher builds a dispatcher over fs and sched, writing fd-1 output
// to stdout.
func NewDispatcher(fs *filesys.FileSystem, sched *Scheduler, stdout io.Writer) *Dispatcher {
	return &Dispatcher{fs: fs, sched: sched, stdout: stdout}
}

// Dispatch services one trap for thread t against the machine, which must
// already have t's address space RestoreState-installed.
func (d *Dispatcher) Dispatch(m *machine.Machine, t *Thread, which ExceptionType) error {
	if which == PageFaultException {
		addr := int(m.ReadRegister(config.BadVAddrReg))
		return t.PFSvc.Service(t.AS, addr)
	}

	curPC := m.ReadRegister(config.PCReg)
	err := d.dispatchSyscall(m, t)
	if err == ErrHalt || err == ErrThreadFinished {
		return err
	}
	m.WriteRegister(config.PCReg, curPC+4)
	m.WriteRegister(config.NextPCReg, curPC+8)
	return err
}

func (d *Dispatcher) dispatchSyscall(m *machine.Machine, t *Thread) error {
	switch m.ReadRegister(2) {
	case SCHalt:
		return ErrHalt

	case SCExit:
		d.sched.Finish(t, m.ReadRegister(4))
		return ErrThreadFinished

	case SCCreate:
		name := getString(m, t.AS, t.PFSvc, int(m.ReadRegister(4)))
		if err := d.fs.Create(name, 0, config.Regular); err != nil {
			m.WriteRegister(2, -1)
		} else {
			m.WriteRegister(2, 0)
		}
		return nil

	case SCOpen:
		name := getString(m, t.AS, t.PFSvc, int(m.ReadRegister(4)))
		of, err := d.fs.Open(name)
		if err != nil {
			m.WriteRegister(2, -1)
			return nil
		}
		fd := t.allocFd(of)
		if fd == -1 {
			of.Close()
			m.WriteRegister(2, -1)
			return nil
		}
		m.WriteRegister(2, int32(fd))
		return nil

	case SCClose:
		fd := int(m.ReadRegister(4))
		of := t.Fd(fd)
		if of == nil {
			return ErrBadFd
		}
		t.fds[fd] = nil
		return of.Close()

	case SCWrite:
		addr := int(m.ReadRegister(4))
		size := int(m.ReadRegister(5))
		fd := int(m.ReadRegister(6))
		buf := copyIn(m, t.AS, t.PFSvc, addr, size)
		if fd == 1 {
			_, err := d.stdout.Write(buf)
			return err
		}
		of := t.Fd(fd)
		if of == nil {
			return ErrBadFd
		}
		_, err := of.Write(buf)
		return err

	case SCRead:
		addr := int(m.ReadRegister(4))
		size := int(m.ReadRegister(5))
		fd := int(m.ReadRegister(6))
		of := t.Fd(fd)
		if of == nil {
			return ErrBadFd
		}
		buf := make([]byte, size)
		n, err := of.Read(buf)
		if err != nil {
			return err
		}
		copyOut(m, t.AS, t.PFSvc, addr, buf[:n])
		return nil

	case SCFork:
		entry := m.ReadRegister(4)
		return d.handleFork(m, t, entry)

	case SCExec:
		path := getString(m, t.AS, t.PFSvc, int(m.ReadRegister(4)))
		return d.handleExec(m, t, path)

	case SCJoin:
		code, err := d.sched.Join(t, int(m.ReadRegister(4)))
		if err != nil {
			m.WriteRegister(2, -1)
			return err
		}
		m.WriteRegister(2, code)
		return nil

	case SCYield:
		d.sched.Yield(t)
		return nil
	}
	return nil
}

// handleFork implements the Fork syscall contract: clone the calling
// thread's address space and user register state, point the clone's saved
// PC at entry, and hand it to the scheduler -- spec.md §4.5's "clone
// current address space and user register state, schedule the child to run
// starting at entry-pc". Registers are snapshotted here, at fork time,
// rather than re-read from m when the child's goroutine actually runs,
// because m.registers is one file shared by every thread in this
// simulation: by the time the child is scheduled the parent may already
// have overwritten it running past this syscall.
func (d *Dispatcher) handleFork(m *machine.Machine, parent *Thread, entry int32) error {
	clone, err := parent.AS.Clone()
	if err != nil {
		return err
	}
	var savedRegs [config.NumTotalRegs]int32
	for i := range savedRegs {
		savedRegs[i] = m.ReadRegister(i)
	}
	child := d.sched.Fork(parent, func(child *Thread) {
		child.AS = clone
		child.PFSvc = vm.NewPageFaultService()
		child.AS.RestoreState()
		for i, v := range savedRegs {
			m.WriteRegister(i, v)
		}
		m.WriteRegister(config.PCReg, entry)
		m.WriteRegister(config.NextPCReg, entry+4)
		if d.RunUser != nil {
			d.RunUser(m, child)
		} else {
			d.sched.Finish(child, 0)
		}
	})
	// Fork's contract (spec.md §4.5) doesn't name a return value, but
	// scenario 5's parent-joins-child usage needs the child's id the same
	// way Exec's does, so Fork reports it in r2 too.
	m.WriteRegister(2, int32(child.ID))
	return nil
}

// handleExec implements the Exec syscall contract: load path as a fresh
// address space in a new thread and hand it to the scheduler.
func (d *Dispatcher) handleExec(m *machine.Machine, parent *Thread, path string) error {
	of, err := d.fs.Open(path)
	if err != nil {
		m.WriteRegister(2, -1)
		return nil
	}
	as, err := vm.New(m, readerAtOpenFile{of})
	of.Close()
	if err != nil {
		m.WriteRegister(2, -1)
		return err
	}

	child := d.sched.Fork(parent, func(child *Thread) {
		child.AS = as
		child.PFSvc = vm.NewPageFaultService()
		child.AS.RestoreState()
		child.AS.InitRegisters()
		if d.RunUser != nil {
			d.RunUser(m, child)
		} else {
			d.sched.Finish(child, 0)
		}
	})
	m.WriteRegister(2, int32(child.ID))
	return nil
}
