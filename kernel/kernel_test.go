package kernel_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/filesys"
	"github.com/jnwhiteh/nachosfs/kernel"
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/noff"
	"github.com/jnwhiteh/nachosfs/vm"
)

// buildKernelExe wraps a single page of pre-set virtual memory (paths,
// buffers, etc a test wants demand-paged in) as a one-segment NOFF image.
func buildKernelExe(page []byte) *bytes.Reader {
	header := &noff.Header{
		Magic: noff.Magic,
		InitData: noff.Segment{
			VirtualAddr: 0,
			InFileAddr:  int32(noff.HeaderSize()),
			Size:        int32(len(page)),
		},
	}
	buf := append(noff.Encode(header), page...)
	return bytes.NewReader(buf)
}

func newFormattedFS(t *testing.T) *filesys.FileSystem {
	t.Helper()
	d := disk.NewMemDisk()
	require.NoError(t, filesys.Format(d))
	fs, err := filesys.Open(d)
	require.NoError(t, err)
	return fs
}

func TestCreateOpenWriteCloseReopenReadRoundTrip(t *testing.T) {
	fs := newFormattedFS(t)
	m := machine.New(1)

	page := make([]byte, config.PageSize)
	copy(page[0:], []byte("/hello\x00"))
	copy(page[16:], []byte("Hi"))

	as, err := vm.New(m, buildKernelExe(page))
	require.NoError(t, err)
	as.RestoreState()

	sched := kernel.New()
	main := sched.NewMainThread()
	main.AS = as
	main.PFSvc = vm.NewPageFaultService()

	var stdout bytes.Buffer
	d := kernel.NewDispatcher(fs, sched, &stdout)

	m.WriteRegister(2, kernel.SCCreate)
	m.WriteRegister(4, 0)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	assert.EqualValues(t, 0, m.ReadRegister(2))

	m.WriteRegister(2, kernel.SCOpen)
	m.WriteRegister(4, 0)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	fd := m.ReadRegister(2)
	require.GreaterOrEqual(t, fd, int32(2))

	m.WriteRegister(2, kernel.SCWrite)
	m.WriteRegister(4, 16)
	m.WriteRegister(5, 2)
	m.WriteRegister(6, fd)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))

	m.WriteRegister(2, kernel.SCClose)
	m.WriteRegister(4, fd)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))

	m.WriteRegister(2, kernel.SCOpen)
	m.WriteRegister(4, 0)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	fd2 := m.ReadRegister(2)
	require.GreaterOrEqual(t, fd2, int32(2))

	m.WriteRegister(2, kernel.SCRead)
	m.WriteRegister(4, 64)
	m.WriteRegister(5, 2)
	m.WriteRegister(6, fd2)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))

	got := readUserBytes(t, m, main, 64, 2)
	assert.Equal(t, []byte("Hi"), got)
}

// readUserBytes reads size bytes from user virtual memory the same way the
// dispatcher's own copyIn does, servicing page faults transparently.
func readUserBytes(t *testing.T, m *machine.Machine, th *kernel.Thread, addr, size int) []byte {
	t.Helper()
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		for {
			v, err := m.ReadMem(addr+i, 1)
			if err == nil {
				buf[i] = byte(v)
				break
			}
			require.NoError(t, th.PFSvc.Service(th.AS, addr+i))
		}
	}
	return buf
}

func TestOpenMissingFileFails(t *testing.T) {
	fs := newFormattedFS(t)
	m := machine.New(1)

	page := make([]byte, config.PageSize)
	copy(page[0:], []byte("/missing\x00"))

	as, err := vm.New(m, buildKernelExe(page))
	require.NoError(t, err)
	as.RestoreState()

	sched := kernel.New()
	main := sched.NewMainThread()
	main.AS = as
	main.PFSvc = vm.NewPageFaultService()

	d := kernel.NewDispatcher(fs, sched, &bytes.Buffer{})
	m.WriteRegister(2, kernel.SCOpen)
	m.WriteRegister(4, 0)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	assert.EqualValues(t, -1, m.ReadRegister(2))
}

func TestHaltStopsWithoutAdvancingPC(t *testing.T) {
	m := machine.New(1)
	page := make([]byte, config.PageSize)
	as, err := vm.New(m, buildKernelExe(page))
	require.NoError(t, err)
	as.RestoreState()

	sched := kernel.New()
	main := sched.NewMainThread()
	main.AS = as
	main.PFSvc = vm.NewPageFaultService()

	d := kernel.NewDispatcher(nil, sched, &bytes.Buffer{})
	m.WriteRegister(config.PCReg, 40)
	m.WriteRegister(2, kernel.SCHalt)
	err = d.Dispatch(m, main, kernel.SyscallException)
	assert.ErrorIs(t, err, kernel.ErrHalt)
	assert.EqualValues(t, 40, m.ReadRegister(config.PCReg))
}

// TestForkThenJoinObservesChildOutput exercises spec.md §8 scenario 5: a
// user program forks, the parent writes 'P' and the child writes 'C' to
// stdout, the parent joins, and both bytes are observed exactly once.
func TestForkThenJoinObservesChildOutput(t *testing.T) {
	m := machine.New(2)
	page := make([]byte, config.PageSize)
	page[40] = 'P'
	page[41] = 'C'

	as, err := vm.New(m, buildKernelExe(page))
	require.NoError(t, err)
	as.RestoreState()

	sched := kernel.New()
	main := sched.NewMainThread()
	main.AS = as
	main.PFSvc = vm.NewPageFaultService()

	var stdout bytes.Buffer
	d := kernel.NewDispatcher(nil, sched, &stdout)
	d.RunUser = func(m *machine.Machine, child *kernel.Thread) {
		m.WriteRegister(2, kernel.SCWrite)
		m.WriteRegister(4, 41)
		m.WriteRegister(5, 1)
		m.WriteRegister(6, 1)
		d.Dispatch(m, child, kernel.SyscallException)

		m.WriteRegister(2, kernel.SCExit)
		m.WriteRegister(4, 7)
		d.Dispatch(m, child, kernel.SyscallException)
	}

	m.WriteRegister(2, kernel.SCFork)
	m.WriteRegister(4, 0)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	childID := m.ReadRegister(2)

	m.WriteRegister(2, kernel.SCWrite)
	m.WriteRegister(4, 40)
	m.WriteRegister(5, 1)
	m.WriteRegister(6, 1)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))

	m.WriteRegister(2, kernel.SCJoin)
	m.WriteRegister(4, childID)
	require.NoError(t, d.Dispatch(m, main, kernel.SyscallException))
	assert.EqualValues(t, 7, m.ReadRegister(2))

	out := stdout.String()
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("P")))
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("C")))
}

func TestJoinRejectsNonChild(t *testing.T) {
	sched := kernel.New()
	main := sched.NewMainThread()
	_, err := sched.Join(main, 99)
	assert.ErrorIs(t, err, kernel.ErrNotMyChild)
}
