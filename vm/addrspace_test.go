package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/noff"
	"github.com/jnwhiteh/nachosfs/vm"
)

// buildExecutable assembles a minimal NOFF image: a header followed
// immediately by codeBytes, with the code segment's in-file offset
// pointing right past the header.
func buildExecutable(codeBytes []byte) *bytes.Reader {
	header := &noff.Header{
		Magic: noff.Magic,
		Code: noff.Segment{
			VirtualAddr: 0,
			InFileAddr:  int32(noff.HeaderSize()),
			Size:        int32(len(codeBytes)),
		},
	}
	buf := append(noff.Encode(header), codeBytes...)
	return bytes.NewReader(buf)
}

func TestNewLoadsCodeSegmentIntoBackingStore(t *testing.T) {
	m := machine.New(1)
	code := []byte("nachos")
	as, err := vm.New(m, buildExecutable(code))
	require.NoError(t, err)

	got := m.BackingStoreAt(as.DiskOffset(), len(code))
	assert.Equal(t, code, got)
}

func TestNewRejectsExecutableLargerThanVirtualMemory(t *testing.T) {
	m := machine.New(1)
	code := make([]byte, config.VirtualMemoryPerThread)
	_, err := vm.New(m, buildExecutable(code))
	assert.ErrorIs(t, err, vm.ErrExecutableTooLarge)
}

func TestNewLeavesEveryFrameInvalid(t *testing.T) {
	m := machine.New(1)
	as, err := vm.New(m, buildExecutable(nil))
	require.NoError(t, err)

	for i, e := range as.PageTable() {
		assert.False(t, e.Valid, "frame %d should start unoccupied", i)
		assert.EqualValues(t, i, e.PhysicalPage)
	}
}

func TestInitRegisters(t *testing.T) {
	m := machine.New(1)
	as, err := vm.New(m, buildExecutable(nil))
	require.NoError(t, err)
	as.RestoreState()

	m.WriteRegister(2, 99) // dirty a register InitRegisters must clear
	as.InitRegisters()

	assert.EqualValues(t, 0, m.ReadRegister(2))
	assert.EqualValues(t, 0, m.ReadRegister(config.PCReg))
	assert.EqualValues(t, 4, m.ReadRegister(config.NextPCReg))
	assert.EqualValues(t, config.VirtualPagesPerThread*config.PageSize-16, m.ReadRegister(config.StackReg))
}

func TestSaveStateWritesTLBBackToOwningFrame(t *testing.T) {
	m := machine.New(1)
	as, err := vm.New(m, buildExecutable(nil))
	require.NoError(t, err)
	as.RestoreState()

	tlb := m.TLB()
	tlb[0] = machine.TLBEntry{VirtualPage: 3, PhysicalPage: 5, Valid: true, Use: true, Dirty: true}

	as.SaveState()

	assert.False(t, tlb[0].Valid)
	entry := as.PageTable()[5]
	assert.EqualValues(t, 3, entry.VirtualPage)
	assert.EqualValues(t, 5, entry.PhysicalPage)
	assert.True(t, entry.Dirty)
}

func TestCloneCopiesBackingStoreAndClearsValidity(t *testing.T) {
	m := machine.New(2)
	code := []byte("payload")
	parent, err := vm.New(m, buildExecutable(code))
	require.NoError(t, err)
	parent.RestoreState()

	// Mark a frame valid in the parent so we can assert the clone starts fresh.
	parent.PageTable()[0].Valid = true

	child, err := parent.Clone()
	require.NoError(t, err)

	assert.Equal(t, m.BackingStoreAt(parent.DiskOffset(), len(code)), m.BackingStoreAt(child.DiskOffset(), len(code)))
	assert.NotEqual(t, parent.DiskOffset(), child.DiskOffset())
	assert.NotEqual(t, parent.MemoryOffset(), child.MemoryOffset())
	for _, e := range child.PageTable() {
		assert.False(t, e.Valid)
	}
}
