// Package vm implements the address-space half of C5: constructing a
// process's virtual memory from a NOFF executable, saving/restoring
// machine state across a context switch, and servicing page faults.
// Grounded line-for-line on original_source/code/userprog/addrspace.cc.
package vm

import (
	"errors"
	"io"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/noff"
)

// ErrExecutableTooLarge is raised when an executable's total image
// (code + init-data + uninit-data + stack) exceeds one process's virtual
// address space.
var ErrExecutableTooLarge = errors.New("vm: executable exceeds virtual memory per thread")

// AddressSpace is one process's page table, its window into physical
// memory and its window into the machine's backing store.
type AddressSpace struct {
	machine *machine.Machine
	header  *noff.Header

	pageTable    []machine.PageTableEntry
	memoryOffset int
	diskOffset   int
}

// New constructs an address space by loading executable's NOFF header and
// copying its code/init-data/uninit-data segments into a freshly reserved
// backing-store window, leaving every page table entry invalid so the
// first touch of each page demand-loads it.
func New(m *machine.Machine, executable io.ReaderAt) (*AddressSpace, error) {
	headerBuf := make([]byte, noff.HeaderSize())
	if _, err := executable.ReadAt(headerBuf, 0); err != nil {
		return nil, err
	}
	header, err := noff.Decode(headerBuf)
	if err != nil {
		return nil, err
	}

	totalSize := int(header.Code.Size) + int(header.InitData.Size) + int(header.UninitData.Size) + config.UserStackSize
	if totalSize > config.VirtualMemoryPerThread {
		return nil, ErrExecutableTooLarge
	}

	memoryOffset, err := m.AllocatePhysical()
	if err != nil {
		return nil, err
	}
	diskOffset, err := m.AllocateBackingStore()
	if err != nil {
		return nil, err
	}

	// One entry per physical frame this process owns (spec.md §3): the
	// frame's index within this table never changes, only which virtual
	// page it holds. Every frame starts unoccupied so the first touch of
	// each virtual page demand-loads it via the page-fault service.
	pageTable := make([]machine.PageTableEntry, config.PhysPagesPerThread)
	for i := range pageTable {
		pageTable[i] = machine.PageTableEntry{PhysicalPage: int32(i), Valid: false}
	}

	as := &AddressSpace{machine: m, header: header, pageTable: pageTable, memoryOffset: memoryOffset, diskOffset: diskOffset}

	if err := as.loadSegment(executable, header.Code); err != nil {
		return nil, err
	}
	if err := as.loadSegment(executable, header.InitData); err != nil {
		return nil, err
	}
	if err := as.loadSegment(executable, header.UninitData); err != nil {
		return nil, err
	}
	return as, nil
}

func (as *AddressSpace) loadSegment(executable io.ReaderAt, seg noff.Segment) error {
	if seg.Size == 0 {
		return nil
	}
	dst := as.machine.BackingStoreAt(as.diskOffset+int(seg.VirtualAddr), int(seg.Size))
	_, err := executable.ReadAt(dst, int64(seg.InFileAddr))
	return err
}

// Clone produces a new address space that is a full logical copy of as: an
// identical page-table layout and a fresh backing-store window whose
// content equals as's at the moment of the call -- the mechanism behind
// fork's "clone current address space" contract (spec.md §4.5).
func (as *AddressSpace) Clone() (*AddressSpace, error) {
	memoryOffset, err := as.machine.AllocatePhysical()
	if err != nil {
		return nil, err
	}
	diskOffset, err := as.machine.AllocateBackingStore()
	if err != nil {
		return nil, err
	}

	pageTable := make([]machine.PageTableEntry, len(as.pageTable))
	copy(pageTable, as.pageTable)
	for i := range pageTable {
		pageTable[i].Valid = false
		pageTable[i].Dirty = false
		pageTable[i].Use = false
	}

	clone := &AddressSpace{machine: as.machine, header: as.header, pageTable: pageTable, memoryOffset: memoryOffset, diskOffset: diskOffset}
	copy(as.machine.BackingStoreAt(diskOffset, config.VirtualMemoryPerThread), as.machine.BackingStoreAt(as.diskOffset, config.VirtualMemoryPerThread))
	return clone, nil
}

// InitRegisters zeroes every register and sets PC/NextPC/stack-pointer to
// their initial values, per addrspace.cc's AddrSpace::InitRegisters.
func (as *AddressSpace) InitRegisters() {
	for i := 0; i < config.NumTotalRegs; i++ {
		as.machine.WriteRegister(i, 0)
	}
	as.machine.WriteRegister(config.PCReg, 0)
	as.machine.WriteRegister(config.NextPCReg, 4)
	as.machine.WriteRegister(config.StackReg, config.VirtualPagesPerThread*config.PageSize-16)
}

// SaveState copies every valid TLB entry back into this address space's
// page table and invalidates the TLB, per AddrSpace::SaveState. The page
// table is indexed by physical frame (spec.md §3's PHYS_PAGES_PER_THREAD
// entries), and a TLB entry's PhysicalPage names that same frame, so the
// entry is written straight back to as.pageTable[tlb[i].PhysicalPage].
func (as *AddressSpace) SaveState() {
	tlb := as.machine.TLB()
	for i := range tlb {
		if !tlb[i].Valid {
			continue
		}
		as.pageTable[tlb[i].PhysicalPage] = tlb[i]
		tlb[i].Valid = false
	}
}

// RestoreState publishes this address space's page table and machine
// windows as the ones the MMU should use, per AddrSpace::RestoreState.
func (as *AddressSpace) RestoreState() {
	as.machine.SetPageTable(as.pageTable)
	as.machine.SetMemoryOffset(as.memoryOffset)
	as.machine.SetDiskOffset(as.diskOffset)
}

// PageTable exposes the address space's page table for inspection (used by
// the page-fault service and by tests).
func (as *AddressSpace) PageTable() []machine.PageTableEntry { return as.pageTable }

// MemoryOffset and DiskOffset return this address space's window base into
// the machine's shared physical-memory and backing-store arrays.
func (as *AddressSpace) MemoryOffset() int { return as.memoryOffset }
func (as *AddressSpace) DiskOffset() int   { return as.diskOffset }
