// Package machine is the simulated CPU/MMU that the core treats as an
// external collaborator (spec.md §6): registers, a PC/NextPC pair, a
// software-managed TLB, byte-addressable physical memory and backing
// store with fault-raising access, and the two bump-pointer pools
// (physical frames, backing-store windows) address spaces are carved out
// of. Grounded on original_source/code/userprog/addrspace.cc's
// machine->usedMemory / machine->usedMockDisk accounting and
// exception.cc's ReadMem/WriteMem contract.
package machine

import (
	"errors"

	"github.com/jnwhiteh/nachosfs/config"
)

// TLBEntry is one software-managed translation entry, shared by the single
// running process (spec.md §3).
type TLBEntry struct {
	VirtualPage  int32
	PhysicalPage int32
	Valid        bool
	Use          bool
	Dirty        bool
	ReadOnly     bool
}

// PageTableEntry is one entry of a process's logical page table.
type PageTableEntry = TLBEntry

// ErrOutOfMemory is raised when the physical-frame bump pool is exhausted.
var ErrOutOfMemory = errors.New("machine: out of physical memory")

// ErrOutOfBackingStore is raised when the mock-disk bump pool is exhausted.
var ErrOutOfBackingStore = errors.New("machine: out of backing store")

// ErrPageFault is the sentinel Machine.ReadMem/WriteMem return when the
// virtual address they were asked to translate has no valid page-table
// entry -- the "returns success/failure" contract spec.md §4.5 and §6
// describe for the MMU's memory-access primitive.
var ErrPageFault = errors.New("machine: page fault")

// Machine holds every piece of state addrspace construction and the
// syscall/page-fault dispatcher read or mutate: the register file, the
// TLB, the currently RestoreState-installed page table and NOFF window,
// and the flat physical-memory / mock-disk byte arrays plus their
// bump-pointer allocators.
type Machine struct {
	registers [config.NumTotalRegs]int32
	tlb       [config.TLBSize]TLBEntry

	pageTable    []PageTableEntry
	memoryOffset int
	diskOffset   int

	physMemory []byte
	mockDisk   []byte

	usedMemory   int
	usedMockDisk int
}

// New creates a machine with physical memory and backing store sized for
// maxThreads concurrently loaded address spaces.
func New(maxThreads int) *Machine {
	return &Machine{
		physMemory: make([]byte, maxThreads*config.PhysPagesPerThread*config.PageSize),
		mockDisk:   make([]byte, maxThreads*config.VirtualMemoryPerThread),
	}
}

// ReadRegister returns the current value of register i.
func (m *Machine) ReadRegister(i int) int32 { return m.registers[i] }

// WriteRegister sets register i to value.
func (m *Machine) WriteRegister(i int, value int32) { m.registers[i] = value }

// TLB returns the machine's TLB array for direct inspection/mutation by
// the address-space save/restore and page-fault paths.
func (m *Machine) TLB() *[config.TLBSize]TLBEntry { return &m.tlb }

// PageTable returns the page table installed by the last RestoreState
// call.
func (m *Machine) PageTable() []PageTableEntry { return m.pageTable }

// SetPageTable installs pt as the currently running process's page table,
// per AddrSpace::RestoreState.
func (m *Machine) SetPageTable(pt []PageTableEntry) { m.pageTable = pt }

// MemoryOffset and DiskOffset return the running process's window base
// into physMemory and mockDisk respectively -- addrspace.cc's
// machine->memoryOffset / machine->diskOffset.
func (m *Machine) MemoryOffset() int { return m.memoryOffset }
func (m *Machine) DiskOffset() int   { return m.diskOffset }

func (m *Machine) SetMemoryOffset(off int) { m.memoryOffset = off }
func (m *Machine) SetDiskOffset(off int)   { m.diskOffset = off }

// AllocatePhysical reserves config.PhysPagesPerThread frames worth of
// physical memory for a new address space and returns the byte offset of
// its window, mirroring machine->usedMemory in addrspace.cc.
func (m *Machine) AllocatePhysical() (int, error) {
	size := config.PhysPagesPerThread * config.PageSize
	if m.usedMemory+size > len(m.physMemory) {
		return 0, ErrOutOfMemory
	}
	off := m.usedMemory
	m.usedMemory += size
	return off, nil
}

// AllocateBackingStore reserves config.VirtualMemoryPerThread bytes of
// mock-disk backing store for a new address space, mirroring
// machine->usedMockDisk.
func (m *Machine) AllocateBackingStore() (int, error) {
	if m.usedMockDisk+config.VirtualMemoryPerThread > len(m.mockDisk) {
		return 0, ErrOutOfBackingStore
	}
	off := m.usedMockDisk
	m.usedMockDisk += config.VirtualMemoryPerThread
	return off, nil
}

// PhysPage returns a slice viewing the physical frame identified by an
// absolute frame number (not process-relative).
func (m *Machine) PhysPage(frame int) []byte {
	base := frame * config.PageSize
	return m.physMemory[base : base+config.PageSize]
}

// BackingStoreAt returns a slice viewing count bytes of the mock disk
// starting at absolute offset off.
func (m *Machine) BackingStoreAt(off, count int) []byte {
	return m.mockDisk[off : off+count]
}

// ReadMem reads size bytes (1, 2 or 4) at virtual address addr through the
// currently installed page table, returning ErrPageFault if the covering
// page is not valid -- the caller (kernel.getString/copyIn) is expected to
// service the fault and retry, per spec.md §4.5's "retries until the MMU
// reports success".
func (m *Machine) ReadMem(addr int, size int) (int32, error) {
	frame, within, err := m.translate(addr)
	if err != nil {
		return 0, err
	}
	page := m.PhysPage(frame)
	switch size {
	case 1:
		return int32(page[within]), nil
	case 2:
		return int32(page[within]) | int32(page[within+1])<<8, nil
	default:
		var v int32
		for i := 0; i < 4; i++ {
			v |= int32(page[within+i]) << uint(8*i)
		}
		return v, nil
	}
}

// WriteMem writes value's low size bytes to virtual address addr.
func (m *Machine) WriteMem(addr int, size int, value int32) error {
	frame, within, err := m.translate(addr)
	if err != nil {
		return err
	}
	page := m.PhysPage(frame)
	m.setDirty(addr)
	switch size {
	case 1:
		page[within] = byte(value)
	case 2:
		page[within] = byte(value)
		page[within+1] = byte(value >> 8)
	default:
		for i := 0; i < 4; i++ {
			page[within+i] = byte(value >> uint(8*i))
		}
	}
	return nil
}

// translate resolves a process-virtual address to an absolute frame index
// into physMemory. Per spec.md §3, the page table has PHYS_PAGES_PER_THREAD
// entries -- one per physical frame this process owns, each recording
// which virtual page currently occupies it -- so translation is a linear
// scan for the entry whose VirtualPage matches, exactly as
// addrspace.cc's getVaddrEntry does over its own PhysPagesPerThread-sized
// table. memoryOffset, published by RestoreState, locates the process's
// frame window inside the shared physMemory array.
func (m *Machine) translate(addr int) (frame int, within int, err error) {
	vpn := int32(addr / config.PageSize)
	within = addr % config.PageSize
	for i := range m.pageTable {
		if m.pageTable[i].Valid && m.pageTable[i].VirtualPage == vpn {
			m.pageTable[i].Use = true
			return m.memoryOffset/config.PageSize + int(m.pageTable[i].PhysicalPage), within, nil
		}
	}
	return 0, 0, ErrPageFault
}

func (m *Machine) setDirty(addr int) {
	vpn := int32(addr / config.PageSize)
	for i := range m.pageTable {
		if m.pageTable[i].Valid && m.pageTable[i].VirtualPage == vpn {
			m.pageTable[i].Dirty = true
			return
		}
	}
}
