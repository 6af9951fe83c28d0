package vm

import (
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/machine"
)

// PageFaultService walks the address space's frame table on a faulting
// virtual address, choosing a victim frame (first any unoccupied frame
// among this process's own PhysPagesPerThread frames, else the frame
// loaded least recently -- the "simple policy" spec.md §4.5 explicitly
// allows in place of full clock), writing it back if dirty, then loading
// the faulting page into that frame and priming a TLB entry for it.
type PageFaultService struct {
	loadOrder []int32 // FIFO of occupied frame indices, oldest-loaded first
}

// NewPageFaultService creates a fresh, empty victim-selection tracker for
// one address space.
func NewPageFaultService() *PageFaultService { return &PageFaultService{} }

// Service handles a PageFaultException for faultAddr against as.
func (svc *PageFaultService) Service(as *AddressSpace, faultAddr int) error {
	vpn := int32(faultAddr / config.PageSize)
	frame := svc.chooseVictim(as)
	entry := &as.pageTable[frame]

	if entry.Valid {
		if entry.Dirty {
			dst := as.machine.BackingStoreAt(as.diskOffset+int(entry.VirtualPage)*config.PageSize, config.PageSize)
			copy(dst, as.machine.PhysPage(as.memoryOffset/config.PageSize+frame))
		}
		entry.Valid = false
	}

	src := as.machine.BackingStoreAt(as.diskOffset+int(vpn)*config.PageSize, config.PageSize)
	copy(as.machine.PhysPage(as.memoryOffset/config.PageSize+frame), src)

	*entry = machine.PageTableEntry{
		VirtualPage:  vpn,
		PhysicalPage: int32(frame),
		Valid:        true,
		Use:          true,
		Dirty:        false,
	}
	svc.loadOrder = append(svc.loadOrder, int32(frame))

	svc.primeTLB(as, frame)
	return nil
}

// chooseVictim returns the frame index the faulting page should occupy:
// any currently unoccupied frame if one exists, else the frame loaded
// least recently among this process's own frames.
func (svc *PageFaultService) chooseVictim(as *AddressSpace) int {
	for i, e := range as.pageTable {
		if !e.Valid {
			return i
		}
	}
	frame := svc.loadOrder[0]
	svc.loadOrder = svc.loadOrder[1:]
	return int(frame)
}

// primeTLB installs the just-loaded frame's entry into a free (or, failing
// that, arbitrarily chosen) TLB slot, matching the source's assumption
// that the TLB always has room right after a fault because it is only
// ever as big as the working set a single process touches between context
// switches.
func (svc *PageFaultService) primeTLB(as *AddressSpace, frame int) {
	tlb := as.machine.TLB()
	for i := range tlb {
		if !tlb[i].Valid {
			tlb[i] = as.pageTable[frame]
			return
		}
	}
	tlb[0] = as.pageTable[frame]
}
