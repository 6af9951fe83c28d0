package kernel

import (
	"github.com/jnwhiteh/nachosfs/machine"
	"github.com/jnwhiteh/nachosfs/vm"
)

// readByte reads one byte from user virtual address addr, transparently
// servicing and retrying through a page fault -- spec.md §4.5's "the
// read-byte loop retries until the MMU reports success" and §9's
// "byte-at-a-time copy with retry on fault is required because any page
// may be non-resident".
func readByte(m *machine.Machine, as *vm.AddressSpace, pf *vm.PageFaultService, addr int) byte {
	for {
		v, err := m.ReadMem(addr, 1)
		if err == nil {
			return byte(v)
		}
		if err := pf.Service(as, addr); err != nil {
			panic(err) // a failed page-fault service is a violated invariant, per spec.md §7 class 3
		}
	}
}

func writeByte(m *machine.Machine, as *vm.AddressSpace, pf *vm.PageFaultService, addr int, b byte) {
	for {
		if err := m.WriteMem(addr, 1, int32(b)); err == nil {
			return
		}
		if err := pf.Service(as, addr); err != nil {
			panic(err)
		}
	}
}

// getString reads a NUL-terminated C string out of user memory starting at
// addr, per exception.cc's getString.
func getString(m *machine.Machine, as *vm.AddressSpace, pf *vm.PageFaultService, addr int) string {
	var buf []byte
	for {
		c := readByte(m, as, pf, addr)
		if c == 0 {
			break
		}
		buf = append(buf, c)
		addr++
	}
	return string(buf)
}

// copyIn reads size bytes out of user memory starting at addr.
func copyIn(m *machine.Machine, as *vm.AddressSpace, pf *vm.PageFaultService, addr, size int) []byte {
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = readByte(m, as, pf, addr+i)
	}
	return buf
}

// copyOut writes buf into user memory starting at addr.
func copyOut(m *machine.Machine, as *vm.AddressSpace, pf *vm.PageFaultService, addr int, buf []byte) {
	for i, b := range buf {
		writeByte(m, as, pf, addr+i, b)
	}
}
