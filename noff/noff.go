// Package noff reads the NOFF ("Nachos object file format") executable
// header consumed by vm.New: a magic number followed by three
// segment descriptors. Grounded on
// original_source/code/userprog/addrspace.cc's SwapHeader and its use of
// noffH.{code,initData,uninitData}.
package noff

import (
	"encoding/binary"
	"errors"
)

// Magic is the sentinel value identifying a well-formed NOFF header.
const Magic = 0x456789ab

// headerSize is the on-disk size of a Header: one magic word followed by
// three three-word segments.
const headerSize = 4 + 3*(4*3)

// ErrBadMagic is raised when a NOFF header's magic word doesn't match
// Magic even after a byte-order swap -- a fatal, violated-invariant error
// per spec.md §7 kind 3.
var ErrBadMagic = errors.New("noff: bad magic")

// Segment describes one contiguous region of an executable: its
// destination virtual address, its offset within the executable file, and
// its size in bytes.
type Segment struct {
	VirtualAddr int32
	InFileAddr  int32
	Size        int32
}

// Header is the decoded form of a NOFF executable header.
type Header struct {
	Magic      int32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

// Decode parses a NOFF header from buf, byte-swapping the fields if the
// header was written in the other byte order -- the same little/big-endian
// tolerance SwapHeader provides in the original source.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		return nil, ErrBadMagic
	}
	h := decodeLE(buf)
	if h.Magic != Magic {
		swapped := decodeBE(buf)
		if swapped.Magic != Magic {
			return nil, ErrBadMagic
		}
		h = swapped
	}
	return h, nil
}

func decodeLE(buf []byte) *Header {
	return &Header{
		Magic:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		Code:       decodeSegmentLE(buf[4:16]),
		InitData:   decodeSegmentLE(buf[16:28]),
		UninitData: decodeSegmentLE(buf[28:40]),
	}
}

func decodeBE(buf []byte) *Header {
	return &Header{
		Magic:      int32(binary.BigEndian.Uint32(buf[0:4])),
		Code:       decodeSegmentBE(buf[4:16]),
		InitData:   decodeSegmentBE(buf[16:28]),
		UninitData: decodeSegmentBE(buf[28:40]),
	}
}

func decodeSegmentLE(buf []byte) Segment {
	return Segment{
		VirtualAddr: int32(binary.LittleEndian.Uint32(buf[0:4])),
		InFileAddr:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		Size:        int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

func decodeSegmentBE(buf []byte) Segment {
	return Segment{
		VirtualAddr: int32(binary.BigEndian.Uint32(buf[0:4])),
		InFileAddr:  int32(binary.BigEndian.Uint32(buf[4:8])),
		Size:        int32(binary.BigEndian.Uint32(buf[8:12])),
	}
}

// Encode serializes h back into headerSize bytes of little-endian form,
// used by the test executable builders in the vm and kernel tests.
func Encode(h *Header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Magic))
	encodeSegment(buf[4:16], h.Code)
	encodeSegment(buf[16:28], h.InitData)
	encodeSegment(buf[28:40], h.UninitData)
	return buf
}

func encodeSegment(buf []byte, s Segment) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.VirtualAddr))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.InFileAddr))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.Size))
}

// HeaderSize returns the fixed on-disk size of a NOFF header.
func HeaderSize() int { return headerSize }
