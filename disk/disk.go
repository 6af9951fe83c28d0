// Package disk simulates the raw sector device the file system core is
// specified against. It is nominally an "external collaborator" (spec.md
// §6): a real NACHOS build drives it from an interrupt-driven hardware
// model with its own timing. What matters to the layers above is the
// interface -- ReadSector/WriteSector complete asynchronously via a
// callback that stands in for the disk-completion interrupt, and callers
// that want ordinary blocking I/O use SyncRead/SyncWrite, which park on a
// ksync.Semaphore the way spec.md §5 describes.
package disk

import (
	"errors"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/ksync"
)

// ErrOutOfRange is returned when a sector index falls outside [0, NumSectors).
var ErrOutOfRange = errors.New("disk: sector index out of range")

// Disk is the interface the file system core and address-space paging code
// consume. Completion is always reported by invoking done exactly once,
// from the disk's own service goroutine -- never synchronously from inside
// ReadSector/WriteSector -- so that callers genuinely observe the
// interrupt-driven completion the spec calls for.
type Disk interface {
	ReadSector(sector int, buf []byte, done func(error))
	WriteSector(sector int, buf []byte, done func(error))
	Close() error
}

// SyncRead performs a blocking sector read, parking the caller on a
// semaphore until the simulated completion interrupt fires.
func SyncRead(d Disk, sector int, buf []byte) error {
	sem := ksync.NewSemaphore("disk-read", 0)
	var result error
	d.ReadSector(sector, buf, func(err error) {
		result = err
		sem.V()
	})
	sem.P()
	return result
}

// SyncWrite performs a blocking sector write, parking the caller on a
// semaphore until the simulated completion interrupt fires.
func SyncWrite(d Disk, sector int, buf []byte) error {
	sem := ksync.NewSemaphore("disk-write", 0)
	var result error
	d.WriteSector(sector, buf, func(err error) {
		result = err
		sem.V()
	})
	sem.P()
	return result
}

func checkSector(sector int) error {
	if sector < 0 || sector >= config.NumSectors {
		return ErrOutOfRange
	}
	return nil
}
