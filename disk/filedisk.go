package disk

import (
	"golang.org/x/sys/unix"

	"github.com/jnwhiteh/nachosfs/config"
)

// FileDisk backs the simulated disk with a real file, grounded on
// mit-pdos-go-journal/disk.fileDisk: sector-granularity Pread/Pwrite
// through golang.org/x/sys/unix rather than the higher-level os.File
// Seek+Read/Write pair, so a partial read at end-of-file can't silently
// under-fill a caller's sector buffer.
type FileDisk struct {
	fd   int
	reqs chan request
	done chan struct{}
}

// NewFileDisk opens (creating if necessary) path as a config.NumSectors ×
// config.SectorSize-byte disk image.
func NewFileDisk(path string) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(config.NumSectors) * int64(config.SectorSize)
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if st.Size != size {
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	d := &FileDisk{fd: fd, reqs: make(chan request), done: make(chan struct{})}
	go d.loop()
	return d, nil
}

func (d *FileDisk) loop() {
	for req := range d.reqs {
		if err := checkSector(req.sector); err != nil {
			req.done(err)
			continue
		}
		off := int64(req.sector) * int64(config.SectorSize)
		var err error
		if req.write {
			_, err = unix.Pwrite(d.fd, req.buf, off)
		} else {
			_, err = unix.Pread(d.fd, req.buf, off)
		}
		req.done(err)
	}
	close(d.done)
}

// ReadSector implements Disk.
func (d *FileDisk) ReadSector(sector int, buf []byte, done func(error)) {
	d.reqs <- request{write: false, sector: sector, buf: buf, done: done}
}

// WriteSector implements Disk.
func (d *FileDisk) WriteSector(sector int, buf []byte, done func(error)) {
	d.reqs <- request{write: true, sector: sector, buf: buf, done: done}
}

// Close stops the service goroutine and closes the backing file descriptor.
func (d *FileDisk) Close() error {
	close(d.reqs)
	<-d.done
	return unix.Close(d.fd)
}
