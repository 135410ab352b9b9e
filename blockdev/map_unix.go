//go:build unix

package blockdev

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map is a Device backed by a shared memory mapping of a file.
//
// The mapping is fixed-size: reads and writes outside [0, Size()) fail
// with ErrOutOfRange rather than growing the file. Sync uses msync over
// the whole mapping (the kernel only writes dirty pages) followed by
// fdatasync, mirroring the durability path used for mapped volumes.
type Map struct {
	f    *os.File
	data []byte
}

// OpenMap maps the file at path read-write.
func OpenMap(path string) (*Map, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("blockdev: cannot map empty file %q", path)
	}
	if size > int64(^uint(0)>>1) {
		f.Close()
		return nil, fmt.Errorf("blockdev: file too large to map (%d bytes)", size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Map{f: f, data: data}, nil
}

func (d *Map) ReadAt(p []byte, off int64) (int, error) {
	if d.data == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, ErrOutOfRange
	}
	return copy(p, d.data[off:]), nil
}

func (d *Map) WriteAt(p []byte, off int64) (int, error) {
	if d.data == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, ErrOutOfRange
	}
	return copy(d.data[off:], p), nil
}

func (d *Map) Size() int64 {
	return int64(len(d.data))
}

// Sync msyncs the mapping and then fdatasyncs the descriptor.
func (d *Map) Sync(ctx context.Context) error {
	if d.data == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return datasync(d.f)
}

// Discard is unsupported through a mapping; use File for hole punching.
func (d *Map) Discard(_, _ int64) error {
	if d.data == nil {
		return ErrClosed
	}
	return ErrDiscardUnsupported
}

// Close unmaps and closes the file. Double-close is a no-op error.
func (d *Map) Close() error {
	if d.data == nil {
		return ErrClosed
	}
	data := d.data
	d.data = nil
	if err := unix.Munmap(data); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}
