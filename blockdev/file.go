package blockdev

import (
	"context"
	"os"
)

// File is a Device backed by an *os.File.
//
// Writes past the current end extend the file (sparse where the OS allows
// it). Discard support is platform-specific; see file_linux.go.
type File struct {
	f      *os.File
	closed bool
}

// OpenFile opens (or creates) the file at path as a device.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// NewFile wraps an already-open file. The caller keeps ownership of
// nothing; Close closes the underlying file.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (d *File) ReadAt(p []byte, off int64) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	return d.f.ReadAt(p, off)
}

func (d *File) WriteAt(p []byte, off int64) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	return d.f.WriteAt(p, off)
}

// Size returns the current file length, or 0 if stat fails.
func (d *File) Size() int64 {
	if d.closed {
		return 0
	}
	info, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Sync flushes file data to stable storage (fdatasync where available).
func (d *File) Sync(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return datasync(d.f)
}

// Discard hints that the range no longer holds live data.
func (d *File) Discard(off, length int64) error {
	if d.closed {
		return ErrClosed
	}
	return discard(d.f, off, length)
}

func (d *File) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return d.f.Close()
}
