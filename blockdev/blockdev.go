// Package blockdev abstracts the byte-addressed block service beneath the
// cluster space manager.
//
// The allocator core never talks to hardware. It reads and writes fixed
// byte ranges at physical offsets (bitmap persistence) and issues optional
// discard hints for freed ranges (TRIM). Device implementations:
//
//   - File: an *os.File-backed device; discard punches holes on Linux
//   - Map:  a memory-mapped file device (Unix), msync-based durability
//   - Mem:  an in-memory device for tests
package blockdev

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrDiscardUnsupported indicates the device cannot honor discard
	// requests. Discard is advisory; callers log and move on.
	ErrDiscardUnsupported = errors.New("blockdev: discard not supported")

	// ErrOutOfRange indicates a read or write beyond the device size on a
	// fixed-size device.
	ErrOutOfRange = errors.New("blockdev: offset out of range")

	// ErrClosed indicates use of a device after Close.
	ErrClosed = errors.New("blockdev: device closed")
)

// Device is a byte-addressed block service.
//
// ReadAt and WriteAt follow the io contract. Sync makes previously written
// bytes durable; it may block but honors ctx for early return between
// internal steps. Discard hints that a byte range no longer holds live
// data; implementations may ignore it by returning ErrDiscardUnsupported.
type Device interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current device length in bytes.
	Size() int64

	// Sync flushes written data to stable storage.
	Sync(ctx context.Context) error

	// Discard hints that [off, off+length) no longer holds live data.
	Discard(off, length int64) error

	// Close releases the device. Further calls return ErrClosed.
	Close() error
}
