//go:build linux

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync performs fdatasync: data plus the metadata needed to read it
// back, skipping timestamp-only inode updates.
func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// discard punches a hole in the file, releasing the underlying blocks
// while keeping the file size.
func discard(f *os.File, off, length int64) error {
	err := unix.Fallocate(int(f.Fd()),
		unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, length)
	if err == unix.EOPNOTSUPP {
		return ErrDiscardUnsupported
	}
	return err
}
