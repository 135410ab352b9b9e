//go:build !linux

package blockdev

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}

func discard(_ *os.File, _, _ int64) error {
	return ErrDiscardUnsupported
}
