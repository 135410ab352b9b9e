package blockdev

import (
	"context"
	"io"
	"sync"
)

// Mem is an in-memory Device for tests.
//
// Writes past the end grow the buffer. Discarded ranges are zeroed and
// recorded so tests can assert that trim hints reached the device.
type Mem struct {
	mu       sync.Mutex
	data     []byte
	syncs    int
	discards []DiscardRecord
	closed   bool

	// FailDiscard, when set, makes Discard return ErrDiscardUnsupported.
	// Lets tests exercise the advisory-discard path.
	FailDiscard bool
}

// DiscardRecord is one observed discard hint.
type DiscardRecord struct {
	Off, Len int64
}

// NewMem returns an empty in-memory device.
func NewMem() *Mem {
	return &Mem{}
}

func (d *Mem) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *Mem) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if end := off + int64(len(p)); end > int64(len(d.data)) {
		grown := make([]byte, end)
		copy(grown, d.data)
		d.data = grown
	}
	return copy(d.data[off:], p), nil
}

func (d *Mem) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data))
}

func (d *Mem) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.syncs++
	return nil
}

func (d *Mem) Discard(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.FailDiscard {
		return ErrDiscardUnsupported
	}
	d.discards = append(d.discards, DiscardRecord{Off: off, Len: length})
	end := min(off+length, int64(len(d.data)))
	for i := off; i < end; i++ {
		d.data[i] = 0
	}
	return nil
}

func (d *Mem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

// Syncs reports how many Sync calls completed.
func (d *Mem) Syncs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncs
}

// Discards returns the observed discard hints.
func (d *Mem) Discards() []DiscardRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DiscardRecord, len(d.discards))
	copy(out, d.discards)
	return out
}
