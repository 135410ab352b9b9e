package run

import "errors"

var (
	// ErrCorrupt indicates an encoded run buffer whose contents do not
	// reconcile: bad field widths, non-positive lengths, negative physical
	// positions, or a decoded total that disagrees with the declared
	// logical range. Always surfaced; a corrupt run list must never be
	// treated as an empty mapping.
	ErrCorrupt = errors.New("run: corrupt run buffer")

	// ErrTruncated indicates a run buffer that ends mid-record.
	ErrTruncated = errors.New("run: truncated run buffer")
)
