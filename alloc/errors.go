package alloc

import (
	"errors"

	"github.com/volkit/volkit/bitmap"
)

var (
	// ErrNoSpace indicates no run of the required shape exists under the
	// current policy. Recoverable: callers shrink the request, fall back
	// to AllocateRuns, or report out-of-space. Aliased from the bitmap so
	// errors.Is works across both layers.
	ErrNoSpace = bitmap.ErrNoSpace

	// ErrLockClass indicates the allocator was wired with bitmaps whose
	// lock classes do not match their roles. Construction-time
	// programming error.
	ErrLockClass = errors.New("alloc: bitmap lock classes misconfigured")
)
