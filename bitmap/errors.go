package bitmap

import "errors"

var (
	// ErrNoSpace indicates no free run of the required shape exists under
	// the current search policy. Expected and recoverable: callers shrink
	// the request, split across runs, or report out-of-space.
	ErrNoSpace = errors.New("bitmap: no free run of required shape")

	// ErrInvalidCount indicates a zero-unit request.
	ErrInvalidCount = errors.New("bitmap: unit count must be > 0")

	// ErrRange indicates a bit range outside the managed space.
	ErrRange = errors.New("bitmap: bit range out of bounds")

	// ErrZoneOverlap indicates an attempt to reserve a zone over bits that
	// are not currently free. A consistency error in the caller, fatal to
	// the operation but not to the mount.
	ErrZoneOverlap = errors.New("bitmap: zone range not free")

	// ErrInconsistent indicates an accounting invariant violation (window
	// free-count mismatch, extent-cache divergence). Treated as on-disk
	// corruption: surfaced, never auto-repaired, so higher layers can
	// force a read-only remount.
	ErrInconsistent = errors.New("bitmap: accounting inconsistency")
)
