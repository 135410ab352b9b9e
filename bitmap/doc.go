// Package bitmap implements the windowed free-space bitmap beneath the
// cluster allocator.
//
// One bit tracks one allocation unit (a data cluster, or a metadata
// record slot in the second instance); zero means free. The bit array is
// divided into fixed-size windows, each carrying a cached free-bit count
// so window-level free/full decisions never scan bits. The sum of the
// window counts is maintained as the running total of free units and must
// always equal the number of zero bits - that is the primary allocator
// invariant, checked by Verify.
//
// Layered over the authoritative bitmap is an in-memory cache of free
// extents indexed two ways: by start (point lookup, neighbor merging) and
// by (count, start) (size-ordered best-fit search). The cache is built
// lazily, kept consistent under every mutation while current, and
// abandoned - not rebuilt - when fragmentation exceeds a bookkeeping
// threshold; searches then fall back to a window-bounded linear scan
// until an explicit RebuildCache.
//
// A reserved zone [ZoneBit, ZoneBit+ZoneLen) is withheld from ordinary
// searches so a privileged consumer (metadata record-table growth) always
// finds contiguous space ahead of it. The zone is advisory: its bits stay
// zero in the bitmap and ordinary Find skips them explicitly.
//
// Window boundaries exist only in memory. On disk the bitmap is a flat,
// quad-word-aligned bit stream persisted window-at-a-time through a
// blockdev.Device.
package bitmap
