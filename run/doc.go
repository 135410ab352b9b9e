// Package run implements the ordered, run-length-encoded mapping from a
// file's logical allocation units (VCNs) to physical units (LCNs).
//
// A Runs value is an ordered sequence of entries, strictly increasing by
// VCN, with no overlapping logical ranges. Adjacent entries are merged
// only when they are contiguous both logically and physically; a sparse
// hole is the absence of an entry, never a sentinel.
//
// The package also implements the compact on-disk encoding consumed and
// produced by Pack and Unpack: variable-length records whose header byte
// carries the byte widths of a length field and a signed physical-offset
// delta field (see pack.go).
//
// Runs values carry no lock of their own. The owning attribute's extent
// lock guards all mutation; see the concurrency notes on the bitmap and
// alloc packages.
package run
