package run

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_Pack_RoundTrip(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(10, 520, 5) // physically discontiguous
	r.AddEntry(20, 100, 8) // hole at [15,20), then a backward jump

	buf := make([]byte, 64)
	n, packed, err := r.Pack(0, 28, buf)
	require.NoError(t, err)
	require.Equal(t, uint64(28), packed, "all units incl. hole must pack")
	require.Greater(t, n, 1)
	require.Equal(t, byte(0), buf[n-1], "terminator")

	var got Runs
	require.NoError(t, got.Unpack(buf[:n], 0, 27))
	if diff := cmp.Diff(entriesOf(&r), entriesOf(&got)); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_Pack_PhysicalSplitEmitsTwoRecords(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(10, 520, 5)

	buf := make([]byte, 64)
	n, packed, err := r.Pack(0, 15, buf)
	require.NoError(t, err)
	require.Equal(t, uint64(15), packed)

	// Count records by walking headers: must be two, not one.
	records := 0
	pos := 0
	for buf[pos] != 0 {
		h := buf[pos]
		pos += 1 + int(h&0xF) + int(h>>4)
		records++
	}
	require.Equal(t, 2, records)
	require.Equal(t, pos+1, n)
}

func Test_Pack_HoleEncodedWithZeroWidthOffset(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 4)
	r.AddEntry(8, 600, 4) // hole at [4,8)

	buf := make([]byte, 64)
	n, packed, err := r.Pack(0, 12, buf)
	require.NoError(t, err)
	require.Equal(t, uint64(12), packed)

	// Second record must have a zero high nibble (hole).
	pos := 1 + int(buf[0]&0xF) + int(buf[0]>>4)
	require.Equal(t, byte(0), buf[pos]>>4, "hole record high nibble")

	var got Runs
	require.NoError(t, got.Unpack(buf[:n], 0, 11))
	require.Equal(t, 2, got.Len(), "hole must stay a hole after decode")
	if _, _, _, ok := got.Lookup(5); ok {
		t.Fatal("hole decoded as a mapping")
	}
}

func Test_Pack_SmallBufferSplitsWholeEntries(t *testing.T) {
	var r Runs
	r.AddEntry(0, 1000, 100)
	r.AddEntry(100, 5000, 100)
	r.AddEntry(200, 9000, 100)

	// First record: header + 1-byte len + 2-byte delta = 4 bytes.
	// 8 bytes fits record one (plus terminator) but not two.
	buf := make([]byte, 8)
	n, packed, err := r.Pack(0, 300, buf)
	require.NoError(t, err)
	require.Equal(t, uint64(100), packed, "only whole first entry fits")
	require.LessOrEqual(t, n, 8)

	var head Runs
	require.NoError(t, head.Unpack(buf[:n], 0, packed-1))
	want := []Entry{{VCN: 0, LCN: 1000, Len: 100}}
	if diff := cmp.Diff(want, entriesOf(&head)); diff != "" {
		t.Fatalf("partial pack decode (-want +got):\n%s", diff)
	}

	// Continuation pack picks up at the split point.
	buf2 := make([]byte, 64)
	n2, packed2, err := r.Pack(packed, 300-packed, buf2)
	require.NoError(t, err)
	require.Equal(t, uint64(200), packed2)

	var tail Runs
	require.NoError(t, tail.Unpack(buf2[:n2], packed, 299))
	require.Equal(t, 2, tail.Len())
}

func Test_Pack_MidEntryStart(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)

	buf := make([]byte, 16)
	n, packed, err := r.Pack(4, 6, buf)
	require.NoError(t, err)
	require.Equal(t, uint64(6), packed)

	var got Runs
	require.NoError(t, got.Unpack(buf[:n], 4, 9))
	want := []Entry{{VCN: 4, LCN: 504, Len: 6}}
	if diff := cmp.Diff(want, entriesOf(&got)); diff != "" {
		t.Fatalf("mid-entry pack (-want +got):\n%s", diff)
	}
}

func Test_Unpack_Empty(t *testing.T) {
	var r Runs
	// evcn+1 == svcn is the canonical empty encoding.
	require.NoError(t, r.Unpack([]byte{0}, 5, 4))
	require.True(t, r.Empty())
}

func Test_Unpack_CorruptTotal(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	buf := make([]byte, 32)
	n, _, err := r.Pack(0, 10, buf)
	require.NoError(t, err)

	var got Runs
	// Declared range disagrees with the encoded total.
	err = got.Unpack(buf[:n], 0, 20)
	require.ErrorIs(t, err, ErrCorrupt)
	require.True(t, got.Empty(), "failed decode must not leave partial state")
}

func Test_Unpack_Truncated(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	buf := make([]byte, 32)
	n, _, err := r.Pack(0, 10, buf)
	require.NoError(t, err)

	var got Runs
	// Drop the terminator: buffer now ends mid-sequence.
	err = got.Unpack(buf[:n-1], 0, 9)
	require.ErrorIs(t, err, ErrTruncated)

	// Cut inside a field.
	err = got.Unpack(buf[:2], 0, 9)
	require.ErrorIs(t, err, ErrTruncated)
}

func Test_Unpack_LenientAcceptsOverWide(t *testing.T) {
	// length 5 encoded in 2 bytes, delta 7 in 2 bytes: legal but not minimal.
	buf := []byte{0x22, 0x05, 0x00, 0x07, 0x00, 0x00}

	var r Runs
	require.NoError(t, r.Unpack(buf, 0, 4))
	want := []Entry{{VCN: 0, LCN: 7, Len: 5}}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("lenient decode (-want +got):\n%s", diff)
	}
}

type fakeChecker struct {
	units uint64
	used  func(first, count uint64) bool
}

func (c fakeChecker) Units() uint64 { return c.units }
func (c fakeChecker) RangeUsed(first, count uint64) bool {
	return c.used(first, count)
}

func Test_UnpackStrict_RejectsOverWide(t *testing.T) {
	buf := []byte{0x22, 0x05, 0x00, 0x07, 0x00, 0x00}
	chk := fakeChecker{units: 1 << 20, used: func(uint64, uint64) bool { return true }}

	var r Runs
	err := r.UnpackStrict(buf, 0, 4, chk)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_UnpackStrict_CrossChecksBitmap(t *testing.T) {
	var src Runs
	src.AddEntry(0, 500, 10)
	buf := make([]byte, 32)
	n, _, err := src.Pack(0, 10, buf)
	require.NoError(t, err)

	// Physical range marked free in the bitmap: corruption.
	chk := fakeChecker{units: 1 << 20, used: func(uint64, uint64) bool { return false }}
	var r Runs
	require.ErrorIs(t, r.UnpackStrict(buf[:n], 0, 9, chk), ErrCorrupt)

	// Physical range beyond the bitmap: corruption.
	chk = fakeChecker{units: 505, used: func(uint64, uint64) bool { return true }}
	require.ErrorIs(t, r.UnpackStrict(buf[:n], 0, 9, chk), ErrCorrupt)

	// Healthy cross-check passes.
	chk = fakeChecker{units: 1 << 20, used: func(uint64, uint64) bool { return true }}
	require.NoError(t, r.UnpackStrict(buf[:n], 0, 9, chk))
}

func Test_HighestVCN(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(15, 700, 5) // hole [10,15)

	buf := make([]byte, 32)
	n, _, err := r.Pack(0, 20, buf)
	require.NoError(t, err)

	highest, ok, err := HighestVCN(0, buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(19), highest)

	// Empty buffer describes no units.
	_, ok, err = HighestVCN(0, []byte{0})
	require.NoError(t, err)
	require.False(t, ok)

	// Truncated buffer surfaces the decode error.
	_, _, err = HighestVCN(0, buf[:1])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
