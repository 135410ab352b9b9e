package run

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func entriesOf(r *Runs) []Entry {
	out := make([]Entry, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		e, _ := r.Entry(i)
		out = append(out, e)
	}
	return out
}

func Test_AddEntry_MergesContiguous(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(10, 510, 5) // contiguous both ways -> merged

	want := []Entry{{VCN: 0, LCN: 500, Len: 15}}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func Test_AddEntry_LogicalOnlyAdjacencyStaysSplit(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(10, 520, 5) // logically adjacent, physically not

	want := []Entry{
		{VCN: 0, LCN: 500, Len: 10},
		{VCN: 10, LCN: 520, Len: 5},
	}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func Test_AddEntry_BridgesGap(t *testing.T) {
	var r Runs
	r.AddEntry(0, 100, 4)
	r.AddEntry(8, 108, 4)
	// Fills the hole and is contiguous with both neighbors.
	r.AddEntry(4, 104, 4)

	want := []Entry{{VCN: 0, LCN: 100, Len: 12}}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func Test_Lookup(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(20, 700, 5)

	lcn, remain, idx, ok := r.Lookup(3)
	if !ok || lcn != 503 || remain != 7 || idx != 0 {
		t.Fatalf("Lookup(3) = (%d, %d, %d, %v)", lcn, remain, idx, ok)
	}

	lcn, remain, idx, ok = r.Lookup(24)
	if !ok || lcn != 704 || remain != 1 || idx != 1 {
		t.Fatalf("Lookup(24) = (%d, %d, %d, %v)", lcn, remain, idx, ok)
	}

	// Holes and out-of-range lookups miss.
	if _, _, _, ok := r.Lookup(12); ok {
		t.Fatal("Lookup(12) should miss inside hole")
	}
	if _, _, _, ok := r.Lookup(25); ok {
		t.Fatal("Lookup(25) should miss past the end")
	}
}

func Test_Truncate(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(20, 700, 10)

	// Cut inside the second entry: its head survives.
	r.Truncate(25)
	want := []Entry{
		{VCN: 0, LCN: 500, Len: 10},
		{VCN: 20, LCN: 700, Len: 5},
	}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("after Truncate(25) (-want +got):\n%s", diff)
	}

	// Cut at an entry boundary: drops whole entries.
	r.Truncate(10)
	want = []Entry{{VCN: 0, LCN: 500, Len: 10}}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("after Truncate(10) (-want +got):\n%s", diff)
	}

	r.Truncate(0)
	if !r.Empty() {
		t.Fatal("Truncate(0) should empty the list")
	}
}

func Test_TruncateHead(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(20, 700, 10)

	// Cut inside the first entry: its tail survives with LCN advanced.
	r.TruncateHead(4)
	want := []Entry{
		{VCN: 4, LCN: 504, Len: 6},
		{VCN: 20, LCN: 700, Len: 10},
	}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("after TruncateHead(4) (-want +got):\n%s", diff)
	}

	// Cut in the hole: first entry drops entirely.
	r.TruncateHead(15)
	want = []Entry{{VCN: 20, LCN: 700, Len: 10}}
	if diff := cmp.Diff(want, entriesOf(&r)); diff != "" {
		t.Fatalf("after TruncateHead(15) (-want +got):\n%s", diff)
	}
}

func Test_IsMappedFull(t *testing.T) {
	var r Runs
	r.AddEntry(0, 500, 10)
	r.AddEntry(10, 700, 10) // physically split, logically contiguous
	r.AddEntry(30, 900, 5)

	cases := []struct {
		start, end uint64
		want       bool
	}{
		{0, 20, true},   // spans the physical split with no hole
		{5, 15, true},   // straddles entry boundary
		{0, 21, false},  // runs into the hole
		{15, 35, false}, // hole in the middle
		{30, 35, true},
		{31, 31, true}, // empty range is trivially mapped
		{25, 30, false},
	}
	for _, tc := range cases {
		if got := r.IsMappedFull(tc.start, tc.end); got != tc.want {
			t.Errorf("IsMappedFull(%d, %d) = %v, want %v", tc.start, tc.end, got, tc.want)
		}
	}
}
