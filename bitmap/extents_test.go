package bitmap

import (
	"math/rand"
	"testing"
)

// Random mutation walk: after every step the window counts, totalFree and
// the extent cache must agree with the raw bitmap.
func Test_Property_RandomWalkInvariants(t *testing.T) {
	const nbits = 4096
	rng := rand.New(rand.NewSource(1))

	b := newTestBitmap(t, nbits, &Options{WindowBits: 256})
	b.RebuildCache()

	for step := 0; step < 2000; step++ {
		first := rng.Uint64() % nbits
		count := 1 + rng.Uint64()%128
		if first+count > nbits {
			count = nbits - first
		}
		var err error
		if rng.Intn(2) == 0 {
			err = b.SetUsed(first, count)
		} else {
			err = b.SetFree(first, count)
		}
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if step%97 == 0 {
			if err := b.Verify(); err != nil {
				t.Fatalf("step %d: %v", step, err)
			}
		}
	}
	if err := b.Verify(); err != nil {
		t.Fatal(err)
	}

	// Cross-check totalFree against a direct popcount.
	var zeros uint64
	for i := uint64(0); i < nbits; i++ {
		if b.bits[i>>3]&(1<<(i&7)) == 0 {
			zeros++
		}
	}
	if zeros != b.TotalFree() {
		t.Fatalf("totalFree %d, raw zero bits %d", b.TotalFree(), zeros)
	}
}

func Test_Cache_LazyBuildOnFirstFind(t *testing.T) {
	b := newTestBitmap(t, 1024, nil)
	if b.state != cacheUninit {
		t.Fatal("Init must not build the cache eagerly")
	}
	if _, _, err := b.Find(1, 0, FindFull); err != nil {
		t.Fatal(err)
	}
	if b.state != cacheCurrent {
		t.Fatal("first Find must build the cache")
	}
}

func Test_Cache_StaleAfterThreshold(t *testing.T) {
	// Tiny threshold: a handful of fragments abandons the cache.
	b := newTestBitmap(t, 1024, &Options{MaxExtents: 4})
	if err := b.SetUsed(0, 1024); err != nil {
		t.Fatal(err)
	}
	b.RebuildCache() // zero extents, current

	if b.state != cacheCurrent {
		t.Fatal("expected current cache")
	}
	// Each isolated free bit adds one extent; the fifth trips the bound.
	for i := uint64(0); i < 10; i += 2 {
		if err := b.SetFree(i, 1); err != nil {
			t.Fatal(err)
		}
	}
	if b.state != cacheStale {
		t.Fatalf("cache state = %d, want stale", b.state)
	}

	// Stale cache: mutations skip cache maintenance, searches still work.
	if err := b.SetFree(100, 50); err != nil {
		t.Fatal(err)
	}
	start, got, err := b.Find(50, 0, FindFull)
	if err != nil || start != 100 || got != 50 {
		t.Fatalf("stale-path Find = (%d, %d, %v)", start, got, err)
	}

	// No implicit rebuild: still stale after searching.
	if b.state != cacheStale {
		t.Fatal("Find must not rebuild a stale cache")
	}

	// Explicit rebuild with a healthy threshold returns to current.
	b.opt.MaxExtents = DefaultOptions.MaxExtents
	b.RebuildCache()
	if b.state != cacheCurrent {
		t.Fatal("RebuildCache must return to current")
	}
	if err := b.Verify(); err != nil {
		t.Fatal(err)
	}
}

func Test_Cache_MergeOnFree(t *testing.T) {
	b := newTestBitmap(t, 1024, nil)
	if err := b.SetUsed(0, 1024); err != nil {
		t.Fatal(err)
	}
	b.RebuildCache()

	// Free three touching pieces out of order: one merged extent.
	for _, r := range [][2]uint64{{0, 100}, {200, 100}, {100, 100}} {
		if err := b.SetFree(r[0], r[1]); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.cacheLen(); n != 1 {
		t.Fatalf("cache extents = %d, want 1 merged", n)
	}
	e, ok := b.byStart.Min()
	if !ok || e.start != 0 || e.count != 300 {
		t.Fatalf("merged extent = %+v", e)
	}
	if err := b.Verify(); err != nil {
		t.Fatal(err)
	}
}

func Test_Cache_SplitOnUse(t *testing.T) {
	b := newTestBitmap(t, 1024, nil)
	b.RebuildCache() // single extent {0, 1024}

	if err := b.SetUsed(400, 100); err != nil {
		t.Fatal(err)
	}
	if n := b.cacheLen(); n != 2 {
		t.Fatalf("cache extents = %d, want 2 after split", n)
	}
	if err := b.Verify(); err != nil {
		t.Fatal(err)
	}
}
