package trie

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

// checkEquivalence asserts that the baseline and optimized engines agree
// on the root hash and on the lookup result for every key in the pool.
// The equivalence requirement is exhaustive per operation, not sampled.
func checkEquivalence(t *testing.T, base *Trie, fast *FastTrie, pool [][]byte, step string) {
	t.Helper()
	rb, okB := base.RootHash()
	rf, okF := fast.RootHash()
	if okB != okF || rb != rf {
		t.Fatalf("%s: root divergence: baseline (%s, %v) vs fast (%s, %v)", step, rb, okB, rf, okF)
	}
	for _, k := range pool {
		vb, errB := base.Get(k)
		vf, errF := fast.Get(k)
		if (errB == nil) != (errF == nil) {
			t.Fatalf("%s: Get(%x) error divergence: %v vs %v", step, k, errB, errF)
		}
		if !bytes.Equal(vb, vf) {
			t.Fatalf("%s: Get(%x) divergence: %q vs %q", step, k, vb, vf)
		}
	}
}

func TestFastTrieEquivalenceScripted(t *testing.T) {
	base := New()
	fast := NewFastTrie()

	type op struct {
		del   bool
		key   []byte
		value []byte
	}
	script := []op{
		{key: []byte{0x02, 0x00}, value: []byte("a")},
		{key: []byte{0x01, 0x00}, value: []byte("b")},
		{key: []byte{0x01, 0x05}, value: []byte("c")},
		{key: []byte{0x03, 0x00}, value: []byte("d")},
		{key: []byte{0x01, 0x05}, value: []byte("c2")}, // replace
		{del: true, key: []byte{0x01, 0x00}},
		{key: nil, value: []byte("empty-key")},
		{key: []byte{0x01, 0x05, 0x77}, value: []byte("deep")},
		{del: true, key: []byte{0x02, 0x00}},
		{del: true, key: []byte{0x09}}, // absent
		{del: true, key: nil},
		{del: true, key: []byte{0x01, 0x05}},
		{del: true, key: []byte{0x01, 0x05, 0x77}},
		{del: true, key: []byte{0x03, 0x00}},
	}
	pool := [][]byte{
		nil, {0x01, 0x00}, {0x01, 0x05}, {0x01, 0x05, 0x77},
		{0x02, 0x00}, {0x03, 0x00}, {0x09},
	}
	for i, o := range script {
		var errB, errF error
		if o.del {
			errB = base.Delete(o.key)
			errF = fast.Delete(o.key)
		} else {
			errB = base.Insert(o.key, o.value)
			errF = fast.Insert(o.key, o.value)
		}
		if errB != nil || errF != nil {
			t.Fatalf("op %d: baseline err %v, fast err %v", i, errB, errF)
		}
		checkEquivalence(t, base, fast, pool, fmt.Sprintf("op %d", i))
	}
	if _, ok := fast.RootHash(); ok {
		t.Fatalf("fast trie not empty after draining script")
	}
}

// Identical values under different prefixes make distinct trie positions
// reference the same content hash, so the store holds one node object for
// both. Growing the subtree through one position and then collapsing a
// branch through the other must leave the untouched shared node resolving
// to its original hash.
func TestFastTrieEquivalenceSharedSubtrees(t *testing.T) {
	base := New()
	fast := NewFastTrie()

	insert := func(k, v []byte) {
		t.Helper()
		if err := base.Insert(k, v); err != nil {
			t.Fatal(err)
		}
		if err := fast.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}
	pool := [][]byte{
		{0x10, 0x05}, {0x10, 0x15}, {0x20, 0x05}, {0x20, 0x15},
		{0x27, 0x00}, {0x10, 0x25},
	}

	// Same branch content under prefixes 1 and 2.
	for _, k := range pool[:4] {
		insert(k, []byte("x"))
	}
	insert([]byte{0x27, 0x00}, []byte("e"))
	checkEquivalence(t, base, fast, pool, "seed")

	// Mutate the shared subtree via prefix 1 only.
	insert([]byte{0x10, 0x25}, []byte("y"))
	checkEquivalence(t, base, fast, pool, "grow")

	// Collapse a branch via prefix 2, re-storing the untouched child.
	if err := base.Delete([]byte{0x27, 0x00}); err != nil {
		t.Fatal(err)
	}
	if err := fast.Delete([]byte{0x27, 0x00}); err != nil {
		t.Fatal(err)
	}
	checkEquivalence(t, base, fast, pool, "collapse")
}

func TestFastTrieEquivalenceRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(0x7269656b)) // fixed seed, reproducible

	// Key pool with heavy prefix sharing to exercise splits and merges.
	var pool [][]byte
	for i := 0; i < 48; i++ {
		key := make([]byte, 1+rng.Intn(4))
		for j := range key {
			key[j] = byte(rng.Intn(4)) // small alphabet -> collisions
		}
		pool = append(pool, key)
	}
	pool = append(pool, nil)

	base := New()
	fast := NewFastTrie()
	for i := 0; i < 600; i++ {
		k := pool[rng.Intn(len(pool))]
		if rng.Intn(3) == 0 {
			if err := base.Delete(k); err != nil {
				t.Fatalf("op %d: baseline delete: %v", i, err)
			}
			if err := fast.Delete(k); err != nil {
				t.Fatalf("op %d: fast delete: %v", i, err)
			}
		} else {
			// Small value alphabet too, so distinct positions routinely
			// hold identical subtree content and share store entries.
			v := []byte(fmt.Sprintf("v%d", rng.Intn(4)))
			if err := base.Insert(k, v); err != nil {
				t.Fatalf("op %d: baseline insert: %v", i, err)
			}
			if err := fast.Insert(k, v); err != nil {
				t.Fatalf("op %d: fast insert: %v", i, err)
			}
		}
		checkEquivalence(t, base, fast, pool, fmt.Sprintf("op %d", i))
	}
}

func TestFastTrieIteratorMatchesBaseline(t *testing.T) {
	base := New()
	fast := NewFastTrie()
	keys := [][]byte{{0x02, 0x00}, {0x01, 0x00}, {0x01, 0x05}, {0x03, 0x00}}
	for i, k := range keys {
		v := []byte(fmt.Sprintf("v%d", i))
		if err := base.Insert(k, v); err != nil {
			t.Fatal(err)
		}
		if err := fast.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}
	itBase, itFast := base.Iterator(), fast.Iterator()
	for itBase.Next() {
		if !itFast.Next() {
			t.Fatalf("fast iterator exhausted early")
		}
		if !bytes.Equal(itBase.Key, itFast.Key) || !bytes.Equal(itBase.Value, itFast.Value) {
			t.Fatalf("iterator divergence: (%x, %q) vs (%x, %q)", itBase.Key, itBase.Value, itFast.Key, itFast.Value)
		}
	}
	if itFast.Next() {
		t.Fatalf("fast iterator has extra entries")
	}
	if itBase.Err() != nil || itFast.Err() != nil {
		t.Fatalf("iterator errors: %v, %v", itBase.Err(), itFast.Err())
	}
}

func TestFastTrieReset(t *testing.T) {
	fast := NewFastTrie()
	if err := fast.Insert([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	fast.Reset()
	if _, ok := fast.RootHash(); ok {
		t.Fatalf("root survives Reset")
	}
	if got, err := fast.Get([]byte("k")); err != nil || got != nil {
		t.Fatalf("Get after Reset = %q, %v", got, err)
	}
	// The engine is fully usable after a reset.
	if err := fast.Insert([]byte("k"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err := fast.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("Get after reuse = %q, %v", got, err)
	}
}

func TestFastTrieArenaCadence(t *testing.T) {
	// Push well past the reset interval; correctness must be unaffected
	// by arena reclamation.
	fast := NewFastTrie()
	base := New()
	for i := 0; i < 3*arenaResetInterval; i++ {
		k := []byte{byte(i), byte(i >> 8)}
		v := []byte{byte(i * 7)}
		if err := fast.Insert(k, v); err != nil {
			t.Fatal(err)
		}
		if err := base.Insert(k, v); err != nil {
			t.Fatal(err)
		}
	}
	rb, _ := base.RootHash()
	rf, _ := fast.RootHash()
	if rb != rf {
		t.Fatalf("roots diverge across arena resets: %s vs %s", rb, rf)
	}
}
