package ordmap

import (
	"math/rand"
	"sort"
	"testing"
)

func intCmp(a, b int) int { return a - b }

// collectInOrder walks the leaf level via Begin/Next and returns every
// key, used to check against a reference sorted slice.
func collectInOrder[K any, V any](t *OrderedMap[K, V]) []K {
	var out []K
	for c := t.Begin(); c.Valid(); c.Next() {
		out = append(out, c.Entry().Key)
	}
	return out
}

// checkStructure walks the whole tree validating every invariant in
// spec.md §8 property 2: uniform leaf depth, node occupancy bounds
// (root exempt), consistent sibling links at every level, and every
// internal separator equal to its right child's subtree minimum, with
// the tree's global minimum appearing nowhere as a separator.
func checkStructure[K any, V any](t *testing.T, tr *OrderedMap[K, V]) {
	t.Helper()
	if tr.size == 0 {
		return
	}
	globalMin := findMin(tr.root)

	var leafDepths []int
	var walk func(n *node[K, V], depth int, isRoot bool)
	walk = func(n *node[K, V], depth int, isRoot bool) {
		if n.isLeaf {
			leafDepths = append(leafDepths, depth)
			if !isRoot {
				if len(n.keys) < tr.minLeafEntries || len(n.keys) > tr.leafCap {
					t.Fatalf("leaf occupancy %d out of [%d, %d]", len(n.keys), tr.minLeafEntries, tr.leafCap)
				}
			}
			for i := 1; i < len(n.keys); i++ {
				if tr.cmp(n.keys[i-1], n.keys[i]) >= 0 {
					t.Fatalf("leaf entries not strictly ascending at %d", i)
				}
			}
			if n.left != nil && n.left.right != n {
				t.Fatalf("left sibling link inconsistent")
			}
			if n.right != nil && n.right.left != n {
				t.Fatalf("right sibling link inconsistent")
			}
			return
		}
		if !isRoot {
			if len(n.children) < tr.minChildren || len(n.children) > tr.degree {
				t.Fatalf("internal occupancy (children=%d) out of [%d, %d]", len(n.children), tr.minChildren, tr.degree)
			}
		} else if len(n.children) < 2 {
			t.Fatalf("root internal node has fewer than 2 children: %d", len(n.children))
		}
		if len(n.keys) != len(n.children)-1 {
			t.Fatalf("internal node has %d keys and %d children", len(n.keys), len(n.children))
		}
		if n.left != nil && n.left.right != n {
			t.Fatalf("internal left sibling link inconsistent")
		}
		if n.right != nil && n.right.left != n {
			t.Fatalf("internal right sibling link inconsistent")
		}
		for i, sep := range n.keys {
			rightChildMin := findMin(n.children[i+1])
			if tr.cmp(sep, rightChildMin) != 0 {
				t.Fatalf("separator %d does not equal right child's subtree minimum", i)
			}
			if tr.cmp(sep, globalMin) == 0 {
				t.Fatalf("global minimum must never appear as a separator")
			}
		}
		for i, c := range n.children {
			walk(c, depth+1, false)
			_ = i
		}
	}
	walk(tr.root, 0, true)

	for i := 1; i < len(leafDepths); i++ {
		if leafDepths[i] != leafDepths[0] {
			t.Fatalf("leaves at inconsistent depths: %v", leafDepths)
		}
	}

	// Walk the leaf sibling chain end to end and confirm it visits
	// every leaf exactly once in ascending key order.
	first := tr.root
	for !first.isLeaf {
		first = first.children[0]
	}
	var chain []K
	seen := 0
	for n := first; n != nil; n = n.right {
		chain = append(chain, n.keys...)
		seen++
		if seen > tr.size+10 {
			t.Fatalf("leaf sibling chain looks cyclic")
		}
	}
	for i := 1; i < len(chain); i++ {
		if tr.cmp(chain[i-1], chain[i]) >= 0 {
			t.Fatalf("leaf chain not strictly ascending")
		}
	}
	if len(chain) != tr.size {
		t.Fatalf("leaf chain length %d != tree size %d", len(chain), tr.size)
	}
}

func TestS1AddContainsGet(t *testing.T) {
	tr := New[int, string](intCmp, 4, 4, nil)
	ok, err := tr.Add(100, "payload_A")
	if err != nil || !ok {
		t.Fatalf("Add = %v, %v", ok, err)
	}
	if !tr.Contains(100) {
		t.Fatalf("expected Contains(100) = true")
	}
	v, found := tr.Get(100)
	if !found || v != "payload_A" {
		t.Fatalf("Get(100) = %q, %v, want payload_A, true", v, found)
	}
}

func TestS2RangeScan(t *testing.T) {
	tr := New[int, int](intCmp, 4, 4, nil)
	for i := 1; i <= 100; i++ {
		if _, err := tr.Add(i, i); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	entries := tr.Range(10, 20)
	if len(entries) != 11 {
		t.Fatalf("Range(10,20) returned %d entries, want 11", len(entries))
	}
	for i, e := range entries {
		if e.Key != 10+i {
			t.Fatalf("entry %d has key %d, want %d", i, e.Key, 10+i)
		}
	}
}

func TestS3InsertionSequenceAndInvariants(t *testing.T) {
	tr := New[int, struct{}](intCmp, 3, 2, nil)
	seq := []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 10}
	for _, k := range seq {
		if _, err := tr.Add(k, struct{}{}); err != nil {
			t.Fatalf("Add(%d): %v", k, err)
		}
		checkStructure(t, tr)
	}
	got := collectInOrder(tr)
	for i, k := range got {
		if k != i+1 {
			t.Fatalf("in-order traversal[%d] = %d, want %d", i, k, i+1)
		}
	}
}

func TestS4DeletionSequenceAndDepthDecrease(t *testing.T) {
	tr := New[int, struct{}](intCmp, 3, 2, nil)
	for _, k := range []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 10} {
		tr.Add(k, struct{}{})
	}
	depthBefore := tr.Depth()

	for _, k := range []int{5, 6, 1} {
		if !tr.Remove(k) {
			t.Fatalf("Remove(%d) = false, want true", k)
		}
		checkStructure(t, tr)
	}

	got := collectInOrder(tr)
	want := []int{2, 3, 4, 7, 8, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("in-order traversal = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("in-order traversal = %v, want %v", got, want)
		}
	}
	if tr.Depth() >= depthBefore {
		t.Fatalf("expected tree depth to strictly decrease from %d, got %d", depthBefore, tr.Depth())
	}
}

func TestIdempotence(t *testing.T) {
	tr := New[int, int](intCmp, 4, 4, nil)
	ok, _ := tr.Add(1, 1)
	if !ok {
		t.Fatalf("first Add should succeed")
	}
	ok, _ = tr.Add(1, 2)
	if ok {
		t.Fatalf("second Add of the same key should return false")
	}
	v, _ := tr.Get(1)
	if v != 1 {
		t.Fatalf("duplicate Add must not mutate the stored value, got %d", v)
	}
	if !tr.Remove(1) {
		t.Fatalf("first Remove should succeed")
	}
	if tr.Remove(1) {
		t.Fatalf("second Remove should return false")
	}
}

func TestConsistencyWithReferenceSetRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := New[int, int](intCmp, 4, 4, nil)
	reference := map[int]bool{}

	const universe = 500
	for i := 0; i < 4000; i++ {
		k := rng.Intn(universe)
		switch rng.Intn(3) {
		case 0:
			ok, err := tr.Add(k, k)
			if err != nil {
				t.Fatalf("Add: %v", err)
			}
			want := !reference[k]
			if ok != want {
				t.Fatalf("Add(%d) = %v, want %v", k, ok, want)
			}
			reference[k] = true
		case 1:
			ok := tr.Remove(k)
			want := reference[k]
			if ok != want {
				t.Fatalf("Remove(%d) = %v, want %v", k, ok, want)
			}
			delete(reference, k)
		default:
			if tr.Contains(k) != reference[k] {
				t.Fatalf("Contains(%d) = %v, want %v", k, tr.Contains(k), reference[k])
			}
		}
		if i%200 == 0 {
			checkStructure(t, tr)
		}
	}
	checkStructure(t, tr)

	var want []int
	for k := range reference {
		want = append(want, k)
	}
	sort.Ints(want)
	got := collectInOrder(tr)
	if len(got) != len(want) {
		t.Fatalf("final size %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("final contents diverge at %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestRangeQueryAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := New[int, int](intCmp, 5, 6, nil)
	var keys []int
	for i := 0; i < 300; i++ {
		k := rng.Intn(2000)
		if ok, _ := tr.Add(k, k*10); ok {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	for trial := 0; trial < 20; trial++ {
		lo := rng.Intn(2000)
		hi := lo + rng.Intn(200)
		entries := tr.Range(lo, hi)

		var want []int
		for _, k := range keys {
			if k >= lo && k <= hi {
				want = append(want, k)
			}
		}
		if len(entries) != len(want) {
			t.Fatalf("Range(%d,%d) returned %d entries, want %d", lo, hi, len(entries), len(want))
		}
		for i, e := range entries {
			if e.Key != want[i] || e.Value != want[i]*10 {
				t.Fatalf("Range(%d,%d)[%d] = (%d,%d), want (%d,%d)", lo, hi, i, e.Key, e.Value, want[i], want[i]*10)
			}
		}
	}
}

func TestSetSpecializationStoresNoMeaningfulValue(t *testing.T) {
	tr := New[int, struct{}](intCmp, 4, 4, nil)
	tr.Add(1, struct{}{})
	if !tr.Contains(1) {
		t.Fatalf("expected Contains(1) = true")
	}
	if ok := tr.Set(1, struct{}{}); !ok {
		t.Fatalf("Set on a present key should report true even though there is nothing to overwrite")
	}
	if ok := tr.Set(2, struct{}{}); ok {
		t.Fatalf("Set on an absent key should return false")
	}
}

func TestCapacityExhaustedRollsBackCleanly(t *testing.T) {
	alloc := &countingArena{cap: 1}
	tr := New[int, int](intCmp, 4, 4, alloc)
	// The arena starts with its one allocation spent on the root, so
	// any operation requiring a further node allocation must fail
	// without mutating the tree.
	for i := 0; i < 4; i++ {
		if _, err := tr.Add(i, i); err != nil {
			t.Fatalf("Add(%d) within leaf capacity should not need another node: %v", i, err)
		}
	}
	sizeBefore := tr.Size()
	if _, err := tr.Add(99, 99); err == nil {
		t.Fatalf("expected a capacity error once the leaf is full and a split is required")
	}
	if tr.Size() != sizeBefore {
		t.Fatalf("a failed Add must not change the tree's size")
	}
	checkStructure(t, tr)
}

// countingArena is a minimal arena.Allocator-compatible stub with a
// hard cap, used to exercise CapacityExhausted without importing the
// arena package's own type (which ordmap parameterizes privately).
type countingArena struct {
	cap int
	n   int
}

func (a *countingArena) Alloc() (*node[int, int], error) {
	if a.n >= a.cap {
		return nil, errCapacity
	}
	a.n++
	return new(node[int, int]), nil
}

func (a *countingArena) Free(n *node[int, int]) {
	if a.n > 0 {
		a.n--
	}
}

func (a *countingArena) Len() int { return a.n }

var errCapacity = &capacityError{}

type capacityError struct{}

func (e *capacityError) Error() string { return "test: capacity exhausted" }
