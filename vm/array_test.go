package vm

import (
	"errors"
	"math"
	"testing"
)

func ints(a *Array) []int64 {
	var out []int64
	for _, v := range a.Values() {
		out = append(out, ToInt(v))
	}
	return out
}

func sameInts(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

func TestArrayStrategyTransitions(t *testing.T) {
	a := NewArray()
	if a.Strategy() != StrategyEmpty {
		t.Fatalf("new array = %s", a.Strategy())
	}
	a.Append(Int(1))
	a.Append(Int(2))
	if a.Strategy() != StrategyIntList {
		t.Errorf("ints = %s, want int-list", a.Strategy())
	}
	a.Set(IntKey(0), Int(5))
	if a.Strategy() != StrategyIntList {
		t.Errorf("in-range int write = %s, want int-list", a.Strategy())
	}
	a.Append(NewString("s"))
	if a.Strategy() != StrategyList {
		t.Errorf("mixed = %s, want list", a.Strategy())
	}
	a.Set(StrKey("k"), Int(1))
	if a.Strategy() != StrategyHash {
		t.Errorf("string key = %s, want hash", a.Strategy())
	}
	if a.Len() != 4 {
		t.Errorf("len = %d, want 4", a.Len())
	}

	f := NewList(Float(1.5), Float(2.5))
	if f.Strategy() != StrategyFloatList {
		t.Errorf("floats = %s, want float-list", f.Strategy())
	}
	f.Set(IntKey(1), Int(3))
	if f.Strategy() != StrategyList {
		t.Errorf("int into float list = %s, want list", f.Strategy())
	}

	sparse := NewList(Int(1))
	sparse.Set(IntKey(5), Int(2))
	if sparse.Strategy() != StrategyHash {
		t.Errorf("sparse write = %s, want hash", sparse.Strategy())
	}
	if sparse.NextIndex() != 6 {
		t.Errorf("next index = %d, want 6", sparse.NextIndex())
	}
}

func TestArrayFromPairs(t *testing.T) {
	a := NewArrayFromPairs(
		[]Key{StrKey("a"), IntKey(3), StrKey("a"), StrKey("b")},
		[]Value{Int(1), Int(2), Int(3), Int(4)},
	)
	if a.Strategy() != StrategyIndexed {
		t.Fatalf("strategy = %s, want indexed", a.Strategy())
	}
	if a.Len() != 3 {
		t.Errorf("len = %d, want 3", a.Len())
	}
	if v, _ := a.Get(StrKey("a")); v != Int(3) {
		t.Errorf("duplicate key keeps the last value, got %v", v)
	}
	if keys := a.Keys(); keys[0] != StrKey("a") || keys[1] != IntKey(3) {
		t.Errorf("duplicate key keeps its first position: %v", keys)
	}
	if a.NextIndex() != 4 {
		t.Errorf("next index = %d, want 4", a.NextIndex())
	}

	a.Set(StrKey("b"), Int(40))
	if a.Strategy() != StrategyIndexed {
		t.Errorf("overwrite = %s, want indexed", a.Strategy())
	}
	a.Set(StrKey("c"), Int(5))
	if a.Strategy() != StrategyHash {
		t.Errorf("new key = %s, want hash", a.Strategy())
	}
	if keys := a.Keys(); len(keys) != 4 || keys[3] != StrKey("c") {
		t.Errorf("keys after insert = %v", keys)
	}
}

func TestArrayUnsetAndPop(t *testing.T) {
	a := NewList(Int(1), Int(2), Int(3))
	a.Unset(IntKey(1))
	if a.Strategy() != StrategyHash || a.Len() != 2 {
		t.Errorf("after unset: %s len %d", a.Strategy(), a.Len())
	}
	a.Unset(IntKey(2))
	a.Append(Int(9))
	if k := a.Keys(); k[len(k)-1] != IntKey(3) {
		t.Errorf("unset does not lower the next index: keys %v", k)
	}

	b := NewList(Int(1), Int(2))
	v, ok := b.Pop()
	if !ok || v != Int(2) {
		t.Errorf("pop = %v %v", v, ok)
	}
	if b.NextIndex() != 1 {
		t.Errorf("pop lowers the next index: %d", b.NextIndex())
	}
	b.Pop()
	if b.Strategy() != StrategyEmpty {
		t.Errorf("popping the last element = %s, want empty", b.Strategy())
	}
	if _, ok := b.Pop(); ok {
		t.Error("pop on empty array")
	}
}

func TestArrayHashCompaction(t *testing.T) {
	a := NewArray()
	for i := 0; i < 100; i++ {
		a.Set(StrKey(string(rune('a'+i%26))+string(rune('a'+i/26))), Int(int64(i)))
	}
	for i := 0; i < 90; i++ {
		a.Unset(a.Keys()[0])
	}
	if a.Len() != 10 {
		t.Fatalf("len = %d, want 10", a.Len())
	}
	if got := ints(a); got[0] != 90 || got[9] != 99 {
		t.Errorf("values after compaction = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Copy-on-write
// ---------------------------------------------------------------------------

func TestArrayCopyOnWrite(t *testing.T) {
	a := NewList(Int(1), Int(2))
	b := a.Copy()
	if b.Strategy() != StrategyCopy || a.Views() != 1 {
		t.Fatalf("copy = %s, views %d", b.Strategy(), a.Views())
	}
	if !sameInts(ints(b), 1, 2) {
		t.Errorf("copy reads %v", ints(b))
	}

	a.Append(Int(3))
	if !sameInts(ints(b), 1, 2) || !sameInts(ints(a), 1, 2, 3) {
		t.Errorf("write to parent: a=%v b=%v", ints(a), ints(b))
	}
	if a.Views() != 0 || b.Strategy() != StrategyIntList {
		t.Errorf("parent write should materialize the view: views %d, %s", a.Views(), b.Strategy())
	}

	c := a.Copy()
	c.Set(IntKey(0), Int(100))
	if !sameInts(ints(a), 1, 2, 3) || !sameInts(ints(c), 100, 2, 3) {
		t.Errorf("write to copy: a=%v c=%v", ints(a), ints(c))
	}
	if a.Views() != 0 {
		t.Errorf("copy write should unlink it, views %d", a.Views())
	}
}

func TestArrayCopyChains(t *testing.T) {
	tests := []struct {
		name  string
		write func(a, b, c *Array)
		a     []int64
		b     []int64
		c     []int64
	}{
		{"write root", func(a, b, c *Array) { a.Append(Int(9)) }, []int64{1, 2, 9}, []int64{1, 2}, []int64{1, 2}},
		{"write middle", func(a, b, c *Array) { b.Append(Int(9)) }, []int64{1, 2}, []int64{1, 2, 9}, []int64{1, 2}},
		{"write leaf", func(a, b, c *Array) { c.Append(Int(9)) }, []int64{1, 2}, []int64{1, 2}, []int64{1, 2, 9}},
		{"write all", func(a, b, c *Array) {
			c.Set(IntKey(0), Int(7))
			a.Set(IntKey(1), Int(8))
			b.Unset(IntKey(0))
		}, []int64{1, 8}, []int64{2}, []int64{7, 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewList(Int(1), Int(2))
			b := a.Copy()
			c := b.Copy()
			tc.write(a, b, c)
			if !sameInts(ints(a), tc.a...) || !sameInts(ints(b), tc.b...) || !sameInts(ints(c), tc.c...) {
				t.Errorf("a=%v b=%v c=%v", ints(a), ints(b), ints(c))
			}
		})
	}
}

func TestArrayCopyIsIdempotent(t *testing.T) {
	sources := map[string]*Array{
		"int list":   NewList(Int(1), Int(2)),
		"mixed list": NewList(Int(1), NewString("x"), NewList(Float(1.5))),
		"hash":       NewArrayFromPairs([]Key{StrKey("a"), IntKey(7)}, []Value{Int(1), NewList(Int(2))}),
		"empty":      NewArray(),
	}
	for name, a := range sources {
		once := a.Copy()
		twice := a.Copy().Copy()
		if !once.Equal(twice) || !twice.Equal(a) {
			t.Errorf("%s: copy().copy() differs from copy()", name)
		}
	}

	// Equal is strict and ordered.
	x := NewArrayFromPairs([]Key{StrKey("a"), StrKey("b")}, []Value{Int(1), Int(2)})
	y := NewArrayFromPairs([]Key{StrKey("b"), StrKey("a")}, []Value{Int(2), Int(1)})
	if x.Equal(y) {
		t.Error("arrays with different order are not equal")
	}
	if NewList(Int(1)).Equal(NewList(NewString("1"))) {
		t.Error("Equal compares elements strictly")
	}
}

func TestStoringTemporariesTransfersOwnership(t *testing.T) {
	tmp := NewArray()
	tmp.temp = true
	tmp.Append(NewList(Int(1)).Copy())
	if got := CopyForStore(tmp); got != Value(tmp) {
		t.Fatal("a temporary is stored without a copy")
	}
	if got := CopyForStore(tmp); got == Value(tmp) {
		t.Error("a stored array is copied by later stores")
	}

	interp, _ := newTestInterpreter(t)
	parent := NewList(Int(1))
	owned := NewArray()
	owned.Append(parent.Copy())
	owned.Append(NewList(parent.Copy()))
	if parent.Views() != 2 {
		t.Fatalf("views = %d", parent.Views())
	}
	interp.release(owned)
	if parent.Views() != 0 {
		t.Errorf("releasing an owner leaves %d nested views", parent.Views())
	}

	// A dropped view hands its own views their storage first.
	v := parent.Copy()
	w := v.Copy()
	interp.release(v)
	if parent.Views() != 0 || v.Views() != 0 || !sameInts(ints(w), 1) {
		t.Errorf("parent views %d, view views %d, w = %v", parent.Views(), v.Views(), ints(w))
	}
}

func TestArrayCopySharesReferences(t *testing.T) {
	a := NewList(Int(1), Int(2))
	ref := a.ReferenceAt(IntKey(0))
	b := a.Copy()
	b.Append(Int(3))
	ref.Store(Int(50))
	if v, _ := b.Get(IntKey(0)); v != Int(50) {
		t.Errorf("reference elements are shared by copies, got %v", v)
	}
	b.Set(IntKey(0), Int(60))
	if v, _ := a.Get(IntKey(0)); v != Int(60) {
		t.Errorf("writing a shared reference element is visible in both, got %v", v)
	}
}

func TestArrayNestedCopies(t *testing.T) {
	inner := NewList(Int(1))
	outer := NewArray()
	outer.Set(StrKey("in"), inner)
	dup := outer.Copy()

	n, err := dup.ContainerAt(StrKey("in"))
	if err != nil {
		t.Fatal(err)
	}
	n.Append(Int(2))
	if inner.Len() != 1 {
		t.Errorf("nested write through a copy reached the original: %v", ints(inner))
	}
	if v, _ := dup.Get(StrKey("in")); v.(*Array).Len() != 2 {
		t.Errorf("copy's nested array = %v", ints(v.(*Array)))
	}
}

func TestArrayContainerAtAutovivifies(t *testing.T) {
	a := NewArray()
	a.Set(StrKey("null"), Null)
	a.Set(StrKey("empty"), NewString(""))
	a.Set(StrKey("int"), Int(1))
	for _, k := range []string{"missing", "null", "empty"} {
		c, err := a.ContainerAt(StrKey(k))
		if err != nil || c == nil {
			t.Errorf("ContainerAt(%s) = %v, %v", k, c, err)
		}
	}
	if _, err := a.ContainerAt(StrKey("int")); err == nil {
		t.Error("a scalar cannot become an array")
	}
}

// ---------------------------------------------------------------------------
// Views and iteration
// ---------------------------------------------------------------------------

func TestViewListReusesSlots(t *testing.T) {
	l := newViewList()
	x, y, z := NewArray(), NewArray(), NewArray()
	sx := l.add(x)
	sy := l.add(y)
	l.add(z)
	l.remove(sy)
	if l.len() != 2 {
		t.Errorf("len = %d, want 2", l.len())
	}
	if s := l.add(NewArray()); s != sy {
		t.Errorf("freed slot %d not reused, got %d", sy, s)
	}
	l.remove(sx)
	l.remove(sx)
	if l.len() != 2 {
		t.Errorf("double remove changed len to %d", l.len())
	}
}

func TestIteratorSnapshot(t *testing.T) {
	a := NewList(Int(1), Int(2), Int(3))
	it := newIterator(a)
	if a.Views() != 1 {
		t.Fatalf("iterator should hold a view, views %d", a.Views())
	}

	var seen []int64
	for {
		_, v, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, ToInt(v.Deref()))
		a.Set(IntKey(2), Int(30))
		a.Append(Int(4))
	}
	if !sameInts(seen, 1, 2, 3) {
		t.Errorf("iterated %v, want [1 2 3]", seen)
	}
	if !it.Done() {
		t.Error("exhausted iterator should be done")
	}
}

func TestIteratorReleaseOnEarlyExit(t *testing.T) {
	a := NewList(Int(1), Int(2))
	it := newIterator(a)
	it.Next()
	if a.Views() != 1 {
		t.Fatalf("views = %d, want 1", a.Views())
	}
	it.Release()
	if a.Views() != 0 {
		t.Errorf("release should unlink the view, views %d", a.Views())
	}
	if _, _, ok := it.Next(); ok {
		t.Error("released iterator yielded")
	}

	it = newIterator(a)
	for {
		if _, _, ok := it.Next(); !ok {
			break
		}
	}
	if a.Views() != 0 {
		t.Errorf("exhaustion should release, views %d", a.Views())
	}
}

func TestRefIterator(t *testing.T) {
	a := NewArrayFromPairs([]Key{StrKey("x"), StrKey("y")}, []Value{Int(1), Int(2)})
	it := newRefIterator(a)
	for {
		k, r, ok := it.Next()
		if !ok {
			break
		}
		ref := r.(*Reference)
		ref.Store(Int(ToInt(ref.Deref()) * 10))
		if k == StrKey("x") {
			a.Set(StrKey("z"), Int(3))
		}
	}
	if got := ints(a); !sameInts(got, 10, 20, 30) {
		t.Errorf("by-reference iteration = %v, want [10 20 30]", got)
	}
}

func TestIteratorOverNil(t *testing.T) {
	it := newIterator(nil)
	if !it.Done() {
		t.Error("iterator over a non-array should start done")
	}
}

// ---------------------------------------------------------------------------
// Globals facade
// ---------------------------------------------------------------------------

func TestGlobalsArray(t *testing.T) {
	vars := NewVarStore()
	g := NewGlobalsArray(vars)
	vars.Cell("a").Store(Int(1))
	g.Set(StrKey("b"), Int(2))

	if c, ok := vars.Lookup("b"); !ok || c.Deref() != Int(2) {
		t.Errorf("write through facade not visible as a variable")
	}
	if v, _ := g.Get(StrKey("a")); v != Int(1) {
		t.Errorf("facade read = %v", v)
	}
	if g.Len() != 2 {
		t.Errorf("len = %d, want 2", g.Len())
	}

	snap := g.Copy()
	vars.Cell("a").Store(Int(100))
	if v, _ := snap.Get(StrKey("a")); v != Int(1) {
		t.Errorf("copy of the facade is a snapshot, got %v", v)
	}

	g.Unset(StrKey("a"))
	if _, ok := vars.Lookup("a"); ok {
		t.Error("unset through facade should remove the variable")
	}
}

func TestArrayAppendAfterMaxKey(t *testing.T) {
	a := NewArray()
	a.Set(IntKey(math.MaxInt64), Int(1))
	if a.CanAppend() {
		t.Fatal("the next index after PHP_INT_MAX is taken")
	}
	a.Append(Int(2))
	if a.Len() != 1 || a.Contains(IntKey(math.MinInt64)) {
		t.Errorf("append wrapped around: keys %v", a.Keys())
	}
	if c := a.Copy(); c.CanAppend() {
		t.Error("copies keep the full state")
	}

	ref := NewAppendRef(NewCell(a))
	if err := ref.store(Int(3)); !errors.Is(err, ErrArrayFull) {
		t.Errorf("store through [] = %v, want ErrArrayFull", err)
	}

	a.Unset(IntKey(math.MaxInt64))
	if a.CanAppend() {
		t.Error("unset does not lower the next index")
	}
	a.Set(IntKey(math.MaxInt64), Int(1))
	a.Pop()
	if !a.CanAppend() || a.NextIndex() != math.MaxInt64 {
		t.Errorf("after pop: can append %v, next %d", a.CanAppend(), a.NextIndex())
	}
}
