package vm

import (
	"errors"
	"iter"
	"math"
)

// ErrArrayFull is returned when an append finds the next index taken by
// the largest integer key.
var ErrArrayFull = errors.New("Cannot add element to the array as the next element is already occupied")

// nextFull marks an array whose largest key is math.MaxInt64.
const nextFull = math.MinInt64

// Array is an ordered map from Key to Value. The representation is a
// storage strategy picked from the contents and upgraded transparently:
// empty, packed int or float lists, a generic list, a hash, an eagerly
// built indexed map, a copy-on-write view, or the globals facade.
//
// Copy is O(1): it returns a view linked into this array's view list. The
// first write through either side breaks the sharing. A write to the
// parent materializes every live view first; a write to a view
// materializes it against the parent's current storage.
type Array struct {
	store storage
	next  int64
	views *viewList
	temp  bool // held only by an operand stack; the first store takes it
}

// NewArray returns an empty array.
func NewArray() *Array {
	return &Array{store: emptyStorage{}}
}

// NewList returns an array holding vals under keys 0..n-1. The array takes
// ownership of the values.
func NewList(vals ...Value) *Array {
	a := NewArray()
	for _, v := range vals {
		a.Append(v)
	}
	return a
}

// NewArrayFromPairs builds an indexed array from parallel keys and
// values. Later duplicates overwrite earlier values in place.
func NewArrayFromPairs(keys []Key, vals []Value) *Array {
	if len(keys) == 0 {
		return NewArray()
	}
	a := &Array{store: buildIndexed(keys, vals)}
	for _, k := range keys {
		a.bump(k)
	}
	return a
}

// NewConstArray builds an array constant. Keys running 0..n-1 in order
// give a packed list, like an unkeyed literal; anything else is indexed.
func NewConstArray(keys []Key, vals []Value) *Array {
	for n, k := range keys {
		if !k.IsInt() || k.Int() != int64(n) {
			return NewArrayFromPairs(keys, vals)
		}
	}
	return NewList(vals...)
}

// NewGlobalsArray returns the $GLOBALS facade over vars.
func NewGlobalsArray(vars *VarStore) *Array {
	return &Array{store: &globalsStorage{vars: vars}}
}

func (a *Array) Kind() Kind   { return KindArray }
func (a *Array) Deref() Value { return a }

// Strategy reports the current representation.
func (a *Array) Strategy() Strategy { return a.store.strategy() }

// data resolves copy views to the storage they read from.
func (a *Array) data() storage {
	s := a.store
	for {
		cv, ok := s.(*copyView)
		if !ok {
			return s
		}
		s = cv.parent.store
	}
}

// Len returns the number of elements.
func (a *Array) Len() int { return a.data().count() }

// NextIndex returns the key the next append will use. It is meaningless
// when CanAppend is false.
func (a *Array) NextIndex() int64 { return a.next }

// CanAppend reports whether an auto-indexed element can be added.
func (a *Array) CanAppend() bool { return a.next != nextFull }

// Lookup returns the raw element for k, which may be a *Reference.
func (a *Array) Lookup(k Key) (Ref, bool) {
	return a.data().get(k)
}

// Get returns the dereferenced element for k.
func (a *Array) Get(k Key) (Value, bool) {
	r, ok := a.data().get(k)
	if !ok {
		return nil, false
	}
	return r.Deref(), true
}

// Contains reports whether k is present.
func (a *Array) Contains(k Key) bool {
	_, ok := a.data().get(k)
	return ok
}

// All iterates the elements in order.
func (a *Array) All() iter.Seq2[Key, Value] {
	return func(yield func(Key, Value) bool) {
		s := a.data()
		for pos := 0; pos < s.span(); pos++ {
			k, r, ok := s.at(pos)
			if !ok {
				continue
			}
			if !yield(k, r.Deref()) {
				return
			}
		}
	}
}

// Keys returns the keys in order.
func (a *Array) Keys() []Key {
	s := a.data()
	out := make([]Key, 0, s.count())
	for pos := 0; pos < s.span(); pos++ {
		if k, _, ok := s.at(pos); ok {
			out = append(out, k)
		}
	}
	return out
}

// Values returns the dereferenced values in order.
func (a *Array) Values() []Value {
	s := a.data()
	out := make([]Value, 0, s.count())
	for pos := 0; pos < s.span(); pos++ {
		if _, r, ok := s.at(pos); ok {
			out = append(out, r.Deref())
		}
	}
	return out
}

// Equal reports deep structural equality: the same pairs in the same
// order, compared strictly.
func (a *Array) Equal(b *Array) bool { return strictArrays(a, b) }

// ---------------------------------------------------------------------------
// Copy-on-write
// ---------------------------------------------------------------------------

// Copy returns an O(1) logical copy. The globals facade changes without
// going through its own write path, so copies of it are snapshots.
func (a *Array) Copy() *Array {
	switch a.data().strategy() {
	case StrategyEmpty:
		return &Array{store: emptyStorage{}, next: a.next}
	case StrategyGlobals:
		return &Array{store: a.data().clone(), next: a.next}
	}
	if a.views == nil {
		a.views = newViewList()
	}
	c := &Array{next: a.next}
	c.store = &copyView{parent: a, slot: a.views.add(c)}
	return c
}

// forceWrite breaks all sharing so a's storage can be mutated in place.
func (a *Array) forceWrite() {
	if a.views != nil {
		a.views.materializeAll()
	}
	if _, ok := a.store.(*copyView); ok {
		a.materialize()
	}
}

// materialize gives a view its own clone of the parent's current storage
// and unlinks it.
func (a *Array) materialize() {
	cv := a.store.(*copyView)
	a.store = cv.parent.data().clone()
	if cv.slot != noSlot {
		cv.parent.views.remove(cv.slot)
		cv.slot = noSlot
	}
}

// Release unlinks a view that nothing reads through any more. It is a
// no-op for arrays that are not views or that have views of their own.
func (a *Array) Release() {
	cv, ok := a.store.(*copyView)
	if !ok || cv.slot == noSlot || a.views.len() > 0 {
		return
	}
	cv.parent.views.remove(cv.slot)
	cv.slot = noSlot
}

func (a *Array) materializeViews() {
	if a.views != nil {
		a.views.materializeAll()
	}
}

// Views returns the number of live copy views of a.
func (a *Array) Views() int { return a.views.len() }

// eachOwned calls fn for every array element a holds in storage of its
// own. Views and the globals facade own nothing.
func (a *Array) eachOwned(fn func(*Array)) {
	s := a.store
	switch s.(type) {
	case *copyView, *globalsStorage, emptyStorage, *intList, *floatList:
		return
	}
	for pos := 0; pos < s.span(); pos++ {
		if _, r, ok := s.at(pos); ok {
			if e, ok := r.(*Array); ok {
				fn(e)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

func (a *Array) bump(k Key) {
	if !k.IsInt() || a.next == nextFull || k.Int() < a.next {
		return
	}
	if k.Int() == math.MaxInt64 {
		a.next = nextFull
		return
	}
	a.next = k.Int() + 1
}

func isDense(s storage) bool {
	switch s.(type) {
	case emptyStorage, *intList, *floatList, *list:
		return true
	}
	return false
}

// Set stores an owned value under k. If the element is a reference the
// value is written through it.
func (a *Array) Set(k Key, v Value) {
	a.forceWrite()
	if g, ok := a.store.(*globalsStorage); ok {
		g.vars.Cell(k.String()).Store(v)
		return
	}
	if r, ok := a.store.get(k); ok {
		if ref, ok := r.(*Reference); ok {
			ref.value = v
			return
		}
	}
	a.put(k, v)
}

// SetRef binds the element k to r.
func (a *Array) SetRef(k Key, r *Reference) {
	a.forceWrite()
	if g, ok := a.store.(*globalsStorage); ok {
		g.vars.Cell(k.String()).Bind(r)
		return
	}
	a.put(k, r)
}

// Append stores v under the next auto-index and returns the key used.
// An array that cannot append (see CanAppend) is left unchanged.
func (a *Array) Append(v Value) Key {
	if !a.CanAppend() {
		return IntKey(math.MaxInt64)
	}
	a.forceWrite()
	k := IntKey(a.next)
	if g, ok := a.store.(*globalsStorage); ok {
		g.vars.Cell(k.String()).Store(v)
		a.next++
		return k
	}
	a.put(k, v)
	return k
}

// AppendRef appends a reference element and returns its key.
func (a *Array) AppendRef(r *Reference) Key {
	if !a.CanAppend() {
		return IntKey(math.MaxInt64)
	}
	a.forceWrite()
	k := IntKey(a.next)
	if g, ok := a.store.(*globalsStorage); ok {
		g.vars.Cell(k.String()).Bind(r)
		a.next++
		return k
	}
	a.put(k, r)
	return k
}

// put writes a raw element, upgrading the strategy when the element or
// the key no longer fits. a must already be writable.
func (a *Array) put(k Key, r Ref) {
	defer a.bump(k)
	if isDense(a.store) && k.IsInt() {
		n := int64(a.store.count())
		switch {
		case k.Int() == n:
			a.push(r)
			return
		case k.Int() >= 0 && k.Int() < n:
			a.setInRange(int(k.Int()), r)
			return
		}
	}
	switch s := a.store.(type) {
	case *hashMap:
		s.put(k, r)
		return
	case *indexedMap:
		if i, ok := s.index[k]; ok {
			s.vals[i] = r
			return
		}
	}
	a.toHash().put(k, r)
}

// push appends to a dense storage.
func (a *Array) push(r Ref) {
	switch s := a.store.(type) {
	case emptyStorage:
		switch v := r.(type) {
		case Int:
			a.store = &intList{vals: []int64{int64(v)}}
		case Float:
			a.store = &floatList{vals: []float64{float64(v)}}
		default:
			a.store = &list{vals: []Ref{r}}
		}
	case *intList:
		if v, ok := r.(Int); ok {
			s.vals = append(s.vals, int64(v))
			return
		}
		g := s.generalize()
		g.vals = append(g.vals, r)
		a.store = g
	case *floatList:
		if v, ok := r.(Float); ok {
			s.vals = append(s.vals, float64(v))
			return
		}
		g := s.generalize()
		g.vals = append(g.vals, r)
		a.store = g
	case *list:
		s.vals = append(s.vals, r)
	}
}

// setInRange overwrites position i of a dense storage.
func (a *Array) setInRange(i int, r Ref) {
	switch s := a.store.(type) {
	case *intList:
		if v, ok := r.(Int); ok {
			s.vals[i] = int64(v)
			return
		}
		g := s.generalize()
		g.vals[i] = r
		a.store = g
	case *floatList:
		if v, ok := r.(Float); ok {
			s.vals[i] = float64(v)
			return
		}
		g := s.generalize()
		g.vals[i] = r
		a.store = g
	case *list:
		s.vals[i] = r
	}
}

// toHash converts the storage to a hashMap. The conversion never reverses.
func (a *Array) toHash() *hashMap {
	switch s := a.store.(type) {
	case *hashMap:
		return s
	case *indexedMap:
		h := newHashMap(len(s.keys) + 1)
		for i, k := range s.keys {
			h.put(k, s.vals[i])
		}
		a.store = h
		return h
	}
	s := a.store
	h := newHashMap(s.count() + 1)
	for pos := 0; pos < s.span(); pos++ {
		if k, r, ok := s.at(pos); ok {
			h.put(k, r)
		}
	}
	a.store = h
	return h
}

// Unset removes k. Removing from a list leaves sparse keys, so the array
// becomes a hash. The next auto-index is not lowered.
func (a *Array) Unset(k Key) {
	if !a.Contains(k) {
		return
	}
	a.forceWrite()
	if g, ok := a.store.(*globalsStorage); ok {
		g.vars.Remove(k.String())
		return
	}
	a.toHash().del(k)
}

// Pop removes and returns the last element. The next auto-index is
// lowered when the removed key was the last one issued.
func (a *Array) Pop() (Value, bool) {
	if a.Len() == 0 {
		return nil, false
	}
	a.forceWrite()
	s := a.store
	for pos := s.span() - 1; pos >= 0; pos-- {
		k, r, ok := s.at(pos)
		if !ok {
			continue
		}
		v := r.Deref()
		switch st := s.(type) {
		case *intList:
			st.vals = st.vals[:pos]
		case *floatList:
			st.vals = st.vals[:pos]
		case *list:
			st.vals[pos] = nil
			st.vals = st.vals[:pos]
		case *globalsStorage:
			st.vars.Remove(k.String())
		default:
			a.toHash().del(k)
		}
		if _, ok := a.store.(*globalsStorage); !ok && a.Len() == 0 {
			a.store = emptyStorage{}
		}
		switch {
		case !k.IsInt():
		case a.next == nextFull && k.Int() == math.MaxInt64:
			a.next = math.MaxInt64
		case a.next != nextFull && k.Int() == a.next-1:
			a.next = k.Int()
		}
		return v, true
	}
	return nil, false
}

// ReferenceAt turns the element k into a reference, creating a null
// element when it is missing, and returns it.
func (a *Array) ReferenceAt(k Key) *Reference {
	a.forceWrite()
	if g, ok := a.store.(*globalsStorage); ok {
		return g.vars.Cell(k.String()).Reference()
	}
	if r, ok := a.store.get(k); ok {
		if ref, ok := r.(*Reference); ok {
			return ref
		}
		ref := NewReference(r.Deref())
		a.put(k, ref)
		return ref
	}
	ref := NewReference(Null)
	a.put(k, ref)
	return ref
}

// ContainerAt returns the array stored under k for a nested write,
// creating it when the element is missing or null.
func (a *Array) ContainerAt(k Key) (*Array, error) {
	a.forceWrite()
	if g, ok := a.store.(*globalsStorage); ok {
		return g.vars.Cell(k.String()).container()
	}
	r, ok := a.store.get(k)
	if ok {
		switch e := r.(type) {
		case *Reference:
			return e.container()
		case *Array:
			return e, nil
		}
		n, err := autovivify(r.(Value))
		if err != nil {
			return nil, err
		}
		a.put(k, n)
		return n, nil
	}
	n := NewArray()
	a.put(k, n)
	return n, nil
}
