package vm

// Strategy names an array storage representation.
type Strategy uint8

const (
	StrategyEmpty Strategy = iota
	StrategyIntList
	StrategyFloatList
	StrategyList
	StrategyHash
	StrategyIndexed
	StrategyCopy
	StrategyGlobals
)

var strategyNames = [...]string{
	StrategyEmpty:     "empty",
	StrategyIntList:   "int-list",
	StrategyFloatList: "float-list",
	StrategyList:      "list",
	StrategyHash:      "hash",
	StrategyIndexed:   "indexed",
	StrategyCopy:      "copy",
	StrategyGlobals:   "globals",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// storage is one array representation. Elements are Values or
// *References. Positions run from 0 to span()-1; a position may be a hole
// after deletion.
type storage interface {
	strategy() Strategy
	count() int
	get(k Key) (Ref, bool)
	span() int
	at(pos int) (Key, Ref, bool)
	// clone returns an independent copy. Element strings and arrays are
	// copied for store; references stay shared.
	clone() storage
}

func copyElem(r Ref) Ref {
	if ref, ok := r.(*Reference); ok {
		return ref
	}
	return CopyForStore(r.(Value))
}

// listIndex converts k into a position of a dense list of length n.
func listIndex(k Key, n int) (int, bool) {
	if !k.IsInt() || k.Int() < 0 || k.Int() >= int64(n) {
		return 0, false
	}
	return int(k.Int()), true
}

// ---------------------------------------------------------------------------
// Empty
// ---------------------------------------------------------------------------

type emptyStorage struct{}

func (emptyStorage) strategy() Strategy          { return StrategyEmpty }
func (emptyStorage) count() int                  { return 0 }
func (emptyStorage) get(Key) (Ref, bool)         { return nil, false }
func (emptyStorage) span() int                   { return 0 }
func (emptyStorage) at(int) (Key, Ref, bool)     { return Key{}, nil, false }
func (e emptyStorage) clone() storage            { return e }

// ---------------------------------------------------------------------------
// Packed lists
// ---------------------------------------------------------------------------

type intList struct {
	vals []int64
}

func (l *intList) strategy() Strategy { return StrategyIntList }
func (l *intList) count() int         { return len(l.vals) }
func (l *intList) span() int          { return len(l.vals) }

func (l *intList) get(k Key) (Ref, bool) {
	i, ok := listIndex(k, len(l.vals))
	if !ok {
		return nil, false
	}
	return Int(l.vals[i]), true
}

func (l *intList) at(pos int) (Key, Ref, bool) {
	return IntKey(int64(pos)), Int(l.vals[pos]), true
}

func (l *intList) clone() storage {
	return &intList{vals: append([]int64(nil), l.vals...)}
}

func (l *intList) generalize() *list {
	vals := make([]Ref, len(l.vals), len(l.vals)+1)
	for i, v := range l.vals {
		vals[i] = Int(v)
	}
	return &list{vals: vals}
}

type floatList struct {
	vals []float64
}

func (l *floatList) strategy() Strategy { return StrategyFloatList }
func (l *floatList) count() int         { return len(l.vals) }
func (l *floatList) span() int          { return len(l.vals) }

func (l *floatList) get(k Key) (Ref, bool) {
	i, ok := listIndex(k, len(l.vals))
	if !ok {
		return nil, false
	}
	return Float(l.vals[i]), true
}

func (l *floatList) at(pos int) (Key, Ref, bool) {
	return IntKey(int64(pos)), Float(l.vals[pos]), true
}

func (l *floatList) clone() storage {
	return &floatList{vals: append([]float64(nil), l.vals...)}
}

func (l *floatList) generalize() *list {
	vals := make([]Ref, len(l.vals), len(l.vals)+1)
	for i, v := range l.vals {
		vals[i] = Float(v)
	}
	return &list{vals: vals}
}

// list holds any elements under dense keys 0..n-1.
type list struct {
	vals []Ref
}

func (l *list) strategy() Strategy { return StrategyList }
func (l *list) count() int         { return len(l.vals) }
func (l *list) span() int          { return len(l.vals) }

func (l *list) get(k Key) (Ref, bool) {
	i, ok := listIndex(k, len(l.vals))
	if !ok {
		return nil, false
	}
	return l.vals[i], true
}

func (l *list) at(pos int) (Key, Ref, bool) {
	return IntKey(int64(pos)), l.vals[pos], true
}

func (l *list) clone() storage {
	vals := make([]Ref, len(l.vals))
	for i, v := range l.vals {
		vals[i] = copyElem(v)
	}
	return &list{vals: vals}
}

// ---------------------------------------------------------------------------
// Hash
// ---------------------------------------------------------------------------

// hashMap is an insertion ordered map. Deleted entries leave a nil hole
// until enough accumulate to compact.
type hashMap struct {
	keys  []Key
	vals  []Ref
	index map[Key]int
}

func newHashMap(capacity int) *hashMap {
	return &hashMap{
		keys:  make([]Key, 0, capacity),
		vals:  make([]Ref, 0, capacity),
		index: make(map[Key]int, capacity),
	}
}

func (h *hashMap) strategy() Strategy { return StrategyHash }
func (h *hashMap) count() int         { return len(h.index) }
func (h *hashMap) span() int          { return len(h.keys) }

func (h *hashMap) get(k Key) (Ref, bool) {
	i, ok := h.index[k]
	if !ok {
		return nil, false
	}
	return h.vals[i], true
}

func (h *hashMap) at(pos int) (Key, Ref, bool) {
	if h.vals[pos] == nil {
		return Key{}, nil, false
	}
	return h.keys[pos], h.vals[pos], true
}

func (h *hashMap) clone() storage {
	c := newHashMap(len(h.index))
	for i, v := range h.vals {
		if v != nil {
			c.put(h.keys[i], copyElem(v))
		}
	}
	return c
}

func (h *hashMap) put(k Key, v Ref) {
	if i, ok := h.index[k]; ok {
		h.vals[i] = v
		return
	}
	h.index[k] = len(h.keys)
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

func (h *hashMap) del(k Key) {
	i, ok := h.index[k]
	if !ok {
		return
	}
	delete(h.index, k)
	h.keys[i] = Key{}
	h.vals[i] = nil
	if holes := len(h.keys) - len(h.index); holes > 16 && holes > len(h.index) {
		h.compact()
	}
}

func (h *hashMap) compact() {
	j := 0
	for i, v := range h.vals {
		if v == nil {
			continue
		}
		h.keys[j], h.vals[j] = h.keys[i], v
		h.index[h.keys[j]] = j
		j++
	}
	clear(h.keys[j:])
	clear(h.vals[j:])
	h.keys = h.keys[:j]
	h.vals = h.vals[:j]
}

// ---------------------------------------------------------------------------
// Indexed
// ---------------------------------------------------------------------------

// indexedMap is built in one pass from key/value pairs, resolving
// duplicate keys as it goes: a repeated key keeps its first position and
// takes the last value. Overwriting an existing key stays in place; any
// structural change converts to a hashMap.
type indexedMap struct {
	index map[Key]int
	keys  []Key
	vals  []Ref
}

func buildIndexed(keys []Key, vals []Value) *indexedMap {
	m := &indexedMap{
		index: make(map[Key]int, len(keys)),
		keys:  make([]Key, 0, len(keys)),
		vals:  make([]Ref, 0, len(keys)),
	}
	for i, k := range keys {
		if j, ok := m.index[k]; ok {
			m.vals[j] = vals[i]
			continue
		}
		m.index[k] = len(m.keys)
		m.keys = append(m.keys, k)
		m.vals = append(m.vals, vals[i])
	}
	return m
}

func (m *indexedMap) strategy() Strategy { return StrategyIndexed }
func (m *indexedMap) count() int         { return len(m.keys) }
func (m *indexedMap) span() int          { return len(m.keys) }

func (m *indexedMap) get(k Key) (Ref, bool) {
	i, ok := m.index[k]
	if !ok {
		return nil, false
	}
	return m.vals[i], true
}

func (m *indexedMap) at(pos int) (Key, Ref, bool) {
	return m.keys[pos], m.vals[pos], true
}

func (m *indexedMap) clone() storage {
	c := &indexedMap{
		index: make(map[Key]int, len(m.keys)),
		keys:  append([]Key(nil), m.keys...),
		vals:  make([]Ref, len(m.vals)),
	}
	for i, v := range m.vals {
		c.index[m.keys[i]] = i
		c.vals[i] = copyElem(v)
	}
	return c
}

// ---------------------------------------------------------------------------
// Copy view
// ---------------------------------------------------------------------------

// copyView reads through its parent until the first write through either
// side. slot is the view's node in the parent's view list.
type copyView struct {
	parent *Array
	slot   int32
}

func (v *copyView) strategy() Strategy          { return StrategyCopy }
func (v *copyView) count() int                  { return v.parent.data().count() }
func (v *copyView) get(k Key) (Ref, bool)       { return v.parent.data().get(k) }
func (v *copyView) span() int                   { return v.parent.data().span() }
func (v *copyView) at(pos int) (Key, Ref, bool) { return v.parent.data().at(pos) }
func (v *copyView) clone() storage              { return v.parent.data().clone() }

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// globalsStorage presents the global variable store as an array. Reads
// and writes go straight to the global cells.
type globalsStorage struct {
	vars *VarStore
}

func (g *globalsStorage) strategy() Strategy { return StrategyGlobals }
func (g *globalsStorage) count() int         { return g.vars.Len() }
func (g *globalsStorage) span() int          { return len(g.vars.names) }

func (g *globalsStorage) get(k Key) (Ref, bool) {
	c, ok := g.vars.Lookup(k.String())
	if !ok || !c.Defined() {
		return nil, false
	}
	if c.ref != nil {
		return c.ref, true
	}
	return c.value, true
}

func (g *globalsStorage) at(pos int) (Key, Ref, bool) {
	name := g.vars.names[pos]
	r, ok := g.get(StrKey(name))
	if !ok {
		return Key{}, nil, false
	}
	return StrKey(name), r, true
}

func (g *globalsStorage) clone() storage {
	h := newHashMap(len(g.vars.names))
	for _, name := range g.vars.names {
		if r, ok := g.get(StrKey(name)); ok {
			h.put(StrKey(name), copyElem(r))
		}
	}
	return h
}
