package vm

// Iterator walks an array for foreach. A by-value iterator reads a copy
// taken when the loop starts, so writes to the source during the loop are
// not visited. A by-reference iterator walks the live array and yields
// each element as a Reference.
//
// Iterators live only on the operand stack. Exhausting or discarding one
// releases its copy.
type Iterator struct {
	arr   *Array
	byRef bool
	pos   int
	last  Key
	moved bool // last is valid
	done  bool
}

func newIterator(a *Array) *Iterator {
	if a == nil {
		return &Iterator{done: true}
	}
	return &Iterator{arr: a.Copy()}
}

func newRefIterator(a *Array) *Iterator {
	if a == nil {
		return &Iterator{done: true}
	}
	return &Iterator{arr: a, byRef: true}
}

// Deref satisfies Ref. An iterator has no value of its own.
func (it *Iterator) Deref() Value { return Null }

// Done reports whether the iterator is exhausted.
func (it *Iterator) Done() bool { return it.done }

// seek re-locates the position after the last yielded key when the
// underlying storage changed shape under the iterator.
func (it *Iterator) seek(s storage) {
	if !it.moved {
		return
	}
	if it.pos > 0 && it.pos <= s.span() {
		if k, _, ok := s.at(it.pos - 1); ok && k == it.last {
			return
		}
	}
	for pos := 0; pos < s.span(); pos++ {
		if k, _, ok := s.at(pos); ok && k == it.last {
			it.pos = pos + 1
			return
		}
	}
	if it.pos > s.span() {
		it.pos = s.span()
	}
}

// Next advances to the next element. The value is the dereferenced
// element, or for by-reference iterators the element's Reference.
func (it *Iterator) Next() (Key, Ref, bool) {
	if it.done {
		return Key{}, nil, false
	}
	s := it.arr.data()
	it.seek(s)
	for it.pos < s.span() {
		k, r, ok := s.at(it.pos)
		it.pos++
		if !ok {
			continue
		}
		it.last, it.moved = k, true
		if it.byRef {
			return k, it.arr.ReferenceAt(k), true
		}
		return k, r.Deref(), true
	}
	it.Release()
	return Key{}, nil, false
}

// Release marks the iterator done and drops its copy.
func (it *Iterator) Release() {
	if it.done && it.arr == nil {
		return
	}
	it.done = true
	if it.arr != nil && !it.byRef {
		it.arr.Release()
	}
	it.arr = nil
}
