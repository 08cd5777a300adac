package vm

// ---------------------------------------------------------------------------
// Cells and references
// ---------------------------------------------------------------------------

// Cell backs one variable binding. It holds either a value directly or an
// explicit Reference shared with other bindings. A Cell with neither is an
// undefined variable.
type Cell struct {
	value   Value
	ref     *Reference
	invalid bool
}

// NewCell returns a cell holding v, which the cell takes ownership of.
func NewCell(v Value) *Cell {
	return &Cell{value: v}
}

// Deref returns the cell's value, or Null when undefined.
func (c *Cell) Deref() Value {
	if c.ref != nil {
		return c.ref.value
	}
	if c.value == nil {
		return Null
	}
	return c.value
}

// Defined reports whether the variable has been assigned.
func (c *Cell) Defined() bool {
	return c.ref != nil || c.value != nil
}

// IsReference reports whether the cell is bound to a Reference.
func (c *Cell) IsReference() bool {
	return c.ref != nil
}

// Store writes an owned value through the cell.
func (c *Cell) Store(v Value) {
	if c.ref != nil {
		c.ref.value = v
		return
	}
	c.value = v
}

// Reference upgrades the cell to a Reference, creating one on first use.
func (c *Cell) Reference() *Reference {
	if c.ref == nil {
		v := c.value
		if v == nil {
			v = Null
		}
		c.ref = &Reference{value: v}
		c.value = nil
	}
	return c.ref
}

// Bind aliases the cell to r, dropping whatever it held.
func (c *Cell) Bind(r *Reference) {
	c.ref = r
	c.value = nil
}

// Unset makes the variable undefined. A shared Reference is unaffected.
func (c *Cell) Unset() {
	c.ref = nil
	c.value = nil
}

// container returns the array held by the cell, creating one when the
// cell is undefined or null.
func (c *Cell) container() (*Array, error) {
	if c.ref != nil {
		return c.ref.container()
	}
	a, err := autovivify(c.value)
	if err != nil {
		return nil, err
	}
	if a != c.value {
		c.value = a
	}
	return a, nil
}

// Reference is an explicit alias. Every binding that holds the same
// Reference observes the same value.
type Reference struct {
	value Value
}

// NewReference returns a reference to v.
func NewReference(v Value) *Reference {
	if v == nil {
		v = Null
	}
	return &Reference{value: v}
}

// Deref returns the referenced value.
func (r *Reference) Deref() Value { return r.value }

// Store replaces the referenced value.
func (r *Reference) Store(v Value) { r.value = v }

func (r *Reference) container() (*Array, error) {
	a, err := autovivify(r.value)
	if err != nil {
		return nil, err
	}
	r.value = a
	return a, nil
}

// autovivify returns v as an array, replacing undefined, null and false
// with a fresh one.
func autovivify(v Value) (*Array, error) {
	switch x := v.(type) {
	case nil, nullValue:
		return NewArray(), nil
	case *Array:
		return x, nil
	case Bool:
		if !x {
			return NewArray(), nil
		}
	case *Str:
		if x.Len() == 0 {
			return NewArray(), nil
		}
		return nil, newError(TypeError, "Cannot use string offset as an array")
	}
	return nil, newError(TypeError, "Cannot use a scalar value as an array")
}

// ---------------------------------------------------------------------------
// Assignable targets
// ---------------------------------------------------------------------------

// assignable is a stack item that can be written through: cells,
// references, element views and frame variable handles.
type assignable interface {
	Ref
	// store writes an owned value.
	store(v Value) error
	// reference returns the Reference backing the target, creating it.
	reference() (*Reference, error)
	// container returns the array the target holds, creating it.
	container() (*Array, error)
	// lookup returns the current value without creating the target.
	lookup() (Value, bool)
	// bind aliases the target to r.
	bind(r *Reference) error
	unset() error
}

func (c *Cell) store(v Value) error            { c.Store(v); return nil }
func (c *Cell) reference() (*Reference, error) { return c.Reference(), nil }
func (c *Cell) unset() error                   { c.Unset(); return nil }
func (c *Cell) bind(r *Reference) error        { c.Bind(r); return nil }

func (c *Cell) lookup() (Value, bool) {
	if !c.Defined() {
		return nil, false
	}
	return c.Deref(), true
}

func (r *Reference) store(v Value) error            { r.value = v; return nil }
func (r *Reference) reference() (*Reference, error) { return r, nil }
func (r *Reference) lookup() (Value, bool)          { return r.value, true }
func (r *Reference) unset() error                   { r.value = Null; return nil }

func (r *Reference) bind(*Reference) error {
	return newError(InternalError, "cannot rebind a reference")
}

// ItemRef is a view of one element of a container. Reads and writes go
// through the container, which is resolved only when the view is used, so
// taking the view never materializes the element.
type ItemRef struct {
	base   Ref
	key    Key
	append bool
}

// NewItemRef returns a view of base[key].
func NewItemRef(base Ref, key Key) *ItemRef {
	return &ItemRef{base: base, key: key}
}

// NewAppendRef returns a view of base[], the element at the next
// auto-index. The key is fixed by the first write.
func NewAppendRef(base Ref) *ItemRef {
	return &ItemRef{base: base, append: true}
}

// Deref reads the element, returning Null when it is missing.
func (r *ItemRef) Deref() Value {
	v, ok := r.lookup()
	if !ok {
		return Null
	}
	return v
}

func (r *ItemRef) lookup() (Value, bool) {
	if r.append {
		return nil, false
	}
	switch c := r.base.Deref().(type) {
	case *Array:
		return c.Get(r.key)
	case *Str:
		return stringOffset(c, r.key)
	}
	return nil, false
}

// writable resolves the container for a write.
func (r *ItemRef) writable() (*Array, error) {
	return writableContainer(r.base)
}

func (r *ItemRef) store(v Value) error {
	if s, ok := r.base.Deref().(*Str); ok && s.Len() > 0 && !r.append {
		return setStringOffset(s, r.key, v)
	}
	a, err := r.writable()
	if err != nil {
		return err
	}
	if r.append {
		if !a.CanAppend() {
			return ErrArrayFull
		}
		r.key = a.Append(v)
		r.append = false
		return nil
	}
	a.Set(r.key, v)
	return nil
}

func (r *ItemRef) reference() (*Reference, error) {
	a, err := r.writable()
	if err != nil {
		return nil, err
	}
	if r.append {
		if !a.CanAppend() {
			return nil, ErrArrayFull
		}
		ref := NewReference(Null)
		r.key = a.AppendRef(ref)
		r.append = false
		return ref, nil
	}
	return a.ReferenceAt(r.key), nil
}

func (r *ItemRef) bind(ref *Reference) error {
	a, err := r.writable()
	if err != nil {
		return err
	}
	if r.append {
		if !a.CanAppend() {
			return ErrArrayFull
		}
		r.key = a.AppendRef(ref)
		r.append = false
		return nil
	}
	a.SetRef(r.key, ref)
	return nil
}

func (r *ItemRef) container() (*Array, error) {
	a, err := r.writable()
	if err != nil {
		return nil, err
	}
	if r.append {
		if !a.CanAppend() {
			return nil, ErrArrayFull
		}
		n := NewArray()
		r.key = a.Append(n)
		r.append = false
		return n, nil
	}
	return a.ContainerAt(r.key)
}

func (r *ItemRef) unset() error {
	if r.append {
		return newError(RuntimeError, "Cannot use [] for unsetting")
	}
	c, ok := r.base.Deref().(*Array)
	if !ok || !c.Contains(r.key) {
		return nil
	}
	a, err := r.writable()
	if err != nil {
		return err
	}
	a.Unset(r.key)
	return nil
}

// writableContainer returns the array behind base, ready for mutation.
// Temporaries cannot be written to, except the $GLOBALS facade.
func writableContainer(base Ref) (*Array, error) {
	switch b := base.(type) {
	case assignable:
		return b.container()
	case *Array:
		if b.Strategy() == StrategyGlobals {
			return b, nil
		}
	}
	return nil, newError(TypeError, "Cannot use temporary expression in write context")
}

func stringOffset(s *Str, k Key) (Value, bool) {
	if !k.IsInt() {
		return nil, false
	}
	i := k.Int()
	n := int64(s.Len())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false
	}
	return NewString(string(s.Byte(int(i)))), true
}

func setStringOffset(s *Str, k Key, v Value) error {
	if !k.IsInt() {
		return newError(TypeError, "Illegal string offset '%s'", k.String())
	}
	i := k.Int()
	if i < 0 {
		i += int64(s.Len())
	}
	if i < 0 {
		return newError(RuntimeError, "Illegal string offset: %d", k.Int())
	}
	c := ToString(v)
	if c == "" {
		return newError(RuntimeError, "Cannot assign an empty string to a string offset")
	}
	s.SetByte(int(i), c[0])
	return nil
}

// ---------------------------------------------------------------------------
// Variable store
// ---------------------------------------------------------------------------

// VarStore is an ordered, name-keyed set of cells. It backs the global
// scope and units that need dynamic variable access.
type VarStore struct {
	names []string
	cells map[string]*Cell
}

// NewVarStore returns an empty store.
func NewVarStore() *VarStore {
	return &VarStore{cells: make(map[string]*Cell)}
}

// Lookup returns the cell for name if it exists.
func (s *VarStore) Lookup(name string) (*Cell, bool) {
	c, ok := s.cells[name]
	return c, ok
}

// Cell returns the cell for name, creating it.
func (s *VarStore) Cell(name string) *Cell {
	if c, ok := s.cells[name]; ok {
		return c
	}
	c := &Cell{}
	s.cells[name] = c
	s.names = append(s.names, name)
	return c
}

// Remove drops name from the store. Bindings holding its Reference keep
// it.
func (s *VarStore) Remove(name string) {
	c, ok := s.cells[name]
	if !ok {
		return
	}
	c.Unset()
	delete(s.cells, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Names returns the defined variable names in creation order.
func (s *VarStore) Names() []string {
	out := make([]string, 0, len(s.names))
	for _, n := range s.names {
		if s.cells[n].Defined() {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of defined variables.
func (s *VarStore) Len() int {
	n := 0
	for _, c := range s.cells {
		if c.Defined() {
			n++
		}
	}
	return n
}

// lateArg is a call argument whose callee decides at bind time whether it
// is passed by reference. It reads as the value the target had when the
// argument was evaluated.
type lateArg struct {
	assignable
	value Value
}

func (l *lateArg) Deref() Value {
	if l.value == nil {
		return Null
	}
	return l.value
}
