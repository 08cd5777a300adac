// Package cache persists compiled units so unchanged scripts skip the
// compiler.
package cache

import (
	"fmt"
	"math"

	"github.com/chazu/hippo/vm"
	"github.com/fxamacker/cbor/v2"
)

// CodecVersion changes whenever the bytecode or its encoding changes.
// Entries written with another version are ignored.
const CodecVersion = 2

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireUnit struct {
	Version    int         `cbor:"v"`
	Name       string      `cbor:"n"`
	Filename   string      `cbor:"f,omitempty"`
	Code       []byte      `cbor:"c"`
	Consts     []wireValue `cbor:"k,omitempty"`
	Names      []string    `cbor:"nm,omitempty"`
	VarNames   []string    `cbor:"vn,omitempty"`
	Functions  []*wireUnit `cbor:"fn,omitempty"`
	Hoisted    []int       `cbor:"h,omitempty"`
	Params     []wireParam `cbor:"p,omitempty"`
	UsesDict   bool        `cbor:"d,omitempty"`
	StackDepth int         `cbor:"sd"`
	Lines      []wireLoc   `cbor:"l,omitempty"`
	Source     []string    `cbor:"src,omitempty"`
}

type wireParam struct {
	Name    string     `cbor:"n"`
	ByRef   bool       `cbor:"r,omitempty"`
	Default *wireValue `cbor:"d,omitempty"`
}

type wireLoc struct {
	_      struct{} `cbor:",toarray"`
	Offset int
	Line   int
}

// wireValue is a tagged constant. Floats travel as their IEEE bits so
// negative zero and NaN survive. Arrays are ordered key/value pairs.
type wireValue struct {
	Kind vm.Kind     `cbor:"t"`
	Int  int64       `cbor:"i,omitempty"`
	Bits uint64      `cbor:"b,omitempty"`
	Str  string      `cbor:"s,omitempty"`
	Keys []wireKey   `cbor:"ak,omitempty"`
	Vals []wireValue `cbor:"av,omitempty"`
}

type wireKey struct {
	_   struct{} `cbor:",toarray"`
	Str bool
	Int int64
	S   string
}

// Marshal serializes a compiled unit and its nested functions to CBOR.
func Marshal(unit *vm.ByteCode) ([]byte, error) {
	w, err := toWire(unit)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// Unmarshal deserializes a unit written by Marshal.
func Unmarshal(data []byte) (*vm.ByteCode, error) {
	var w wireUnit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("cache: unmarshal unit: %w", err)
	}
	if w.Version != CodecVersion {
		return nil, fmt.Errorf("cache: unit codec version %d, want %d", w.Version, CodecVersion)
	}
	return fromWire(&w)
}

func toWire(u *vm.ByteCode) (*wireUnit, error) {
	w := &wireUnit{
		Version:    CodecVersion,
		Name:       u.Name,
		Filename:   u.Filename,
		Code:       u.Code,
		Names:      u.Names,
		VarNames:   u.VarNames,
		Hoisted:    u.Hoisted,
		UsesDict:   u.UsesDict,
		StackDepth: u.StackDepth,
		Source:     u.Source,
	}
	for _, c := range u.Consts {
		wv, err := valueToWire(c)
		if err != nil {
			return nil, fmt.Errorf("cache: unit %s: %w", u.Name, err)
		}
		w.Consts = append(w.Consts, wv)
	}
	for _, fn := range u.Functions {
		wf, err := toWire(fn)
		if err != nil {
			return nil, err
		}
		w.Functions = append(w.Functions, wf)
	}
	for _, p := range u.Params {
		wp := wireParam{Name: p.Name, ByRef: p.ByRef}
		if p.HasDefault {
			d, err := valueToWire(p.Default)
			if err != nil {
				return nil, fmt.Errorf("cache: unit %s: param $%s: %w", u.Name, p.Name, err)
			}
			wp.Default = &d
		}
		w.Params = append(w.Params, wp)
	}
	for _, l := range u.Lines {
		w.Lines = append(w.Lines, wireLoc{Offset: l.Offset, Line: l.Line})
	}
	return w, nil
}

func fromWire(w *wireUnit) (*vm.ByteCode, error) {
	u := &vm.ByteCode{
		Name:       w.Name,
		Filename:   w.Filename,
		Code:       w.Code,
		Names:      w.Names,
		VarNames:   w.VarNames,
		Hoisted:    w.Hoisted,
		UsesDict:   w.UsesDict,
		StackDepth: w.StackDepth,
		Source:     w.Source,
	}
	for i := range w.Consts {
		v, err := valueFromWire(&w.Consts[i])
		if err != nil {
			return nil, fmt.Errorf("cache: unit %s: %w", w.Name, err)
		}
		u.Consts = append(u.Consts, v)
	}
	for _, wf := range w.Functions {
		fn, err := fromWire(wf)
		if err != nil {
			return nil, err
		}
		u.Functions = append(u.Functions, fn)
	}
	for _, wp := range w.Params {
		p := vm.Param{Name: wp.Name, ByRef: wp.ByRef}
		if wp.Default != nil {
			d, err := valueFromWire(wp.Default)
			if err != nil {
				return nil, fmt.Errorf("cache: unit %s: param $%s: %w", w.Name, wp.Name, err)
			}
			p.HasDefault = true
			p.Default = d
		}
		u.Params = append(u.Params, p)
	}
	for _, l := range w.Lines {
		u.Lines = append(u.Lines, vm.SourceLoc{Offset: l.Offset, Line: l.Line})
	}
	// A damaged blob must fail here rather than mid-run.
	depth, err := vm.ComputeStackDepth(u.Code)
	if err != nil {
		return nil, fmt.Errorf("cache: unit %s: %w", u.Name, err)
	}
	u.StackDepth = depth
	for _, idx := range u.Hoisted {
		if idx < 0 || idx >= len(u.Functions) {
			return nil, fmt.Errorf("cache: unit %s: hoisted function %d out of range", u.Name, idx)
		}
	}
	return u, nil
}

func valueToWire(v vm.Value) (wireValue, error) {
	switch x := v.(type) {
	case vm.Int:
		return wireValue{Kind: vm.KindInt, Int: int64(x)}, nil
	case vm.Float:
		return wireValue{Kind: vm.KindFloat, Bits: math.Float64bits(float64(x))}, nil
	case vm.Bool:
		w := wireValue{Kind: vm.KindBool}
		if x {
			w.Int = 1
		}
		return w, nil
	case *vm.Str:
		return wireValue{Kind: vm.KindString, Str: x.String()}, nil
	case *vm.Array:
		w := wireValue{Kind: vm.KindArray}
		for k, ev := range x.All() {
			ew, err := valueToWire(ev)
			if err != nil {
				return wireValue{}, err
			}
			w.Keys = append(w.Keys, wireKey{Str: !k.IsInt(), Int: k.Int(), S: keyString(k)})
			w.Vals = append(w.Vals, ew)
		}
		return w, nil
	}
	if v == nil || v.Kind() == vm.KindNull {
		return wireValue{Kind: vm.KindNull}, nil
	}
	return wireValue{}, fmt.Errorf("cannot encode constant of type %s", v.Kind())
}

func keyString(k vm.Key) string {
	if k.IsInt() {
		return ""
	}
	return k.String()
}

func valueFromWire(w *wireValue) (vm.Value, error) {
	switch w.Kind {
	case vm.KindNull:
		return vm.Null, nil
	case vm.KindBool:
		return vm.Bool(w.Int != 0), nil
	case vm.KindInt:
		return vm.Int(w.Int), nil
	case vm.KindFloat:
		return vm.Float(math.Float64frombits(w.Bits)), nil
	case vm.KindString:
		return vm.NewString(w.Str), nil
	case vm.KindArray:
		if len(w.Keys) != len(w.Vals) {
			return nil, fmt.Errorf("array constant has %d keys and %d values", len(w.Keys), len(w.Vals))
		}
		keys := make([]vm.Key, len(w.Keys))
		vals := make([]vm.Value, len(w.Vals))
		for i, k := range w.Keys {
			if k.Str {
				keys[i] = vm.StrKey(k.S)
			} else {
				keys[i] = vm.IntKey(k.Int)
			}
			v, err := valueFromWire(&w.Vals[i])
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vm.NewConstArray(keys, vals), nil
	}
	return nil, fmt.Errorf("unknown constant tag %d", w.Kind)
}
