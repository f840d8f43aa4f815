package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"
)

// parsePickle decodes a pickle stream holding numpy arrays. The top level
// object is returned as decoded: a *types.Dict, an *ndarray or a Python
// scalar.
func parsePickle(r io.Reader) (any, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findNumpyClass
	return u.Load()
}

func findNumpyClass(module, name string) (any, error) {
	switch module + "." + name {
	case "numpy.core.multiarray._reconstruct", "numpy._core.multiarray._reconstruct":
		return reconstruct{}, nil
	case "numpy.ndarray":
		return ndarrayClass{}, nil
	case "numpy.dtype":
		return dtypeClass{}, nil
	case "numpy.core.multiarray.scalar", "numpy._core.multiarray.scalar":
		return scalarClass{}, nil
	case "_codecs.encode":
		return encode{}, nil
	}

	return nil, fmt.Errorf("unsupported pickle class %s.%s", module, name)
}

type ndarrayClass struct{}

type reconstruct struct{}

func (reconstruct) Call(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("_reconstruct: missing class")
	}

	if _, ok := args[0].(ndarrayClass); !ok {
		return nil, fmt.Errorf("_reconstruct: unsupported class %T", args[0])
	}

	return &ndarray{}, nil
}

type ndarray struct {
	shape []int
	data  []float32
}

// PySetState accepts the state tuple (version, shape, dtype, is_fortran, rawdata).
func (a *ndarray) PySetState(state any) error {
	t, ok := state.(*types.Tuple)
	if !ok || t.Len() < 5 {
		return fmt.Errorf("ndarray: unexpected state %T", state)
	}

	shapeTuple, ok := t.Get(1).(*types.Tuple)
	if !ok {
		return fmt.Errorf("ndarray: unexpected shape %T", t.Get(1))
	}

	shape := make([]int, shapeTuple.Len())
	for i := range shape {
		n, ok := shapeTuple.Get(i).(int)
		if !ok {
			return fmt.Errorf("ndarray: unexpected dimension %T", shapeTuple.Get(i))
		}
		shape[i] = n
	}

	dt, ok := t.Get(2).(*dtype)
	if !ok {
		return fmt.Errorf("ndarray: unexpected dtype %T", t.Get(2))
	}

	fortran, _ := t.Get(3).(bool)

	raw, err := rawBytes(t.Get(4))
	if err != nil {
		return fmt.Errorf("ndarray: %w", err)
	}

	data, err := dt.decode(raw)
	if err != nil {
		return err
	}

	if n := size(shape); n != len(data) {
		return fmt.Errorf("ndarray: shape %v needs %d elements, got %d", shape, n, len(data))
	}

	a.shape, a.data = shape, data
	if fortran && len(shape) > 1 {
		reversed := slices.Clone(shape)
		slices.Reverse(reversed)

		axes := make([]int, len(shape))
		for i := range axes {
			axes[i] = len(shape) - 1 - i
		}

		t, err := permute(&Array{Shape: reversed, Data: data}, axes...)
		if err != nil {
			return err
		}
		a.data = t.Data()
	}

	return nil
}

func (a *ndarray) array() *Array {
	return &Array{Shape: a.shape, Data: a.data}
}

type dtypeClass struct{}

func (dtypeClass) Call(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("dtype: missing type")
	}

	s, ok := args[0].(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("dtype: unexpected type %v", args[0])
	}

	dt := &dtype{order: binary.LittleEndian}
	switch s[0] {
	case '<', '|', '=':
		s = s[1:]
	case '>':
		dt.order, s = binary.BigEndian, s[1:]
	}
	dt.kind = s
	return dt, nil
}

type dtype struct {
	kind  string
	order binary.ByteOrder
}

// PySetState accepts (version, byteorder, subarray, names, fields, elsize,
// alignment, flags[, metadata]).
func (dt *dtype) PySetState(state any) error {
	t, ok := state.(*types.Tuple)
	if !ok || t.Len() < 2 {
		return fmt.Errorf("dtype: unexpected state %T", state)
	}

	if s, ok := t.Get(1).(string); ok && s == ">" {
		dt.order = binary.BigEndian
	}

	return nil
}

func (dt *dtype) decode(b []byte) ([]float32, error) {
	var width int
	var fn func([]byte) float32
	switch dt.kind {
	case "f2":
		width, fn = 2, func(b []byte) float32 { return float16.Frombits(dt.order.Uint16(b)).Float32() }
	case "f4":
		width, fn = 4, func(b []byte) float32 { return math.Float32frombits(dt.order.Uint32(b)) }
	case "f8":
		width, fn = 8, func(b []byte) float32 { return float32(math.Float64frombits(dt.order.Uint64(b))) }
	case "i1":
		width, fn = 1, func(b []byte) float32 { return float32(int8(b[0])) }
	case "i2":
		width, fn = 2, func(b []byte) float32 { return float32(int16(dt.order.Uint16(b))) }
	case "i4":
		width, fn = 4, func(b []byte) float32 { return float32(int32(dt.order.Uint32(b))) }
	case "i8":
		width, fn = 8, func(b []byte) float32 { return float32(int64(dt.order.Uint64(b))) }
	case "u1", "b1":
		width, fn = 1, func(b []byte) float32 { return float32(b[0]) }
	case "u2":
		width, fn = 2, func(b []byte) float32 { return float32(dt.order.Uint16(b)) }
	case "u4":
		width, fn = 4, func(b []byte) float32 { return float32(dt.order.Uint32(b)) }
	case "u8":
		width, fn = 8, func(b []byte) float32 { return float32(dt.order.Uint64(b)) }
	default:
		return nil, fmt.Errorf("dtype: unsupported type %q", dt.kind)
	}

	if len(b)%width != 0 {
		return nil, fmt.Errorf("dtype: %d bytes is not a multiple of %s", len(b), dt.kind)
	}

	out := make([]float32, len(b)/width)
	for i := range out {
		out[i] = fn(b[i*width:])
	}
	return out, nil
}

type scalarClass struct{}

func (scalarClass) Call(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("scalar: expected dtype and data")
	}

	dt, ok := args[0].(*dtype)
	if !ok {
		return nil, fmt.Errorf("scalar: unexpected dtype %T", args[0])
	}

	raw, err := rawBytes(args[1])
	if err != nil {
		return nil, fmt.Errorf("scalar: %w", err)
	}

	data, err := dt.decode(raw)
	if err != nil {
		return nil, err
	}

	if len(data) != 1 {
		return nil, fmt.Errorf("scalar: expected one value, got %d", len(data))
	}

	return &ndarray{shape: []int{}, data: data}, nil
}

// encode handles _codecs.encode(str, "latin1"), which protocol 2 pickles use
// to store bytes.
type encode struct{}

func (encode) Call(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, errors.New("encode: missing argument")
	}

	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("encode: unexpected argument %T", args[0])
	}

	if len(args) > 1 {
		if enc, _ := args[1].(string); !strings.EqualFold(enc, "latin1") && !strings.EqualFold(enc, "latin-1") {
			return nil, fmt.Errorf("encode: unsupported encoding %q", enc)
		}
	}

	return latin1(s)
}

func rawBytes(v any) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return latin1(v)
	default:
		return nil, fmt.Errorf("unexpected data %T", v)
	}
}

func latin1(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("rune %q is outside latin1", r)
		}
		b = append(b, byte(r))
	}
	return b, nil
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// toArray converts a decoded pickle value to an array.
func toArray(v any) (*Array, error) {
	switch v := v.(type) {
	case *ndarray:
		if v.data == nil && v.shape == nil {
			return nil, errors.New("ndarray has no state")
		}
		return v.array(), nil
	case float64:
		return &Array{Shape: []int{}, Data: []float32{float32(v)}}, nil
	case int:
		return &Array{Shape: []int{}, Data: []float32{float32(v)}}, nil
	case bool:
		var f float32
		if v {
			f = 1
		}
		return &Array{Shape: []int{}, Data: []float32{f}}, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
