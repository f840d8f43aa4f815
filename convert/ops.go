package convert

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"github.com/stylegans/stylegans/ml"
)

var (
	ErrUnknownOp = errors.New("unknown transform")
	ErrShape     = errors.New("unexpected shape")
)

// Op is a layout rule that turns a source array into the parameter layout
// of the generator.
type Op int

const (
	// OpAny copies the array unchanged. Biases, constants and fixed noise.
	OpAny Op = iota
	// OpUns reshapes a single value into a 1 element vector.
	OpUns
	// OpFC turns a dense weight (in, out) into (out, in).
	OpFC
	// OpCon turns a convolution weight (kh, kw, in, out) into (out, in, kh, kw).
	OpCon
	// OpTco turns a convolution weight (kh, kw, in, out) into the transposed
	// convolution layout (in, out, kh, kw).
	OpTco
	// OpMTc is OpTco with both spatial axes flipped.
	OpMTc
)

var opNames = [...]string{
	OpAny: "any",
	OpUns: "uns",
	OpFC:  "fc_",
	OpCon: "con",
	OpTco: "Tco",
	OpMTc: "mTc",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(op))
	}
	return opNames[op]
}

func ParseOp(s string) (Op, error) {
	if i := slices.Index(opNames[:], s); i >= 0 {
		return Op(i), nil
	}

	return 0, fmt.Errorf("%w %q", ErrUnknownOp, s)
}

// Apply returns a new tensor holding a in the layout op describes. a is not
// modified.
func (op Op) Apply(a *Array) (*ml.Tensor, error) {
	switch op {
	case OpAny:
		return ml.New(slices.Clone(a.Data), a.Shape...), nil
	case OpUns:
		if len(a.Data) != 1 {
			return nil, fmt.Errorf("%w: %s needs a single value, got %v", ErrShape, op, a.Shape)
		}
		return ml.New(slices.Clone(a.Data), 1), nil
	case OpFC:
		if len(a.Shape) != 2 {
			return nil, fmt.Errorf("%w: %s needs rank 2, got %v", ErrShape, op, a.Shape)
		}
		return permute(a, 1, 0)
	case OpCon, OpTco, OpMTc:
		if len(a.Shape) != 4 {
			return nil, fmt.Errorf("%w: %s needs rank 4, got %v", ErrShape, op, a.Shape)
		}

		if op == OpCon {
			return permute(a, 3, 2, 0, 1)
		}

		t, err := permute(a, 2, 3, 0, 1)
		if err != nil {
			return nil, err
		}

		if op == OpMTc {
			flipSpatial(t)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownOp, op)
	}
}

// SourceShape returns the shape of the source array that op turns into a
// parameter of shape dst.
func (op Op) SourceShape(dst []int) []int {
	switch op {
	case OpUns:
		return []int{}
	case OpFC:
		return []int{dst[1], dst[0]}
	case OpCon:
		return []int{dst[2], dst[3], dst[1], dst[0]}
	case OpTco, OpMTc:
		return []int{dst[2], dst[3], dst[0], dst[1]}
	default:
		return slices.Clone(dst)
	}
}

func permute(a *Array, axes ...int) (*ml.Tensor, error) {
	var tt tensor.Tensor = tensor.New(tensor.WithShape(a.Shape...), tensor.WithBacking(slices.Clone(a.Data)))
	tt, err := tensor.Transpose(tt, axes...)
	if err != nil {
		return nil, err
	}
	tt = tensor.Materialize(tt)

	if err := tt.Reshape(tt.Shape().TotalSize()); err != nil {
		return nil, err
	}

	data, err := native.VectorF32(tt.(*tensor.Dense))
	if err != nil {
		return nil, err
	}

	shape := make([]int, len(axes))
	for i, axis := range axes {
		shape[i] = a.Shape[axis]
	}

	return ml.New(data, shape...), nil
}

// flipSpatial reverses the last two axes of a rank 4 tensor in place.
func flipSpatial(t *ml.Tensor) {
	h, w := t.Dim(2), t.Dim(3)
	data := t.Data()
	for p := 0; p < len(data); p += h * w {
		plane := data[p : p+h*w]
		slices.Reverse(plane)
	}
}
