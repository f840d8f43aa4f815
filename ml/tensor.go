package ml

import (
	"fmt"
	"maps"
	"slices"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int
	data  []float32
}

// New wraps data with the given shape. It panics if the element count does
// not match the shape.
func New(data []float32, shape ...int) *Tensor {
	if n := size(shape); n != len(data) {
		panic(fmt.Sprintf("ml: shape %v needs %d elements, got %d", shape, n, len(data)))
	}

	return &Tensor{shape: slices.Clone(shape), data: data}
}

func Zeros(shape ...int) *Tensor {
	return &Tensor{shape: slices.Clone(shape), data: make([]float32, size(shape))}
}

// Scalar returns a zero dimensional tensor holding v.
func Scalar(v float32) *Tensor {
	return &Tensor{shape: []int{}, data: []float32{v}}
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

func (t *Tensor) Rank() int {
	return len(t.shape)
}

func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the backing slice. Writes are visible to the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Reshape returns a view of t with a new shape sharing the same data.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if n := size(shape); n != len(t.data) {
		panic(fmt.Sprintf("ml: cannot reshape %v into %v", t.shape, shape))
	}

	return &Tensor{shape: slices.Clone(shape), data: t.data}
}

// Slice returns a view of rows [i, j) along the first dimension.
func (t *Tensor) Slice(i, j int) *Tensor {
	if t.Rank() == 0 || i < 0 || j > t.shape[0] || i > j {
		panic(fmt.Sprintf("ml: invalid slice [%d:%d] of %v", i, j, t.shape))
	}

	stride := size(t.shape[1:])
	shape := slices.Clone(t.shape)
	shape[0] = j - i
	return &Tensor{shape: shape, data: t.data[i*stride : j*stride]}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v)", t.shape)
}

// StateDict maps parameter names to their values.
type StateDict map[string]*Tensor

// Names returns the parameter names in sorted order.
func (sd StateDict) Names() []string {
	return slices.Sorted(maps.Keys(sd))
}

// NumParams returns the total number of elements across all tensors.
func (sd StateDict) NumParams() uint64 {
	var n uint64
	for _, t := range sd {
		n += uint64(t.Len())
	}
	return n
}
