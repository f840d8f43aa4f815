package nn

import (
	"math"

	"github.com/stylegans/stylegans/ml"
)

type Conv2D struct {
	Weight *ml.Tensor `gguf:"weight"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func NewConv2D(in, out, kernel int, bias bool) *Conv2D {
	m := &Conv2D{Weight: ml.Zeros(out, in, kernel, kernel)}
	if bias {
		m.Bias = ml.Zeros(out)
	}
	return m
}

// Forward applies a stride 1 convolution with "same" padding and
// equalized learning rate scaling.
func (m *Conv2D) Forward(x *ml.Tensor, gain float32) *ml.Tensor {
	out, in, k := m.Weight.Dim(0), m.Weight.Dim(1), m.Weight.Dim(2)
	w := scaled(m.Weight.Data(), gain/float32(math.Sqrt(float64(in*k*k))))

	t := ml.Conv2D(x, w, out, k, k, k/2)
	if m.Bias != nil {
		ml.AddBias(t, m.Bias.Data(), 1)
	}
	return t
}

// ConvTranspose2D holds a transposed convolution weight laid out as
// [in, out, k, k].
type ConvTranspose2D struct {
	Weight *ml.Tensor `gguf:"weight"`
}

func NewConvTranspose2D(in, out, kernel int) *ConvTranspose2D {
	return &ConvTranspose2D{Weight: ml.Zeros(in, out, kernel, kernel)}
}

// FusedUpsample doubles the resolution of x in one step. The kernel is padded
// by one and summed with its shifted copies so the transposed convolution
// matches a nearest upsample followed by the original convolution.
func (m *ConvTranspose2D) FusedUpsample(x *ml.Tensor, gain float32) *ml.Tensor {
	in, out, k := m.Weight.Dim(0), m.Weight.Dim(1), m.Weight.Dim(2)
	scale := gain / float32(math.Sqrt(float64(in*k*k)))

	k4 := k + 1
	src := m.Weight.Data()
	w := make([]float32, in*out*k4*k4)
	at := func(plane []float32, y, x int) float32 {
		if y < 0 || y >= k || x < 0 || x >= k {
			return 0
		}
		return plane[y*k+x]
	}

	for p := range in * out {
		plane := src[p*k*k:][:k*k]
		dst := w[p*k4*k4:][:k4*k4]
		for y := range k4 {
			for x := range k4 {
				dst[y*k4+x] = scale * (at(plane, y, x) + at(plane, y-1, x) + at(plane, y, x-1) + at(plane, y-1, x-1))
			}
		}
	}

	return ml.ConvTranspose2D(x, w, out, k4, k4, 2, 1)
}

func scaled(w []float32, scale float32) []float32 {
	out := make([]float32, len(w))
	for i, v := range w {
		out[i] = v * scale
	}
	return out
}
