package nn

import (
	"math"

	"github.com/stylegans/stylegans/ml"
)

// Linear is a dense layer with equalized learning rate: weights are stored
// unscaled and multiplied by gain/sqrt(fan_in)*lrmul at runtime.
type Linear struct {
	Weight *ml.Tensor `gguf:"weight"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func NewLinear(in, out int, bias bool) *Linear {
	m := &Linear{Weight: ml.Zeros(out, in)}
	if bias {
		m.Bias = ml.Zeros(out)
	}
	return m
}

func (m *Linear) Forward(x []float32, gain, lrmul float32) []float32 {
	out, in := m.Weight.Dim(0), m.Weight.Dim(1)
	scale := gain / float32(math.Sqrt(float64(in))) * lrmul

	y := ml.MatVec(m.Weight.Data(), out, in, x, scale)
	if m.Bias != nil {
		for i, b := range m.Bias.Data() {
			y[i] += b * lrmul
		}
	}

	return y
}
