package nn

import (
	"github.com/stylegans/stylegans/ml"
)

// Noise scales a fixed noise image before adding it to every channel. The
// weight is per channel, or a single strength shared by all channels.
type Noise struct {
	Weight *ml.Tensor `gguf:"weight"`
}

func NewNoise(channels int) *Noise {
	return &Noise{Weight: ml.Zeros(channels)}
}

func (m *Noise) Forward(x, noise *ml.Tensor) {
	ml.AddNoise(x, noise.Data(), m.Weight.Data())
}

// AdaIN normalizes x per channel and applies the style vector, whose first
// half is the scale offset and second half the shift.
func AdaIN(x *ml.Tensor, style []float32) {
	ml.InstanceNorm(x, 1e-8)

	c := x.Dim(0)
	scale := make([]float32, c)
	for i := range scale {
		scale[i] = style[i] + 1
	}

	ml.Modulate(x, scale, style[c:])
}
