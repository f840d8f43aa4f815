package model

import (
	"math"
	"slices"

	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/ml/nn"
)

// Mapping turns a latent z into an intermediate latent w.
type Mapping struct {
	Blocks []*nn.Linear `gguf:"blocks"`

	// fusedBiasAct applies the activation gain after the bias instead of
	// folding it into the weights.
	fusedBiasAct bool
}

func NewMapping(c Config, fusedBiasAct bool) *Mapping {
	m := &Mapping{
		Blocks:       make([]*nn.Linear, c.MappingLayers),
		fusedBiasAct: fusedBiasAct,
	}

	for i := range m.Blocks {
		m.Blocks[i] = nn.NewLinear(c.LatentSize, c.LatentSize, true)
	}
	return m
}

func (m *Mapping) Forward(z []float32, lrmul float32) []float32 {
	x := slices.Clone(z)
	ml.PixelNorm(x, 1e-8)

	for _, block := range m.Blocks {
		if m.fusedBiasAct {
			x = block.Forward(x, 1, lrmul)
			ml.LeakyReLU(x, 0.2, math.Sqrt2)
		} else {
			x = block.Forward(x, math.Sqrt2, lrmul)
			ml.LeakyReLU(x, 0.2, 1)
		}
	}

	return x
}

// Truncation holds the running average of w tracked during training.
type Truncation struct {
	AvgLatent *ml.Tensor `gguf:"avg_latent"`
}

func NewTruncation(c Config) *Truncation {
	return &Truncation{AvgLatent: ml.Zeros(c.LatentSize)}
}

// Apply broadcasts w to numLayers per-layer latents and pulls the first
// cutoff of them towards the average by psi.
func (t *Truncation) Apply(w []float32, numLayers int, psi float32, cutoff int) [][]float32 {
	truncated := w
	if psi != 1 {
		truncated = ml.Lerp(t.AvgLatent.Data(), w, psi)
	}

	ws := make([][]float32, numLayers)
	for i := range ws {
		if i < cutoff {
			ws[i] = truncated
		} else {
			ws[i] = w
		}
	}
	return ws
}
