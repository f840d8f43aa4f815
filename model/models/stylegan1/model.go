package stylegan1

import (
	"fmt"
	"math"

	"github.com/stylegans/stylegans/fs"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/ml/nn"
	"github.com/stylegans/stylegans/model"
)

var defaults = model.Config{
	Resolution:       512,
	LatentSize:       512,
	MappingLayers:    8,
	MappingLRMul:     0.01,
	FmapBase:         8192,
	FmapMax:          512,
	TruncationPsi:    0.7,
	TruncationCutoff: 8,
}

// fusedResolution is the smallest output resolution upsampled with a
// single transposed convolution.
const fusedResolution = 128

type Model struct {
	model.Base

	Mapping    *model.Mapping    `gguf:"mapping"`
	Truncation *model.Truncation `gguf:"truncation"`
	Synthesis  *Synthesis        `gguf:"synthesis"`
}

func New(c fs.Config) (model.Model, error) {
	config := model.ConfigFrom(c, defaults)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Model{
		Base:       model.NewBase(config),
		Mapping:    model.NewMapping(config, false),
		Truncation: model.NewTruncation(config),
		Synthesis:  newSynthesis(config),
	}, nil
}

func (m *Model) Forward(ctx ml.Context, z []float32) (*ml.Tensor, error) {
	c := m.Config()
	if len(z) != c.LatentSize {
		return nil, fmt.Errorf("latent has %d elements, want %d", len(z), c.LatentSize)
	}

	w := m.Mapping.Forward(z, c.MappingLRMul)
	ws := m.Truncation.Apply(w, c.NumLayers(), c.TruncationPsi, c.TruncationCutoff)
	return m.Synthesis.Forward(ctx, ws)
}

type Synthesis struct {
	Const  *ml.Tensor   `gguf:"const"`
	Layers []*Layer     `gguf:"layers"`
	ToRGB  *nn.Conv2D   `gguf:"to_rgb"`
	Noises []*ml.Tensor `gguf:"noises"`
}

func newSynthesis(c model.Config) *Synthesis {
	n := c.NumLayers()
	s := &Synthesis{
		Const:  ml.Zeros(1, c.Channels(2), 4, 4),
		Layers: make([]*Layer, n),
		ToRGB:  nn.NewConv2D(c.Channels(c.Log2()), 3, 1, true),
		Noises: make([]*ml.Tensor, n),
	}

	for i := range n {
		log2 := i/2 + 2
		res, channels := 1<<log2, c.Channels(log2)

		l := &Layer{
			Noise: nn.NewNoise(channels),
			Bias:  ml.Zeros(channels),
			Style: nn.NewLinear(c.LatentSize, 2*channels, true),
		}

		switch {
		case i == 0:
		case i == 1:
			l.Conv = nn.NewConv2D(channels, channels, 3, false)
		case i%2 == 0 && res >= fusedResolution:
			l.ConvUp = nn.NewConvTranspose2D(c.Channels(log2-1), channels, 3)
		case i%2 == 0:
			l.Conv = nn.NewConv2D(c.Channels(log2-1), channels, 3, false)
			l.upsample = true
		default:
			l.Conv = nn.NewConv2D(channels, channels, 3, false)
		}

		s.Layers[i] = l
		s.Noises[i] = ml.Zeros(1, 1, res, res)
	}

	return s
}

func (s *Synthesis) Forward(ctx ml.Context, ws [][]float32) (*ml.Tensor, error) {
	x := s.Const.Clone()
	x = x.Reshape(x.Dim(1), x.Dim(2), x.Dim(3))
	for i, l := range s.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		x = l.Forward(x, ws[i], s.Noises[i])
	}

	return s.ToRGB.Forward(x, 1), nil
}

// Layer is one convolution of the synthesis network followed by noise, bias,
// activation and adaptive instance normalization.
type Layer struct {
	Conv   *nn.Conv2D          `gguf:"conv"`
	ConvUp *nn.ConvTranspose2D `gguf:"conv_up"`
	Noise  *nn.Noise           `gguf:"noise"`
	Bias   *ml.Tensor          `gguf:"bias"`
	Style  *nn.Linear          `gguf:"style"`

	upsample bool
}

var blurKernel = ml.FIRKernel([]float32{1, 2, 1}, 1)

func (l *Layer) Forward(x *ml.Tensor, w []float32, noise *ml.Tensor) *ml.Tensor {
	switch {
	case l.ConvUp != nil:
		x = blur(l.ConvUp.FusedUpsample(x, math.Sqrt2))
	case l.upsample:
		x = blur(l.Conv.Forward(ml.UpsampleNearest(x, 2), math.Sqrt2))
	case l.Conv != nil:
		x = l.Conv.Forward(x, math.Sqrt2)
	}

	l.Noise.Forward(x, noise)
	ml.AddBias(x, l.Bias.Data(), 1)
	ml.LeakyReLU(x.Data(), 0.2, 1)
	nn.AdaIN(x, l.Style.Forward(w, 1, 1))
	return x
}

func blur(x *ml.Tensor) *ml.Tensor {
	return ml.UpFIRDn2D(x, blurKernel, 1, 1, 1)
}

func init() {
	model.Register("stylegan1", New)
}
