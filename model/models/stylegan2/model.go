package stylegan2

import (
	"fmt"
	"math"

	"github.com/stylegans/stylegans/fs"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/ml/nn"
	"github.com/stylegans/stylegans/model"
)

// TruncationCutoff is left unset so truncation covers every layer.
var defaults = model.Config{
	Resolution:    512,
	LatentSize:    512,
	MappingLayers: 8,
	MappingLRMul:  0.01,
	FmapBase:      16384,
	FmapMax:       512,
	TruncationPsi: 0.5,
}

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

	if config.TruncationCutoff == 0 {
		config.TruncationCutoff = config.NumLayers()
	}

	return &Model{
		Base:       model.NewBase(config),
		Mapping:    model.NewMapping(config, true),
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

// Synthesis renders an image from per-layer latents. Layer i reads latent
// i; the output of resolution 2^k reads latent 2k-3.
type Synthesis struct {
	Const  *ml.Tensor   `gguf:"const"`
	Layers []*Layer     `gguf:"layers"`
	ToRGB  []*ToRGB     `gguf:"to_rgb"`
	Noises []*ml.Tensor `gguf:"noises"`
}

func newSynthesis(c model.Config) *Synthesis {
	n := c.NumLayers() - 1
	s := &Synthesis{
		Const:  ml.Zeros(1, c.Channels(2), 4, 4),
		Layers: make([]*Layer, n),
		ToRGB:  make([]*ToRGB, c.Log2()-1),
		Noises: make([]*ml.Tensor, n),
	}

	for i := range n {
		log2 := layerLog2(i)
		channels := c.Channels(log2)

		l := &Layer{Noise: nn.NewNoise(1), Bias: ml.Zeros(channels)}
		if i%2 == 1 {
			l.ConvUp = nn.NewModulatedConvTranspose2D(c.Channels(log2-1), channels, 3, c.LatentSize)
		} else {
			l.Conv = nn.NewModulatedConv2D(channels, channels, 3, c.LatentSize)
		}

		s.Layers[i] = l
		s.Noises[i] = ml.Zeros(1, 1, 1<<log2, 1<<log2)
	}

	for i := range s.ToRGB {
		s.ToRGB[i] = &ToRGB{
			Conv: nn.NewModulatedConv2D(c.Channels(i+2), 3, 1, c.LatentSize),
			Bias: ml.Zeros(3),
		}
	}

	return s
}

// layerLog2 returns log2 of the output resolution of synthesis layer i.
func layerLog2(i int) int {
	return (i + 5) / 2
}

func (s *Synthesis) Forward(ctx ml.Context, ws [][]float32) (*ml.Tensor, error) {
	x := s.Const.Clone()
	x = x.Reshape(x.Dim(1), x.Dim(2), x.Dim(3))

	var img *ml.Tensor
	for i, l := range s.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		x = l.Forward(x, ws[i], s.Noises[i])
		if i%2 == 1 {
			continue
		}

		log2 := layerLog2(i)
		y := s.ToRGB[log2-2].Forward(x, ws[2*log2-3])
		if img != nil {
			ml.Add(y, nn.UpsampleRGB(img))
		}
		img = y
	}

	return img, nil
}

// Layer is a modulated convolution followed by scaled noise, bias and a
// leaky ReLU. Odd layers double the resolution.
type Layer struct {
	Conv   *nn.ModulatedConv2D          `gguf:"conv"`
	ConvUp *nn.ModulatedConvTranspose2D `gguf:"conv_up"`
	Noise  *nn.Noise                    `gguf:"noise"`
	Bias   *ml.Tensor                   `gguf:"bias"`
}

func (l *Layer) Forward(x *ml.Tensor, w []float32, noise *ml.Tensor) *ml.Tensor {
	if l.ConvUp != nil {
		x = l.ConvUp.Forward(x, w, true)
	} else {
		x = l.Conv.Forward(x, w, true)
	}

	l.Noise.Forward(x, noise)
	ml.AddBias(x, l.Bias.Data(), 1)
	ml.LeakyReLU(x.Data(), 0.2, math.Sqrt2)
	return x
}

type ToRGB struct {
	Conv *nn.ModulatedConv2D `gguf:"conv"`
	Bias *ml.Tensor          `gguf:"bias"`
}

func (m *ToRGB) Forward(x *ml.Tensor, w []float32) *ml.Tensor {
	y := m.Conv.Forward(x, w, false)
	ml.AddBias(y, m.Bias.Data(), 1)
	return y
}

func init() {
	model.Register("stylegan2", New)
}
