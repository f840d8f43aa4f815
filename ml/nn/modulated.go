package nn

import (
	"math"

	"github.com/stylegans/stylegans/ml"
)

// ModulatedConv2D scales its weight per input channel by a style derived
// from the latent w, then optionally normalizes each output filter.
type ModulatedConv2D struct {
	Weight     *ml.Tensor `gguf:"weight"`
	Modulation *Linear    `gguf:"modulation"`
}

func NewModulatedConv2D(in, out, kernel, latent int) *ModulatedConv2D {
	return &ModulatedConv2D{
		Weight:     ml.Zeros(out, in, kernel, kernel),
		Modulation: NewLinear(latent, in, true),
	}
}

func (m *ModulatedConv2D) Forward(x *ml.Tensor, w []float32, demodulate bool) *ml.Tensor {
	out, in, k := m.Weight.Dim(0), m.Weight.Dim(1), m.Weight.Dim(2)
	styles := styles(m.Modulation, w)
	scale := 1 / float32(math.Sqrt(float64(in*k*k)))

	src := m.Weight.Data()
	ww := make([]float32, len(src))
	for o := range out {
		filter := ww[o*in*k*k:][:in*k*k]
		for c := range in {
			s := scale * styles[c]
			for i, v := range src[(o*in+c)*k*k:][:k*k] {
				filter[c*k*k+i] = v * s
			}
		}

		if demodulate {
			demod(filter)
		}
	}

	return ml.Conv2D(x, ww, out, k, k, k/2)
}

// ModulatedConvTranspose2D is the upsampling variant. Its weight is laid out
// as [in, out, k, k] with the spatial axes already flipped.
type ModulatedConvTranspose2D struct {
	Weight     *ml.Tensor `gguf:"weight"`
	Modulation *Linear    `gguf:"modulation"`
}

func NewModulatedConvTranspose2D(in, out, kernel, latent int) *ModulatedConvTranspose2D {
	return &ModulatedConvTranspose2D{
		Weight:     ml.Zeros(in, out, kernel, kernel),
		Modulation: NewLinear(latent, in, true),
	}
}

// Forward doubles the resolution of x: a stride 2 transposed convolution
// followed by a [1, 3, 3, 1] low pass filter.
func (m *ModulatedConvTranspose2D) Forward(x *ml.Tensor, w []float32, demodulate bool) *ml.Tensor {
	in, out, k := m.Weight.Dim(0), m.Weight.Dim(1), m.Weight.Dim(2)
	styles := styles(m.Modulation, w)
	scale := 1 / float32(math.Sqrt(float64(in*k*k)))

	src := m.Weight.Data()
	ww := make([]float32, len(src))
	for c := range in {
		s := scale * styles[c]
		for i, v := range src[c*out*k*k:][:out*k*k] {
			ww[c*out*k*k+i] = v * s
		}
	}

	if demodulate {
		norms := make([]float64, out)
		for c := range in {
			for o := range out {
				for _, v := range ww[(c*out+o)*k*k:][:k*k] {
					norms[o] += float64(v) * float64(v)
				}
			}
		}

		for c := range in {
			for o := range out {
				d := float32(1 / math.Sqrt(norms[o]+1e-8))
				filter := ww[(c*out+o)*k*k:][:k*k]
				for i := range filter {
					filter[i] *= d
				}
			}
		}
	}

	t := ml.ConvTranspose2D(x, ww, out, k, k, 2, 0)
	p := (len(blurKernel) - 2) - (k - 1)
	return ml.UpFIRDn2D(t, ml.FIRKernel(blurKernel, 4), 1, (p+1)/2+1, p/2+1)
}

var blurKernel = []float32{1, 3, 3, 1}

// UpsampleRGB doubles the resolution of a skip connection image with the
// same low pass filter used by the upsampling convolutions.
func UpsampleRGB(x *ml.Tensor) *ml.Tensor {
	p := len(blurKernel) - 2
	return ml.UpFIRDn2D(x, ml.FIRKernel(blurKernel, 4), 2, (p+1)/2+1, p/2)
}

func styles(m *Linear, w []float32) []float32 {
	s := m.Forward(w, 1, 1)
	for i := range s {
		s[i]++
	}
	return s
}

func demod(filter []float32) {
	var sum float64
	for _, v := range filter {
		sum += float64(v) * float64(v)
	}

	d := float32(1 / math.Sqrt(sum+1e-8))
	for i := range filter {
		filter[i] *= d
	}
}
