package ml

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Operations in this file work on a single sample laid out as [C, H, W].
// Batching is done by the caller through Context.ForEach.

// MatVec computes scale * W·x for W of shape [out, in].
func MatVec(w []float32, out, in int, x []float32, scale float32) []float32 {
	if len(w) != out*in || len(x) != in {
		panic(fmt.Sprintf("ml: matvec [%d, %d] with %d weights and %d inputs", out, in, len(w), len(x)))
	}

	y := make([]float32, out)
	blas32.Gemv(blas.NoTrans, scale,
		blas32.General{Rows: out, Cols: in, Stride: in, Data: w},
		blas32.Vector{N: in, Inc: 1, Data: x},
		0, blas32.Vector{N: out, Inc: 1, Data: y})
	return y
}

// Conv2D convolves x [C, H, W] with w [O, C, kh, kw] at stride 1 using
// im2col followed by a single GEMM. w is read as a flat [O, C*kh*kw] matrix.
func Conv2D(x *Tensor, w []float32, outChannels, kh, kw, padding int) *Tensor {
	c, h, wd := x.shape[0], x.shape[1], x.shape[2]
	if len(w) != outChannels*c*kh*kw {
		panic(fmt.Sprintf("ml: conv2d weight has %d elements, want %dx%dx%dx%d", len(w), outChannels, c, kh, kw))
	}

	ho, wo := h+2*padding-kh+1, wd+2*padding-kw+1
	if ho <= 0 || wo <= 0 {
		panic(fmt.Sprintf("ml: conv2d output %dx%d from input %dx%d", ho, wo, h, wd))
	}

	k, p := c*kh*kw, ho*wo

	cols := x.data
	if kh != 1 || kw != 1 || padding != 0 {
		cols = make([]float32, k*p)
		im2col(cols, x.data, c, h, wd, kh, kw, ho, wo, padding)
	}

	out := Zeros(outChannels, ho, wo)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: outChannels, Cols: k, Stride: k, Data: w},
		blas32.General{Rows: k, Cols: p, Stride: p, Data: cols},
		0, blas32.General{Rows: outChannels, Cols: p, Stride: p, Data: out.data})
	return out
}

// im2col lays out input patches as a [C*kh*kw, ho*wo] matrix so that each
// column is one output position.
func im2col(cols, x []float32, c, h, w, kh, kw, ho, wo, padding int) {
	p := ho * wo
	for ci := range c {
		for ky := range kh {
			for kx := range kw {
				row := cols[((ci*kh+ky)*kw+kx)*p:][:p]
				for oy := range ho {
					iy := oy + ky - padding
					dst := row[oy*wo:][:wo]
					if iy < 0 || iy >= h {
						clear(dst)
						continue
					}

					src := x[(ci*h+iy)*w:][:w]
					for ox := range wo {
						ix := ox + kx - padding
						if ix < 0 || ix >= w {
							dst[ox] = 0
						} else {
							dst[ox] = src[ix]
						}
					}
				}
			}
		}
	}
}

// ConvTranspose2D applies a transposed convolution to x [C, H, W] with
// w [C, O, kh, kw], the layout used by transposed convolution weights.
func ConvTranspose2D(x *Tensor, w []float32, outChannels, kh, kw, stride, padding int) *Tensor {
	c, h, wd := x.shape[0], x.shape[1], x.shape[2]
	if len(w) != c*outChannels*kh*kw {
		panic(fmt.Sprintf("ml: conv_transpose2d weight has %d elements, want %dx%dx%dx%d", len(w), c, outChannels, kh, kw))
	}

	ho := (h-1)*stride - 2*padding + kh
	wo := (wd-1)*stride - 2*padding + kw
	if ho <= 0 || wo <= 0 {
		panic(fmt.Sprintf("ml: conv_transpose2d output %dx%d from input %dx%d", ho, wo, h, wd))
	}

	k, p := outChannels*kh*kw, h*wd

	// cols[O*kh*kw, H*W] = Wᵀ · X
	cols := make([]float32, k*p)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		blas32.General{Rows: c, Cols: k, Stride: k, Data: w},
		blas32.General{Rows: c, Cols: p, Stride: p, Data: x.data},
		0, blas32.General{Rows: k, Cols: p, Stride: p, Data: cols})

	out := Zeros(outChannels, ho, wo)
	for o := range outChannels {
		plane := out.data[o*ho*wo:][:ho*wo]
		for ky := range kh {
			for kx := range kw {
				row := cols[((o*kh+ky)*kw+kx)*p:][:p]
				for iy := range h {
					oy := iy*stride + ky - padding
					if oy < 0 || oy >= ho {
						continue
					}

					for ix := range wd {
						ox := ix*stride + kx - padding
						if ox < 0 || ox >= wo {
							continue
						}

						plane[oy*wo+ox] += row[iy*wd+ix]
					}
				}
			}
		}
	}

	return out
}

// FIRKernel normalizes a separable 1-D filter so that its 2-D outer product
// sums to gain.
func FIRKernel(k []float32, gain float32) []float32 {
	var sum float32
	for _, v := range k {
		sum += v
	}

	scale := float32(math.Sqrt(float64(gain))) / sum
	out := make([]float32, len(k))
	for i, v := range k {
		out[i] = v * scale
	}
	return out
}

// UpFIRDn2D upsamples x [C, H, W] by inserting zeros, pads it and filters it
// with the separable kernel k. pad0 and pad1 are the leading and trailing
// padding applied on both spatial axes.
func UpFIRDn2D(x *Tensor, k []float32, up, pad0, pad1 int) *Tensor {
	c, h, w := x.shape[0], x.shape[1], x.shape[2]
	hp, wp := h*up+pad0+pad1, w*up+pad0+pad1
	ho, wo := hp-len(k)+1, wp-len(k)+1
	if ho <= 0 || wo <= 0 {
		panic(fmt.Sprintf("ml: upfirdn2d output %dx%d from input %dx%d", ho, wo, h, w))
	}

	kf := slices.Clone(k)
	slices.Reverse(kf)

	padded := make([]float32, hp*wp)
	tmp := make([]float32, hp*wo)
	out := Zeros(c, ho, wo)
	for ci := range c {
		clear(padded)
		src := x.data[ci*h*w:][:h*w]
		for y := range h {
			for xx := range w {
				padded[(y*up+pad0)*wp+xx*up+pad0] = src[y*w+xx]
			}
		}

		for y := range hp {
			row := padded[y*wp:][:wp]
			for ox := range wo {
				var sum float32
				for j, kv := range kf {
					sum += row[ox+j] * kv
				}
				tmp[y*wo+ox] = sum
			}
		}

		dst := out.data[ci*ho*wo:][:ho*wo]
		for oy := range ho {
			for ox := range wo {
				var sum float32
				for i, kv := range kf {
					sum += tmp[(oy+i)*wo+ox] * kv
				}
				dst[oy*wo+ox] = sum
			}
		}
	}

	return out
}

// UpsampleNearest repeats every pixel of x [C, H, W] factor times along both
// spatial axes.
func UpsampleNearest(x *Tensor, factor int) *Tensor {
	c, h, w := x.shape[0], x.shape[1], x.shape[2]
	ho, wo := h*factor, w*factor
	out := Zeros(c, ho, wo)
	for ci := range c {
		for oy := range ho {
			src := x.data[(ci*h+oy/factor)*w:][:w]
			dst := out.data[(ci*ho+oy)*wo:][:wo]
			for ox := range wo {
				dst[ox] = src[ox/factor]
			}
		}
	}
	return out
}

// LeakyReLU applies max(x, slope*x) * gain in place.
func LeakyReLU(x []float32, slope, gain float32) {
	for i, v := range x {
		if v < 0 {
			v *= slope
		}
		x[i] = v * gain
	}
}

// AddBias adds b[c] * scale to every element of channel c in place.
func AddBias(x *Tensor, b []float32, scale float32) {
	plane := x.Len() / x.shape[0]
	for c, bv := range b {
		bv *= scale
		for i := range x.data[c*plane:][:plane] {
			x.data[c*plane+i] += bv
		}
	}
}

// AddNoise adds strength[c] * noise to every channel c in place. A single
// strength value is shared by all channels.
func AddNoise(x *Tensor, noise, strength []float32) {
	plane := x.Len() / x.shape[0]
	if len(noise) != plane {
		panic(fmt.Sprintf("ml: noise has %d elements, want %d", len(noise), plane))
	}

	for c := range x.shape[0] {
		s := strength[0]
		if len(strength) > 1 {
			s = strength[c]
		}

		dst := x.data[c*plane:][:plane]
		for i, n := range noise {
			dst[i] += s * n
		}
	}
}

// InstanceNorm normalizes every channel of x to zero mean and unit variance
// in place.
func InstanceNorm(x *Tensor, eps float32) {
	plane := x.Len() / x.shape[0]
	for c := range x.shape[0] {
		dst := x.data[c*plane:][:plane]

		var mean float64
		for _, v := range dst {
			mean += float64(v)
		}
		mean /= float64(plane)

		var variance float64
		for i, v := range dst {
			d := float64(v) - mean
			dst[i] = float32(d)
			variance += d * d
		}
		variance /= float64(plane)

		scale := float32(1 / math.Sqrt(variance+float64(eps)))
		for i := range dst {
			dst[i] *= scale
		}
	}
}

// Modulate computes x[c] = x[c] * scale[c] + shift[c] in place.
func Modulate(x *Tensor, scale, shift []float32) {
	plane := x.Len() / x.shape[0]
	for c := range x.shape[0] {
		dst := x.data[c*plane:][:plane]
		for i := range dst {
			dst[i] = dst[i]*scale[c] + shift[c]
		}
	}
}

// PixelNorm scales v to unit root mean square in place.
func PixelNorm(v []float32, eps float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	scale := float32(1 / math.Sqrt(sum/float64(len(v))+float64(eps)))
	for i := range v {
		v[i] *= scale
	}
}

// Add computes a += b in place.
func Add(a, b *Tensor) {
	if len(a.data) != len(b.data) {
		panic(fmt.Sprintf("ml: add %v and %v", a.shape, b.shape))
	}

	for i, v := range b.data {
		a.data[i] += v
	}
}

// Lerp returns a + (b - a) * t element wise.
func Lerp(a, b []float32, t float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}
