package ml

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func random(r *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = r.Float32()*2 - 1
	}
	return s
}

var approx = cmpopts.EquateApprox(0, 1e-4)

func naiveConv2D(x *Tensor, w []float32, o, kh, kw, pad int) *Tensor {
	c, h, wd := x.Dim(0), x.Dim(1), x.Dim(2)
	ho, wo := h+2*pad-kh+1, wd+2*pad-kw+1
	out := Zeros(o, ho, wo)
	for oc := range o {
		for oy := range ho {
			for ox := range wo {
				var sum float32
				for ic := range c {
					for ky := range kh {
						for kx := range kw {
							iy, ix := oy+ky-pad, ox+kx-pad
							if iy < 0 || iy >= h || ix < 0 || ix >= wd {
								continue
							}
							sum += x.data[(ic*h+iy)*wd+ix] * w[((oc*c+ic)*kh+ky)*kw+kx]
						}
					}
				}
				out.data[(oc*ho+oy)*wo+ox] = sum
			}
		}
	}
	return out
}

func naiveConvTranspose2D(x *Tensor, w []float32, o, kh, kw, stride, pad int) *Tensor {
	c, h, wd := x.Dim(0), x.Dim(1), x.Dim(2)
	ho, wo := (h-1)*stride-2*pad+kh, (wd-1)*stride-2*pad+kw
	out := Zeros(o, ho, wo)
	for ic := range c {
		for iy := range h {
			for ix := range wd {
				for oc := range o {
					for ky := range kh {
						for kx := range kw {
							oy, ox := iy*stride+ky-pad, ix*stride+kx-pad
							if oy < 0 || oy >= ho || ox < 0 || ox >= wo {
								continue
							}
							out.data[(oc*ho+oy)*wo+ox] += x.data[(ic*h+iy)*wd+ix] * w[((ic*o+oc)*kh+ky)*kw+kx]
						}
					}
				}
			}
		}
	}
	return out
}

func TestConv2D(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	cases := []struct {
		name             string
		c, h, w, o, k, p int
	}{
		{"3x3 same", 3, 5, 6, 4, 3, 1},
		{"3x3 valid", 2, 5, 5, 3, 3, 0},
		{"1x1", 4, 3, 3, 3, 1, 0},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			x := New(random(r, tt.c*tt.h*tt.w), tt.c, tt.h, tt.w)
			w := random(r, tt.o*tt.c*tt.k*tt.k)

			got := Conv2D(x, w, tt.o, tt.k, tt.k, tt.p)
			want := naiveConv2D(x, w, tt.o, tt.k, tt.k, tt.p)
			if diff := cmp.Diff(want.Shape(), got.Shape()); diff != "" {
				t.Fatalf("shape mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(want.Data(), got.Data(), approx); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvTranspose2D(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	cases := []struct {
		name                string
		c, h, o, k, s, p    int
		wantHeight          int
	}{
		{"stride 2 no padding", 3, 4, 2, 3, 2, 0, 9},
		{"fused upscale", 2, 4, 3, 4, 2, 1, 8},
		{"stride 1", 2, 3, 2, 3, 1, 1, 3},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			x := New(random(r, tt.c*tt.h*tt.h), tt.c, tt.h, tt.h)
			w := random(r, tt.c*tt.o*tt.k*tt.k)

			got := ConvTranspose2D(x, w, tt.o, tt.k, tt.k, tt.s, tt.p)
			if got.Dim(1) != tt.wantHeight {
				t.Fatalf("expected height %d, got %d", tt.wantHeight, got.Dim(1))
			}

			want := naiveConvTranspose2D(x, w, tt.o, tt.k, tt.k, tt.s, tt.p)
			if diff := cmp.Diff(want.Data(), got.Data(), approx); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpFIRDn2D(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		x := New([]float32{1, 2, 3, 4}, 1, 2, 2)
		got := UpFIRDn2D(x, []float32{1}, 1, 0, 0)
		if diff := cmp.Diff(x.Data(), got.Data()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("blur keeps constant interior", func(t *testing.T) {
		x := Zeros(2, 4, 4)
		for i := range x.data {
			x.data[i] = 3
		}

		got := UpFIRDn2D(x, FIRKernel([]float32{1, 2, 1}, 1), 1, 1, 1)
		if diff := cmp.Diff([]int{2, 4, 4}, got.Shape()); diff != "" {
			t.Fatalf("shape mismatch (-want +got):\n%s", diff)
		}

		if v := got.data[1*4+1]; math.Abs(float64(v-3)) > 1e-5 {
			t.Errorf("expected interior value 3, got %v", v)
		}

		if v := got.data[0]; v >= 3 {
			t.Errorf("expected corner to see zero padding, got %v", v)
		}
	})

	t.Run("upsample doubles resolution", func(t *testing.T) {
		x := Zeros(1, 4, 4)
		for i := range x.data {
			x.data[i] = 1
		}

		got := UpFIRDn2D(x, FIRKernel([]float32{1, 3, 3, 1}, 4), 2, 2, 1)
		if diff := cmp.Diff([]int{1, 8, 8}, got.Shape()); diff != "" {
			t.Fatalf("shape mismatch (-want +got):\n%s", diff)
		}

		if v := got.data[3*8+3]; math.Abs(float64(v-1)) > 1e-5 {
			t.Errorf("expected interior value 1, got %v", v)
		}
	})
}

func TestFIRKernel(t *testing.T) {
	k := FIRKernel([]float32{1, 3, 3, 1}, 4)
	var sum float32
	for _, a := range k {
		for _, b := range k {
			sum += a * b
		}
	}

	if math.Abs(float64(sum-4)) > 1e-5 {
		t.Errorf("expected 2-D kernel to sum to 4, got %v", sum)
	}
}

func TestUpsampleNearest(t *testing.T) {
	x := New([]float32{1, 2, 3, 4}, 1, 2, 2)
	got := UpsampleNearest(x, 2)
	want := []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}

	if diff := cmp.Diff(want, got.Data()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInstanceNorm(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	x := New(random(r, 2*8*8), 2, 8, 8)
	InstanceNorm(x, 1e-8)

	for c := range 2 {
		var mean, sq float64
		for _, v := range x.data[c*64:][:64] {
			mean += float64(v)
			sq += float64(v) * float64(v)
		}
		mean /= 64
		sq /= 64

		if math.Abs(mean) > 1e-5 {
			t.Errorf("channel %d: expected zero mean, got %v", c, mean)
		}

		if math.Abs(sq-1) > 1e-3 {
			t.Errorf("channel %d: expected unit variance, got %v", c, sq)
		}
	}
}

func TestPointwise(t *testing.T) {
	v := []float32{-2, 0, 2}
	LeakyReLU(v, 0.2, 2)
	if diff := cmp.Diff([]float32{-0.8, 0, 4}, v, approx); diff != "" {
		t.Errorf("leaky relu mismatch (-want +got):\n%s", diff)
	}

	x := New([]float32{1, 1, 2, 2}, 2, 1, 2)
	AddBias(x, []float32{1, -1}, 0.5)
	if diff := cmp.Diff([]float32{1.5, 1.5, 1.5, 1.5}, x.Data()); diff != "" {
		t.Errorf("bias mismatch (-want +got):\n%s", diff)
	}

	AddNoise(x, []float32{1, 2}, []float32{2})
	if diff := cmp.Diff([]float32{3.5, 5.5, 3.5, 5.5}, x.Data()); diff != "" {
		t.Errorf("noise mismatch (-want +got):\n%s", diff)
	}

	Modulate(x, []float32{2, 0}, []float32{0, 1})
	if diff := cmp.Diff([]float32{7, 11, 1, 1}, x.Data()); diff != "" {
		t.Errorf("modulate mismatch (-want +got):\n%s", diff)
	}

	p := []float32{3, 4}
	PixelNorm(p, 0)
	if diff := cmp.Diff([]float32{3 / 3.5355339, 4 / 3.5355339}, p, approx); diff != "" {
		t.Errorf("pixel norm mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float32{1, 2.5}, Lerp([]float32{0, 2}, []float32{2, 3}, 0.5)); diff != "" {
		t.Errorf("lerp mismatch (-want +got):\n%s", diff)
	}
}

func TestMatVec(t *testing.T) {
	w := []float32{
		1, 2, 3,
		4, 5, 6,
	}

	got := MatVec(w, 2, 3, []float32{1, 0, -1}, 2)
	if diff := cmp.Diff([]float32{-4, -4}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTensorViews(t *testing.T) {
	x := New([]float32{0, 1, 2, 3, 4, 5}, 3, 2)
	s := x.Slice(1, 3)
	if diff := cmp.Diff([]int{2, 2}, s.Shape()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}

	s.Data()[0] = 10
	if x.Data()[2] != 10 {
		t.Error("slice should share data with its parent")
	}

	r := x.Reshape(6)
	if r.Rank() != 1 || r.Len() != 6 {
		t.Errorf("unexpected reshape %v", r)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for mismatched shape")
		}
	}()
	New([]float32{1, 2, 3}, 2, 2)
}

func TestForEach(t *testing.T) {
	ctx := NewContext(context.Background(), CPU, 2)

	var n atomic.Int64
	if err := ctx.ForEach(10, func(_ context.Context, i int) error {
		n.Add(int64(i))
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if n.Load() != 45 {
		t.Errorf("expected every index to run once, got sum %d", n.Load())
	}

	boom := errors.New("boom")
	err := ctx.ForEach(10, func(_ context.Context, i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestParseDevice(t *testing.T) {
	for s, want := range map[string]Device{"cpu": CPU, "GPU": GPU, "cuda": GPU} {
		got, err := ParseDevice(s)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("ParseDevice(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := ParseDevice("tpu"); err == nil {
		t.Error("expected error for unknown device")
	}

	if SelectDevice(GPU) != CPU {
		t.Error("expected gpu requests to fall back to cpu")
	}
}
