package convert

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func iota32(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i)
	}
	return s
}

func TestParseOp(t *testing.T) {
	for _, op := range []Op{OpAny, OpUns, OpFC, OpCon, OpTco, OpMTc} {
		got, err := ParseOp(op.String())
		if err != nil {
			t.Fatal(err)
		}

		if got != op {
			t.Errorf("ParseOp(%q) = %v, want %v", op.String(), got, op)
		}
	}

	if _, err := ParseOp("fc"); !errors.Is(err, ErrUnknownOp) {
		t.Errorf("expected ErrUnknownOp, got %v", err)
	}
}

func TestApplyDense(t *testing.T) {
	a := &Array{Shape: []int{2, 3}, Data: []float32{
		0, 1, 2,
		3, 4, 5,
	}}

	got, err := OpFC.Apply(a)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{3, 2}, got.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float32{0, 3, 1, 4, 2, 5}, got.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]float32{0, 1, 2, 3, 4, 5}, a.Data); diff != "" {
		t.Errorf("source was modified (-want +got):\n%s", diff)
	}
}

func TestApplyConvolution(t *testing.T) {
	const kh, kw, in, out = 2, 3, 4, 5
	src := &Array{Shape: []int{kh, kw, in, out}, Data: iota32(kh * kw * in * out)}
	at := func(y, x, i, o int) float32 {
		return src.Data[((y*kw+x)*in+i)*out+o]
	}

	cases := []struct {
		op    Op
		shape []int
		want  func(a, b, y, x int) float32
	}{
		{OpCon, []int{out, in, kh, kw}, func(o, i, y, x int) float32 { return at(y, x, i, o) }},
		{OpTco, []int{in, out, kh, kw}, func(i, o, y, x int) float32 { return at(y, x, i, o) }},
		{OpMTc, []int{in, out, kh, kw}, func(i, o, y, x int) float32 { return at(kh-1-y, kw-1-x, i, o) }},
	}

	for _, tt := range cases {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, err := tt.op.Apply(src)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.shape, got.Shape()); diff != "" {
				t.Fatalf("shape mismatch (-want +got):\n%s", diff)
			}

			d0, d1 := tt.shape[0], tt.shape[1]
			want := make([]float32, 0, got.Len())
			for a := range d0 {
				for b := range d1 {
					for y := range kh {
						for x := range kw {
							want = append(want, tt.want(a, b, y, x))
						}
					}
				}
			}

			if diff := cmp.Diff(want, got.Data()); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyScalarAndIdentity(t *testing.T) {
	got, err := OpUns.Apply(&Array{Shape: []int{}, Data: []float32{0.25}})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{1}, got.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	a := &Array{Shape: []int{1, 1, 2, 2}, Data: []float32{1, 2, 3, 4}}
	got, err = OpAny.Apply(a)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(a.Shape, got.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	got.Data()[0] = 100
	if a.Data[0] != 1 {
		t.Error("identity should copy its source")
	}
}

func TestApplyShapeErrors(t *testing.T) {
	cases := []struct {
		op Op
		a  *Array
	}{
		{OpUns, &Array{Shape: []int{2}, Data: []float32{1, 2}}},
		{OpFC, &Array{Shape: []int{1, 1, 2}, Data: []float32{1, 2}}},
		{OpCon, &Array{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}},
		{OpMTc, &Array{Shape: []int{4}, Data: []float32{1, 2, 3, 4}}},
	}

	for _, tt := range cases {
		t.Run(tt.op.String(), func(t *testing.T) {
			if _, err := tt.op.Apply(tt.a); !errors.Is(err, ErrShape) {
				t.Errorf("expected ErrShape, got %v", err)
			}
		})
	}
}

func TestSourceShape(t *testing.T) {
	for _, dst := range [][]int{{1}, {3, 2}, {4, 2, 3, 3}} {
		for _, op := range []Op{OpAny, OpUns, OpFC, OpCon, OpTco, OpMTc} {
			if op == OpUns && len(dst) != 1 || op == OpFC && len(dst) != 2 || op >= OpCon && len(dst) != 4 {
				continue
			}

			src := op.SourceShape(dst)
			got, err := op.Apply(&Array{Shape: src, Data: iota32(size(src))})
			if err != nil {
				t.Fatalf("%s %v: %v", op, src, err)
			}

			if diff := cmp.Diff(dst, got.Shape()); diff != "" {
				t.Errorf("%s: shape mismatch (-want +got):\n%s", op, diff)
			}
		}
	}
}
