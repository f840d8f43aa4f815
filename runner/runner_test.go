package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/model"
)

// constModel renders every pixel of every channel as the first element of
// the latent.
type constModel struct {
	model.Base

	mu    sync.Mutex
	calls []float32
	fail  float32
}

func newConstModel() *constModel {
	return &constModel{Base: model.NewBase(model.Config{Resolution: 2, LatentSize: 2}), fail: 99}
}

func (m *constModel) Forward(_ ml.Context, z []float32) (*ml.Tensor, error) {
	m.mu.Lock()
	m.calls = append(m.calls, z[0])
	m.mu.Unlock()

	if z[0] == m.fail {
		return nil, errors.New("boom")
	}

	t := ml.Zeros(3, 2, 2)
	for i := range t.Data() {
		t.Data()[i] = z[0]
	}
	return t, nil
}

func (m *constModel) Table() convert.Table { return nil }

func latents(values ...float32) *convert.Array {
	data := make([]float32, 0, 2*len(values))
	for _, v := range values {
		data = append(data, v, 0)
	}
	return &convert.Array{Shape: []int{len(values), 2}, Data: data}
}

func TestGenerate(t *testing.T) {
	m := newConstModel()

	var progress []int
	images, err := Generate(context.Background(), m, latents(-1, 0, 1, 0.5, -0.5), Options{
		BatchSize: 2,
		Threads:   2,
		Progress:  func(done int) { progress = append(progress, done) },
	})
	require.NoError(t, err)
	require.Equal(t, 5, images.N)

	if diff := cmp.Diff([]int{2, 4, 5}, progress); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}

	for i, want := range []uint8{0, 127, 255, 191, 63} {
		for _, got := range images.Image(i) {
			if got != want {
				t.Fatalf("image %d: got %d, want %d", i, got, want)
			}
		}
	}

	require.Len(t, m.calls, 5)
}

func TestGenerateBatchLargerThanLatents(t *testing.T) {
	var progress []int
	images, err := Generate(context.Background(), newConstModel(), latents(1, 1), Options{
		BatchSize: 8,
		Progress:  func(done int) { progress = append(progress, done) },
	})
	require.NoError(t, err)
	require.Equal(t, 2, images.N)
	require.Equal(t, []int{2}, progress)
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Generate(ctx, newConstModel(), latents(1), Options{BatchSize: 0})
	require.ErrorContains(t, err, "batch size must be at least 1")

	_, err = Generate(ctx, newConstModel(), &convert.Array{Shape: []int{2, 3}, Data: make([]float32, 6)}, Options{BatchSize: 1})
	require.ErrorIs(t, err, convert.ErrShape)

	_, err = Generate(ctx, newConstModel(), latents(0, 0, 99), Options{BatchSize: 2})
	require.EqualError(t, err, "samples [2, 3): boom")

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	m := newConstModel()
	_, err = Generate(canceled, m, latents(0, 0), Options{BatchSize: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, m.calls)
}
