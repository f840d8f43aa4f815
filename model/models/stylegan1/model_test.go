package stylegan1

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/fs/ggml"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/model"
)

func tiny(t *testing.T, resolution uint32) model.Model {
	t.Helper()
	m, err := New(ggml.KV{
		"general.architecture":     "stylegan1",
		"stylegan1.resolution":     resolution,
		"stylegan1.latent_size":    uint32(4),
		"stylegan1.mapping_layers": uint32(2),
		"stylegan1.fmap_base":      uint32(8),
		"stylegan1.fmap_max":       uint32(4),
	})
	require.NoError(t, err)
	return m
}

// sourceArrays builds a random source dictionary that covers every entry of
// the model's table.
func sourceArrays(t *testing.T, m model.Model, seed uint64) convert.Arrays {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	sd := model.StateDict(m)

	arrays := make(convert.Arrays)
	for name, e := range m.Table() {
		dst, ok := sd[name]
		require.True(t, ok, "table names unknown parameter %s", name)

		shape := e.Op.SourceShape(dst.Shape())
		n := 1
		for _, d := range shape {
			n *= d
		}

		data := make([]float32, n)
		for i := range data {
			data[i] = r.Float32()*2 - 1
		}
		arrays[e.Source] = &convert.Array{Shape: shape, Data: data}
	}

	return arrays
}

var cmpSorted = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestTable(t *testing.T) {
	m := tiny(t, 8)

	var names []string
	for name := range m.Table() {
		names = append(names, name)
	}

	if diff := cmp.Diff(model.StateDict(m).Names(), names, cmpSorted); diff != "" {
		t.Errorf("table does not cover the state dict (-want +got):\n%s", diff)
	}

	table := m.Table()
	for name, want := range map[string]convert.Entry{
		"mapping.blocks.1.weight":         {Op: convert.OpFC, Source: "G_mapping/Dense1/weight"},
		"truncation.avg_latent":           {Op: convert.OpAny, Source: "dlatent_avg"},
		"synthesis.layers.0.noise.weight": {Op: convert.OpAny, Source: "G_synthesis/4x4/Const/Noise/weight"},
		"synthesis.layers.1.conv.weight":  {Op: convert.OpCon, Source: "G_synthesis/4x4/Conv/weight"},
		"synthesis.layers.2.conv.weight":  {Op: convert.OpCon, Source: "G_synthesis/8x8/Conv0_up/weight"},
		"synthesis.layers.3.style.weight": {Op: convert.OpFC, Source: "G_synthesis/8x8/Conv1/StyleMod/weight"},
		"synthesis.noises.3":              {Op: convert.OpAny, Source: "G_synthesis/noise3"},
		"synthesis.to_rgb.weight":         {Op: convert.OpCon, Source: "G_synthesis/ToRGB_lod0/weight"},
	} {
		if diff := cmp.Diff(want, table[name]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestFusedUpsampleLayers(t *testing.T) {
	m := tiny(t, 128).(*Model)
	require.Len(t, m.Synthesis.Layers, 12)

	for i, l := range m.Synthesis.Layers {
		fused := i%2 == 0 && i >= 10
		if got := l.ConvUp != nil; got != fused {
			t.Errorf("layer %d: fused = %v, want %v", i, got, fused)
		}
	}

	want := convert.Entry{Op: convert.OpTco, Source: "G_synthesis/128x128/Conv0_up/weight"}
	if diff := cmp.Diff(want, m.Table()["synthesis.layers.10.conv_up.weight"]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestForward(t *testing.T) {
	for _, resolution := range []uint32{8, 128} {
		m := tiny(t, resolution)

		sd, skipped, err := convert.Convert(sourceArrays(t, m, 1), m.Table())
		require.NoError(t, err)
		require.Empty(t, skipped)
		require.NoError(t, model.Load(m, sd))

		ctx := ml.NewContext(context.Background(), ml.CPU, 1)
		z := []float32{0.5, -1, 0.25, 2}

		out, err := m.Forward(ctx, z)
		require.NoError(t, err)
		require.Equal(t, []int{3, int(resolution), int(resolution)}, out.Shape())

		again, err := m.Forward(ctx, z)
		require.NoError(t, err)
		if diff := cmp.Diff(out.Data(), again.Data()); diff != "" {
			t.Errorf("forward is not deterministic (-first +second):\n%s", diff)
		}

		var nonzero bool
		for _, v := range out.Data() {
			nonzero = nonzero || v != 0
		}
		require.True(t, nonzero, "expected a non-zero image")
	}
}

func TestForwardErrors(t *testing.T) {
	m := tiny(t, 8)

	_, err := m.Forward(ml.NewContext(context.Background(), ml.CPU, 1), []float32{1, 2})
	require.ErrorContains(t, err, "latent has 2 elements, want 4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Forward(ml.NewContext(ctx, ml.CPU, 1), make([]float32, 4))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMissingSource(t *testing.T) {
	m := tiny(t, 8)
	arrays := sourceArrays(t, m, 2)
	delete(arrays, "G_synthesis/noise0")

	sd, skipped, err := convert.Convert(arrays, m.Table())
	require.NoError(t, err)
	require.Equal(t, []convert.Skipped{{Name: "synthesis.noises.0", Source: "G_synthesis/noise0"}}, skipped)

	err = model.Load(m, sd)
	require.ErrorIs(t, err, model.ErrStateDict)
	require.ErrorContains(t, err, "missing: synthesis.noises.0")
}
