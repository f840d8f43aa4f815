package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/format"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/model"
	"github.com/stylegans/stylegans/runner"
)

func GenerateHandler(cmd *cobra.Command, args []string) error {
	latentsPath, err := cmd.Flags().GetString("latents")
	if err != nil {
		return err
	}

	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}

	seed, err := cmd.Flags().GetInt64("seed")
	if err != nil {
		return err
	}

	batchSize, err := cmd.Flags().GetInt("batch_size")
	if err != nil {
		return err
	}

	device, err := cmd.Flags().GetString("device")
	if err != nil {
		return err
	}

	d, err := ml.ParseDevice(device)
	if err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	scale, err := cmd.Flags().GetFloat64("scale")
	if err != nil {
		return err
	}

	m, kv, err := model.Open(args[0])
	if err != nil {
		return err
	}

	slog.Info("loaded checkpoint", "name", kv.Name(), "architecture", kv.Architecture(), "parameters", format.HumanNumber(kv.ParameterCount()))

	var latents *convert.Array
	if latentsPath != "" {
		latents, err = convert.ReadLatents(os.DirFS(filepath.Dir(latentsPath)), filepath.Base(latentsPath))
		if err != nil {
			return err
		}
	} else {
		if count < 1 {
			return fmt.Errorf("count must be at least 1, got %d", count)
		}
		latents = randomLatents(count, m.Config().LatentSize, uint64(seed))
	}

	images, err := generate(cmd.Context(), m, latents, runner.Options{BatchSize: batchSize, Device: d})
	if err != nil {
		return err
	}

	if err := writeGrid(images, output, scale); err != nil {
		return err
	}

	slog.Info("image output", "file", output, "samples", images.N)
	return nil
}

// randomLatents draws n standard normal latent vectors.
func randomLatents(n, size int, seed uint64) *convert.Array {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	data := make([]float32, n*size)
	for i := range data {
		data[i] = float32(norm.Rand())
	}

	return &convert.Array{Shape: []int{n, size}, Data: data}
}
