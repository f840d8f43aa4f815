// Package runner drives a generator over a batch of latent vectors.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/model"
	"github.com/stylegans/stylegans/model/imageproc"
)

type Options struct {
	BatchSize int
	Device    ml.Device

	// Threads bounds the number of samples of a batch computed in
	// parallel. Zero uses every CPU.
	Threads int

	// Progress, if set, is called with the number of finished samples after
	// every batch.
	Progress func(done int)
}

// Generate runs latents, shaped [N, latent size], through m in contiguous
// batches of opts.BatchSize and returns the N quantized images in latent
// order.
func Generate(ctx context.Context, m model.Model, latents *convert.Array, opts Options) (*imageproc.Batch, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", opts.BatchSize)
	}

	c := m.Config()
	if len(latents.Shape) != 2 || latents.Shape[1] != c.LatentSize {
		return nil, fmt.Errorf("%w: latents have shape %v, want [N %d]", convert.ErrShape, latents.Shape, c.LatentSize)
	}

	n, size := latents.Shape[0], latents.Shape[1]
	mctx := ml.NewContext(ctx, ml.SelectDevice(opts.Device), opts.Threads)
	images := imageproc.NewBatch(n, c.Resolution, c.Resolution)

	for i := 0; i < n; i += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		j := min(i+opts.BatchSize, n)
		start := time.Now()
		if err := mctx.ForEach(j-i, func(ctx context.Context, k int) error {
			sctx := mctx
			sctx.Context = ctx

			img, err := m.Forward(sctx, latents.Data[(i+k)*size:][:size])
			if err != nil {
				return err
			}

			return images.Put(i+k, img)
		}); err != nil {
			return nil, fmt.Errorf("samples [%d, %d): %w", i, j, err)
		}

		slog.Debug("batch done", "start", i, "end", j, "elapsed", time.Since(start))
		if opts.Progress != nil {
			opts.Progress(j)
		}
	}

	return images, nil
}
