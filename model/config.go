package model

import (
	"fmt"
	"math/bits"

	"github.com/stylegans/stylegans/fs"
	"github.com/stylegans/stylegans/fs/ggml"
)

// Config holds the hyperparameters shared by both generator versions.
type Config struct {
	Architecture string

	Resolution    int
	LatentSize    int
	MappingLayers int
	MappingLRMul  float32

	// FmapBase and FmapMax determine the channel count per resolution.
	FmapBase int
	FmapMax  int

	TruncationPsi    float32
	TruncationCutoff int
}

// ConfigFrom reads a configuration from c, taking values that are not set
// from defaults.
func ConfigFrom(c fs.Config, defaults Config) Config {
	return Config{
		Architecture:     c.Architecture(),
		Resolution:       int(c.Uint("resolution", uint32(defaults.Resolution))),
		LatentSize:       int(c.Uint("latent_size", uint32(defaults.LatentSize))),
		MappingLayers:    int(c.Uint("mapping_layers", uint32(defaults.MappingLayers))),
		MappingLRMul:     c.Float("mapping_lrmul", defaults.MappingLRMul),
		FmapBase:         int(c.Uint("fmap_base", uint32(defaults.FmapBase))),
		FmapMax:          int(c.Uint("fmap_max", uint32(defaults.FmapMax))),
		TruncationPsi:    c.Float("truncation_psi", defaults.TruncationPsi),
		TruncationCutoff: int(c.Uint("truncation_cutoff", uint32(defaults.TruncationCutoff))),
	}
}

// KV returns the configuration as checkpoint metadata.
func (c Config) KV() ggml.KV {
	prefix := c.Architecture + "."
	return ggml.KV{
		"general.architecture":       c.Architecture,
		prefix + "resolution":        uint32(c.Resolution),
		prefix + "latent_size":       uint32(c.LatentSize),
		prefix + "mapping_layers":    uint32(c.MappingLayers),
		prefix + "mapping_lrmul":     c.MappingLRMul,
		prefix + "fmap_base":         uint32(c.FmapBase),
		prefix + "fmap_max":          uint32(c.FmapMax),
		prefix + "truncation_psi":    c.TruncationPsi,
		prefix + "truncation_cutoff": uint32(c.TruncationCutoff),
	}
}

func (c Config) Validate() error {
	if c.Resolution < 4 || bits.OnesCount(uint(c.Resolution)) != 1 {
		return fmt.Errorf("resolution must be a power of two of at least 4, got %d", c.Resolution)
	}

	if c.LatentSize < 1 || c.MappingLayers < 1 {
		return fmt.Errorf("invalid mapping network %d x %d", c.MappingLayers, c.LatentSize)
	}

	if c.FmapBase < 1 || c.FmapMax < 1 {
		return fmt.Errorf("invalid feature map sizes base %d max %d", c.FmapBase, c.FmapMax)
	}

	return nil
}

// Log2 returns log2 of the output resolution.
func (c Config) Log2() int {
	return bits.Len(uint(c.Resolution)) - 1
}

// NumLayers is the number of per-layer latents the synthesis network takes.
func (c Config) NumLayers() int {
	return 2*c.Log2() - 2
}

// Channels returns the number of feature maps at resolution 2^log2.
func (c Config) Channels(log2 int) int {
	return max(min(c.FmapBase>>(log2-1), c.FmapMax), 1)
}
