package stylegan2

import (
	"fmt"

	"github.com/stylegans/stylegans/convert"
)

func layerSource(i int) string {
	res := 1 << layerLog2(i)
	switch {
	case i == 0:
		return "G_synthesis/4x4/Conv"
	case i%2 == 1:
		return fmt.Sprintf("G_synthesis/%dx%d/Conv0_up", res, res)
	default:
		return fmt.Sprintf("G_synthesis/%dx%d/Conv1", res, res)
	}
}

// modulated adds the entries of a modulated convolution whose weight is
// converted with op.
func modulated(t convert.Table, dst, src string, op convert.Op) {
	t[dst+".weight"] = convert.Entry{Op: op, Source: src + "/weight"}
	t[dst+".modulation.weight"] = convert.Entry{Op: convert.OpFC, Source: src + "/mod_weight"}
	t[dst+".modulation.bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/mod_bias"}
}

func (m *Model) Table() convert.Table {
	t := convert.Table{
		"truncation.avg_latent": {Op: convert.OpAny, Source: "dlatent_avg"},
		"synthesis.const":       {Op: convert.OpAny, Source: "G_synthesis/4x4/Const/const"},
	}

	for i := range m.Mapping.Blocks {
		dst, src := fmt.Sprintf("mapping.blocks.%d", i), fmt.Sprintf("G_mapping/Dense%d", i)
		t[dst+".weight"] = convert.Entry{Op: convert.OpFC, Source: src + "/weight"}
		t[dst+".bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/bias"}
	}

	for i, l := range m.Synthesis.Layers {
		dst, src := fmt.Sprintf("synthesis.layers.%d", i), layerSource(i)
		if l.ConvUp != nil {
			modulated(t, dst+".conv_up", src, convert.OpMTc)
		} else {
			modulated(t, dst+".conv", src, convert.OpCon)
		}

		t[dst+".noise.weight"] = convert.Entry{Op: convert.OpUns, Source: src + "/noise_strength"}
		t[dst+".bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/bias"}
		t[fmt.Sprintf("synthesis.noises.%d", i)] = convert.Entry{Op: convert.OpAny, Source: fmt.Sprintf("G_synthesis/noise%d", i)}
	}

	for i := range m.Synthesis.ToRGB {
		res := 4 << i
		dst, src := fmt.Sprintf("synthesis.to_rgb.%d", i), fmt.Sprintf("G_synthesis/%dx%d/ToRGB", res, res)
		modulated(t, dst+".conv", src, convert.OpCon)
		t[dst+".bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/bias"}
	}

	return t
}
