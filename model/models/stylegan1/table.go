package stylegan1

import (
	"fmt"

	"github.com/stylegans/stylegans/convert"
)

// layerSource returns the variable scope of synthesis layer i.
func layerSource(i int) string {
	res := 1 << (i/2 + 2)
	switch {
	case i == 0:
		return "G_synthesis/4x4/Const"
	case i == 1:
		return "G_synthesis/4x4/Conv"
	case i%2 == 0:
		return fmt.Sprintf("G_synthesis/%dx%d/Conv0_up", res, res)
	default:
		return fmt.Sprintf("G_synthesis/%dx%d/Conv1", res, res)
	}
}

func (m *Model) Table() convert.Table {
	t := convert.Table{
		"truncation.avg_latent":   {Op: convert.OpAny, Source: "dlatent_avg"},
		"synthesis.const":         {Op: convert.OpAny, Source: "G_synthesis/4x4/Const/const"},
		"synthesis.to_rgb.weight": {Op: convert.OpCon, Source: "G_synthesis/ToRGB_lod0/weight"},
		"synthesis.to_rgb.bias":   {Op: convert.OpAny, Source: "G_synthesis/ToRGB_lod0/bias"},
	}

	for i := range m.Mapping.Blocks {
		dst, src := fmt.Sprintf("mapping.blocks.%d", i), fmt.Sprintf("G_mapping/Dense%d", i)
		t[dst+".weight"] = convert.Entry{Op: convert.OpFC, Source: src + "/weight"}
		t[dst+".bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/bias"}
	}

	for i, l := range m.Synthesis.Layers {
		dst, src := fmt.Sprintf("synthesis.layers.%d", i), layerSource(i)
		switch {
		case l.ConvUp != nil:
			t[dst+".conv_up.weight"] = convert.Entry{Op: convert.OpTco, Source: src + "/weight"}
		case l.Conv != nil:
			t[dst+".conv.weight"] = convert.Entry{Op: convert.OpCon, Source: src + "/weight"}
		}

		t[dst+".noise.weight"] = convert.Entry{Op: convert.OpAny, Source: src + "/Noise/weight"}
		t[dst+".bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/bias"}
		t[dst+".style.weight"] = convert.Entry{Op: convert.OpFC, Source: src + "/StyleMod/weight"}
		t[dst+".style.bias"] = convert.Entry{Op: convert.OpAny, Source: src + "/StyleMod/bias"}
		t[fmt.Sprintf("synthesis.noises.%d", i)] = convert.Entry{Op: convert.OpAny, Source: fmt.Sprintf("G_synthesis/noise%d", i)}
	}

	return t
}
