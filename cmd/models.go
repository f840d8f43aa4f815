package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stylegans/stylegans/model"
)

func ModelsHandler(cmd *cobra.Command, args []string) error {
	var data [][]string
	for _, name := range model.Settings() {
		s, err := model.Lookup(name)
		if err != nil {
			return err
		}

		data = append(data, []string{s.Name, strconv.Itoa(s.Resolution), s.SrcWeight, s.SrcLatent, s.DstImage, s.DstWeight})
	}

	table := newTable(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "RESOLUTION", "WEIGHTS", "LATENTS", "IMAGE", "CHECKPOINT"})
	table.AppendBulk(data)
	table.Render()
	return nil
}
