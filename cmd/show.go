package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/stylegans/stylegans/format"
	"github.com/stylegans/stylegans/fs/ggml"
)

func ShowHandler(cmd *cobra.Command, args []string) error {
	stats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := ggml.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	kv := g.KV()

	var data [][]string
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		data = append(data, []string{k, fmt.Sprint(kv[k])})
	}

	fmt.Fprintf(out, "Metadata (%s parameters, %s):\n", format.HumanNumber(kv.ParameterCount()), format.HumanBytes(g.Length))
	table := newTable(out)
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintln(out)

	header := []string{"NAME", "TYPE", "SHAPE"}
	if stats {
		header = append(header, "MIN", "MAX", "MEAN")
	}

	data = data[:0]
	for _, t := range g.Tensors().Items() {
		row := []string{t.Name, t.Type(), format.Shape(t.Shape)}
		if stats {
			tt, err := g.ReadTensor(f, t)
			if err != nil {
				return err
			}

			values := make([]float64, tt.Len())
			for i, v := range tt.Data() {
				values[i] = float64(v)
			}

			row = append(row,
				fmt.Sprintf("%.4g", floats.Min(values)),
				fmt.Sprintf("%.4g", floats.Max(values)),
				fmt.Sprintf("%.4g", floats.Sum(values)/float64(len(values))))
		}
		data = append(data, row)
	}

	table = newTable(out)
	table.SetHeader(header)
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
