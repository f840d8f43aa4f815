package convert

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/stylegans/stylegans/format"
	"github.com/stylegans/stylegans/ml"
)

// Array is a source array as read from the weight file.
type Array struct {
	Shape []int
	Data  []float32
}

func (a *Array) String() string {
	return fmt.Sprintf("Array(shape=%v)", a.Shape)
}

// Arrays maps source names to arrays.
type Arrays map[string]*Array

// Entry describes how one destination parameter is produced.
type Entry struct {
	Op     Op
	Source string
}

// Table maps destination names to entries.
type Table map[string]Entry

// Skipped records a table entry whose source array was not found.
type Skipped struct {
	Name   string
	Source string
}

func (s Skipped) String() string {
	return fmt.Sprintf("%s <- %s", s.Name, s.Source)
}

// Convert applies table to arrays in sorted destination order. Entries with
// no source array are left out of the result and reported as skipped.
func Convert(arrays Arrays, table Table) (ml.StateDict, []Skipped, error) {
	sd := make(ml.StateDict, len(table))

	var skipped []Skipped
	for _, name := range slices.Sorted(maps.Keys(table)) {
		e := table[name]

		a, ok := arrays[e.Source]
		if !ok {
			slog.Warn("source weight not found, skipping", "name", name, "source", e.Source)
			skipped = append(skipped, Skipped{Name: name, Source: e.Source})
			continue
		}

		t, err := e.Op.Apply(a)
		if err != nil {
			return nil, nil, fmt.Errorf("%s <- %s: %w", name, e.Source, err)
		}

		slog.Debug("converted", "name", name, "source", e.Source, "op", e.Op, "shape", format.Shape(t.Shape()))
		sd[name] = t
	}

	return sd, skipped, nil
}
