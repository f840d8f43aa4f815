package convert

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConvert(t *testing.T) {
	arrays := Arrays{
		"G_mapping/Dense0/weight": {Shape: []int{2, 3}, Data: iota32(6)},
		"G_mapping/Dense0/bias":   {Shape: []int{3}, Data: []float32{1, 2, 3}},
		"unused":                  {Shape: []int{1}, Data: []float32{0}},
	}

	table := Table{
		"mapping.blocks.0.weight": {OpFC, "G_mapping/Dense0/weight"},
		"mapping.blocks.0.bias":   {OpAny, "G_mapping/Dense0/bias"},
		"mapping.blocks.1.weight": {OpFC, "G_mapping/Dense1/weight"},
	}

	sd, skipped, err := Convert(arrays, table)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"mapping.blocks.0.bias", "mapping.blocks.0.weight"}, sd.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{3, 2}, sd["mapping.blocks.0.weight"].Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	want := []Skipped{{Name: "mapping.blocks.1.weight", Source: "G_mapping/Dense1/weight"}}
	if diff := cmp.Diff(want, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertError(t *testing.T) {
	arrays := Arrays{"w": {Shape: []int{4}, Data: iota32(4)}}

	_, _, err := Convert(arrays, Table{"x.weight": {OpCon, "w"}})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}

	if got := err.Error(); got != "x.weight <- w: unexpected shape: con needs rank 4, got [4]" {
		t.Errorf("unexpected message %q", got)
	}
}
