package format

import (
	"testing"
)

func TestHumanNumber(t *testing.T) {
	type testCase struct {
		input    uint64
		expected string
	}

	testCases := []testCase{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{26_219_000, "26.2M"},
		{125_000_000, "125M"},
		{1_000_000_000, "1.00B"},
		{2_800_000_000_000, "2.80T"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := HumanNumber(tc.input)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestShape(t *testing.T) {
	if got := Shape([]int{512, 512, 3, 3}); got != "512x512x3x3" {
		t.Errorf("Expected 512x512x3x3, got %s", got)
	}

	if got := Shape([]uint64{}); got != "scalar" {
		t.Errorf("Expected scalar, got %s", got)
	}
}
