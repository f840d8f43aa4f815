package convert

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

type safetensorMetadata struct {
	Type    string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

func parseSafetensors(r io.ReaderAt) (Arrays, error) {
	var n int64
	if err := binary.Read(io.NewSectionReader(r, 0, 8), binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err := io.Copy(b, io.NewSectionReader(r, 8, n)); err != nil {
		return nil, err
	}

	var headers map[string]safetensorMetadata
	if err := json.NewDecoder(b).Decode(&headers); err != nil {
		return nil, err
	}

	arrays := make(Arrays, len(headers))
	for _, key := range slices.Sorted(maps.Keys(headers)) {
		value := headers[key]
		// __metadata__ has no dtype
		if value.Type == "" {
			continue
		}

		if len(value.Offsets) != 2 {
			return nil, fmt.Errorf("%s: invalid data offsets %v", key, value.Offsets)
		}

		offset := safetensorsPad(n, value.Offsets[0])
		length := value.Offsets[1] - value.Offsets[0]

		data, err := readSafetensor(io.NewSectionReader(r, offset, length), value.Type, length)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		if want := size(value.Shape); want != len(data) {
			return nil, fmt.Errorf("%s: shape %v needs %d elements, got %d", key, value.Shape, want, len(data))
		}

		arrays[key] = &Array{Shape: value.Shape, Data: data}
	}

	if len(arrays) == 0 {
		return nil, errors.New("safetensors file has no tensors")
	}

	return arrays, nil
}

// safetensorsPad returns the absolute position of offset given a header of length n
func safetensorsPad(n, offset int64) int64 {
	return 8 + n + offset
}

func readSafetensor(r io.Reader, dtype string, size int64) ([]float32, error) {
	var f32s []float32
	switch dtype {
	case "F32":
		f32s = make([]float32, size/4)
		if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(r, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}

		f32s = make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
	case "BF16":
		u8s := make([]uint8, size)
		if _, err := io.ReadFull(r, u8s); err != nil {
			return nil, err
		}

		f32s = bfloat16.DecodeFloat32(u8s)
	default:
		return nil, fmt.Errorf("unknown data type: %s", dtype)
	}

	return f32s, nil
}
