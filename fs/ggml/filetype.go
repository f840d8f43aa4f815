package ggml

import (
	"fmt"
	"strings"
)

// FileType is the storage type of the file's multi-dimensional tensors.
// Vectors are always stored as F32.
type FileType uint32

const (
	FileTypeF32 FileType = iota
	FileTypeF16

	FileTypeBF16 FileType = 32

	FileTypeUnknown FileType = 1024
)

func ParseFileType(s string) (FileType, error) {
	switch strings.ToUpper(s) {
	case "F32":
		return FileTypeF32, nil
	case "F16":
		return FileTypeF16, nil
	case "BF16":
		return FileTypeBF16, nil
	default:
		return FileTypeUnknown, fmt.Errorf("unsupported dtype %q, expected f32, f16 or bf16", s)
	}
}

func (t FileType) String() string {
	switch t {
	case FileTypeF32:
		return "F32"
	case FileTypeF16:
		return "F16"
	case FileTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

func (t FileType) Value() uint32 {
	return uint32(t)
}

// TensorType returns the storage type for a tensor of the given rank.
func (t FileType) TensorType(rank int) TensorType {
	if rank < 2 {
		return TensorTypeF32
	}

	switch t {
	case FileTypeF16:
		return TensorTypeF16
	case FileTypeBF16:
		return TensorTypeBF16
	default:
		return TensorTypeF32
	}
}

type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

func (t TensorType) TypeSize() uint64 {
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16, TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}
