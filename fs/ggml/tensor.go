package ggml

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/stylegans/stylegans/ml"
)

// NewTensor describes t for writing under name. Tensors of rank two or more
// are stored with the file type's tensor type; vectors are always F32.
func NewTensor(name string, t *ml.Tensor, ft FileType) *Tensor {
	shape := make([]uint64, t.Rank())
	for i := range shape {
		shape[i] = uint64(t.Dim(i))
	}

	kind := ft.TensorType(t.Rank())
	return &Tensor{
		Name:     name,
		Kind:     uint32(kind),
		Shape:    shape,
		WriterTo: tensorData{kind: kind, data: t.Data()},
	}
}

type tensorData struct {
	kind TensorType
	data []float32
}

func (t tensorData) WriteTo(w io.Writer) (int64, error) {
	var b []byte
	switch t.kind {
	case TensorTypeF32:
		b = make([]byte, 4*len(t.data))
		for i, v := range t.data {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		}
	case TensorTypeF16:
		b = make([]byte, 2*len(t.data))
		for i, v := range t.data {
			binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(v).Bits())
		}
	case TensorTypeBF16:
		b = bfloat16.EncodeFloat32(t.data)
	default:
		return 0, fmt.Errorf("unknown storage type: %d", t.kind)
	}

	n, err := w.Write(b)
	return int64(n), err
}

// ReadTensor reads the data of t from r and widens it to float32.
func (f *GGML) ReadTensor(r io.ReaderAt, t *Tensor) (*ml.Tensor, error) {
	b := make([]byte, t.Size())
	if _, err := io.ReadFull(io.NewSectionReader(r, int64(f.tensorOffset+t.Offset), int64(len(b))), b); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name, err)
	}

	var data []float32
	switch TensorType(t.Kind) {
	case TensorTypeF32:
		data = make([]float32, len(b)/4)
		for i := range data {
			data[i] = math.Float32frombits(f.ByteOrder.Uint32(b[4*i:]))
		}
	case TensorTypeF16:
		data = make([]float32, len(b)/2)
		for i := range data {
			data[i] = float16.Frombits(f.ByteOrder.Uint16(b[2*i:])).Float32()
		}
	case TensorTypeBF16:
		data = bfloat16.DecodeFloat32(b)
	default:
		return nil, fmt.Errorf("%s: unknown storage type: %d", t.Name, t.Kind)
	}

	shape := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = int(d)
	}

	return ml.New(data, shape...), nil
}

// StateDict reads every tensor in the file.
func (f *GGML) StateDict(r io.ReaderAt) (ml.StateDict, error) {
	sd := make(ml.StateDict, len(f.tensors))
	for _, t := range f.tensors {
		tt, err := f.ReadTensor(r, t)
		if err != nil {
			return nil, err
		}
		sd[t.Name] = tt
	}

	return sd, nil
}
