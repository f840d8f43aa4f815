package ggml

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

const (
	ggufTypeUint8 uint32 = iota
	ggufTypeInt8
	ggufTypeUint16
	ggufTypeInt16
	ggufTypeUint32
	ggufTypeInt32
	ggufTypeFloat32
	ggufTypeBool
	ggufTypeString
	ggufTypeArray
	ggufTypeUint64
	ggufTypeInt64
	ggufTypeFloat64
)

type containerGGUF struct {
	ByteOrder binary.ByteOrder
	Version   uint32

	NumTensor uint64
	NumKV     uint64
}

func (c *containerGGUF) Decode(rs io.ReadSeeker) (*gguf, error) {
	if err := binary.Read(rs, c.ByteOrder, &c.Version); err != nil {
		return nil, err
	}

	if c.Version < 2 {
		return nil, fmt.Errorf("unsupported gguf version %d", c.Version)
	}

	if err := binary.Read(rs, c.ByteOrder, &c.NumTensor); err != nil {
		return nil, err
	}

	if err := binary.Read(rs, c.ByteOrder, &c.NumKV); err != nil {
		return nil, err
	}

	model := newGGUF(c)
	if err := model.Decode(rs); err != nil {
		return nil, err
	}

	return model, nil
}

type gguf struct {
	*containerGGUF

	kv      KV
	tensors []*Tensor

	parameters   uint64
	tensorOffset uint64

	scratch [16 << 10]byte
}

func newGGUF(container *containerGGUF) *gguf {
	return &gguf{
		containerGGUF: container,
		kv:            make(KV),
	}
}

func (llm *gguf) KV() KV {
	return llm.kv
}

func (llm *gguf) Tensors() Tensors {
	return Tensors{
		items:  llm.tensors,
		Offset: llm.tensorOffset,
	}
}

func (llm *gguf) Decode(rs io.ReadSeeker) error {
	for range llm.NumKV {
		k, err := readGGUFString(llm, rs)
		if err != nil {
			return err
		}

		t, err := readGGUF[uint32](llm, rs)
		if err != nil {
			return err
		}

		var v any
		switch t {
		case ggufTypeUint8:
			v, err = readGGUF[uint8](llm, rs)
		case ggufTypeInt8:
			v, err = readGGUF[int8](llm, rs)
		case ggufTypeUint16:
			v, err = readGGUF[uint16](llm, rs)
		case ggufTypeInt16:
			v, err = readGGUF[int16](llm, rs)
		case ggufTypeUint32:
			v, err = readGGUF[uint32](llm, rs)
		case ggufTypeInt32:
			v, err = readGGUF[int32](llm, rs)
		case ggufTypeUint64:
			v, err = readGGUF[uint64](llm, rs)
		case ggufTypeInt64:
			v, err = readGGUF[int64](llm, rs)
		case ggufTypeFloat32:
			v, err = readGGUF[float32](llm, rs)
		case ggufTypeFloat64:
			v, err = readGGUF[float64](llm, rs)
		case ggufTypeBool:
			v, err = readGGUF[bool](llm, rs)
		case ggufTypeString:
			v, err = readGGUFString(llm, rs)
		case ggufTypeArray:
			v, err = readGGUFArray(llm, rs)
		default:
			return fmt.Errorf("invalid type: %d", t)
		}

		if err != nil {
			return err
		}
		llm.kv[k] = v
	}

	if err := llm.decodeTensors(rs); err != nil {
		return err
	}

	llm.kv["general.parameter_count"] = llm.parameters

	alignment := llm.kv.Uint("general.alignment", 32)

	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	llm.tensorOffset = uint64(offset + ggufPadding(offset, int64(alignment)))
	return nil
}

func (llm *gguf) decodeTensors(rs io.ReadSeeker) error {
	for range llm.NumTensor {
		name, err := readGGUFString(llm, rs)
		if err != nil {
			return fmt.Errorf("failed to read tensor name: %w", err)
		}

		dims, err := readGGUF[uint32](llm, rs)
		if err != nil {
			return fmt.Errorf("failed to read tensor dimensions: %w", err)
		}

		shape := make([]uint64, dims)
		for i := range shape {
			shape[i], err = readGGUF[uint64](llm, rs)
			if err != nil {
				return fmt.Errorf("failed to read tensor shape: %w", err)
			}
		}

		// dimensions are stored innermost first
		slices.Reverse(shape)

		kind, err := readGGUF[uint32](llm, rs)
		if err != nil {
			return fmt.Errorf("failed to read tensor kind: %w", err)
		}

		if TensorType(kind).TypeSize() == 0 {
			return fmt.Errorf("%s: unsupported tensor type %d", name, kind)
		}

		offset, err := readGGUF[uint64](llm, rs)
		if err != nil {
			return fmt.Errorf("failed to read tensor offset: %w", err)
		}

		tensor := Tensor{
			Name:   name,
			Kind:   kind,
			Offset: offset,
			Shape:  shape,
		}

		llm.tensors = append(llm.tensors, &tensor)
		llm.parameters += tensor.Elements()
	}

	return nil
}

func readGGUF[T any](llm *gguf, r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, llm.ByteOrder, &t)
	return t, err
}

func readGGUFString(llm *gguf, r io.Reader) (string, error) {
	buf := llm.scratch[:8]
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	length := int(llm.ByteOrder.Uint64(buf))
	if length > len(llm.scratch) {
		buf = make([]byte, length)
	} else {
		buf = llm.scratch[:length]
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readGGUFArray(llm *gguf, r io.Reader) (any, error) {
	t, err := readGGUF[uint32](llm, r)
	if err != nil {
		return nil, err
	}

	n, err := readGGUF[uint64](llm, r)
	if err != nil {
		return nil, err
	}

	switch t {
	case ggufTypeUint8:
		return readGGUFArrayData[uint8](llm, r, n)
	case ggufTypeInt8:
		return readGGUFArrayData[int8](llm, r, n)
	case ggufTypeUint16:
		return readGGUFArrayData[uint16](llm, r, n)
	case ggufTypeInt16:
		return readGGUFArrayData[int16](llm, r, n)
	case ggufTypeUint32:
		return readGGUFArrayData[uint32](llm, r, n)
	case ggufTypeInt32:
		return readGGUFArrayData[int32](llm, r, n)
	case ggufTypeUint64:
		return readGGUFArrayData[uint64](llm, r, n)
	case ggufTypeInt64:
		return readGGUFArrayData[int64](llm, r, n)
	case ggufTypeFloat32:
		return readGGUFArrayData[float32](llm, r, n)
	case ggufTypeFloat64:
		return readGGUFArrayData[float64](llm, r, n)
	case ggufTypeBool:
		return readGGUFArrayData[bool](llm, r, n)
	case ggufTypeString:
		s := make([]string, n)
		for i := range s {
			if s[i], err = readGGUFString(llm, r); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid array type: %d", t)
	}
}

func readGGUFArrayData[T any](llm *gguf, r io.Reader, n uint64) ([]T, error) {
	s := make([]T, n)
	if err := binary.Read(r, llm.ByteOrder, s); err != nil {
		return nil, err
	}
	return s, nil
}

func ggufPadding(offset, align int64) int64 {
	return (align - offset%align) % align
}
