package model

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/stylegans/stylegans/fs/ggml"
)

// Save writes the parameters and configuration of m to path as a GGUF file.
func Save(path string, m Model, name string, ft ggml.FileType) error {
	kv := m.Config().KV()
	kv["general.name"] = name
	kv["general.file_type"] = ft

	sd := StateDict(m)
	ts := make([]*ggml.Tensor, 0, len(sd))
	for _, name := range sd.Names() {
		ts = append(ts, ggml.NewTensor(name, sd[name], ft))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ggml.WriteGGUF(f, kv, ts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	slog.Debug("saved checkpoint", "path", path, "tensors", len(ts), "parameters", sd.NumParams(), "file_type", ft)
	return f.Close()
}

// Open reads a checkpoint written by Save and returns the loaded model
// together with the file's metadata.
func Open(path string) (Model, ggml.KV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	g, err := ggml.Decode(f)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}

	kv := g.KV()
	m, err := New(kv)
	if err != nil {
		return nil, nil, err
	}

	sd, err := g.StateDict(f)
	if err != nil {
		return nil, nil, err
	}

	if err := Load(m, sd); err != nil {
		return nil, nil, err
	}

	return m, kv, nil
}
