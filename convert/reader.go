package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/nlpodyssey/gopickle/types"
)

// ReadArrays reads the raw weight dictionary stored at name. The format is
// chosen by extension: pickle (.pkl, .pickle) or safetensors.
func ReadArrays(fsys fs.FS, name string) (Arrays, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".pkl", ".pickle":
		v, err := parsePickle(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		d, ok := v.(*types.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: expected a dictionary of arrays, got %T", name, v)
		}

		arrays := make(Arrays)
		for _, k := range d.Keys() {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected key %v", name, k)
			}

			a, err := toArray(d.MustGet(k))
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", name, key, err)
			}

			arrays[key] = a
		}

		slog.Debug("read weights", "file", name, "arrays", len(arrays))
		return arrays, nil
	case ".safetensors":
		ra, err := readerAt(f)
		if err != nil {
			return nil, err
		}

		arrays, err := parseSafetensors(ra)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		slog.Debug("read weights", "file", name, "arrays", len(arrays))
		return arrays, nil
	default:
		return nil, fmt.Errorf("%s: unknown weight format %q", name, ext)
	}
}

// ReadLatents reads a batch of latent vectors shaped (N, latent size). A
// pickle holds the array at the top level; a safetensors file holds a
// single tensor.
func ReadLatents(fsys fs.FS, name string) (*Array, error) {
	var a *Array
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".pkl", ".pickle":
		f, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		v, err := parsePickle(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		a, err = toArray(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case ".safetensors":
		arrays, err := ReadArrays(fsys, name)
		if err != nil {
			return nil, err
		}

		if len(arrays) != 1 {
			return nil, fmt.Errorf("%s: expected a single latent tensor, got %d", name, len(arrays))
		}

		for _, v := range arrays {
			a = v
		}
	default:
		return nil, fmt.Errorf("%s: unknown latent format %q", name, ext)
	}

	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("%s: %w: latents must be (N, latent size), got %v", name, ErrShape, a.Shape)
	}

	return a, nil
}

func readerAt(f fs.File) (io.ReaderAt, error) {
	if ra, ok := f.(io.ReaderAt); ok {
		return ra, nil
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
