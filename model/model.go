package model

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/format"
	"github.com/stylegans/stylegans/fs"
	"github.com/stylegans/stylegans/logutil"
	"github.com/stylegans/stylegans/ml"
)

var (
	ErrStateDict      = errors.New("state dict does not match model")
	ErrUnknownVersion = errors.New("unknown generator version")
	ErrUnknownModel   = errors.New("unknown model")
)

// Model implements a generator architecture.
type Model interface {
	// Forward maps one latent vector to an image laid out as [3, H, W] with
	// values nominally in [-1, 1].
	Forward(ml.Context, []float32) (*ml.Tensor, error)

	// Table describes where every parameter comes from in the source
	// weight dictionary.
	Table() convert.Table

	Config() Config
}

// Base implements the common fields and methods for all models
type Base struct {
	config Config
}

func NewBase(c Config) Base {
	return Base{config: c}
}

func (m *Base) Config() Config {
	return m.config
}

var models = make(map[string]func(fs.Config) (Model, error))

// Register registers a model constructor for the given architecture
func Register(name string, f func(fs.Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// Architecture returns the architecture name of a generator version.
func Architecture(version int) (string, error) {
	name := "stylegan" + strconv.Itoa(version)
	if _, ok := models[name]; !ok {
		return "", fmt.Errorf("%w %d", ErrUnknownVersion, version)
	}

	return name, nil
}

// Architectures lists the registered architectures in sorted order.
func Architectures() []string {
	return slices.Sorted(maps.Keys(models))
}

// New constructs an uninitialized model for the architecture named by c.
// Every parameter is allocated with its declared shape.
func New(c fs.Config) (Model, error) {
	arch := c.Architecture()
	f, ok := models[arch]
	if !ok {
		return nil, fmt.Errorf("unsupported model architecture %q", arch)
	}

	return f(c)
}

// StateDict returns the parameters of m keyed by name. The tensors are
// shared with the model.
func StateDict(m Model) ml.StateDict {
	sd := make(ml.StateDict)
	walk(reflect.ValueOf(m), nil, func(tags []Tag, v reflect.Value) {
		sd[tagName(tags)] = v.Interface().(*ml.Tensor)
	})
	return sd
}

// Load replaces the parameters of m with the tensors in sd. Every parameter
// must be present with its declared shape and sd must not hold anything
// else; otherwise m is left unchanged and an error wrapping ErrStateDict
// lists the missing, unexpected and mismatched names.
func Load(m Model, sd ml.StateDict) error {
	type param struct {
		v      reflect.Value
		tensor *ml.Tensor
	}

	var params []param
	var missing, mismatched []string
	used := make(map[string]bool, len(sd))

	walk(reflect.ValueOf(m), nil, func(tags []Tag, v reflect.Value) {
		want := v.Interface().(*ml.Tensor)
		for _, name := range tagNames(tags) {
			t, ok := sd[name]
			if !ok {
				continue
			}

			used[name] = true
			if !slices.Equal(want.Shape(), t.Shape()) {
				mismatched = append(mismatched, fmt.Sprintf("%s: want %s, got %s", name, format.Shape(want.Shape()), format.Shape(t.Shape())))
				return
			}

			logutil.Trace("set parameter", "name", name, "shape", format.Shape(t.Shape()))
			params = append(params, param{v: v, tensor: t})
			return
		}

		missing = append(missing, tagName(tags))
	})

	var unexpected []string
	for _, name := range sd.Names() {
		if !used[name] {
			unexpected = append(unexpected, name)
		}
	}

	if len(missing)+len(unexpected)+len(mismatched) > 0 {
		var b strings.Builder
		for _, s := range []struct {
			label string
			names []string
		}{
			{"missing", missing},
			{"unexpected", unexpected},
			{"size mismatch", mismatched},
		} {
			if len(s.names) > 0 {
				fmt.Fprintf(&b, "; %s: %s", s.label, strings.Join(s.names, ", "))
			}
		}

		return fmt.Errorf("%w%s", ErrStateDict, b.String())
	}

	for _, p := range params {
		p.v.Set(reflect.ValueOf(p.tensor))
	}

	return nil
}

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

// walk calls fn for every non-nil *ml.Tensor reachable from v through
// fields tagged with `gguf`, slices and arrays. Untagged fields are skipped.
func walk(v reflect.Value, tags []Tag, fn func([]Tag, reflect.Value)) {
	if v.Type() == tensorType {
		if !v.IsNil() {
			fn(tags, v)
		}
		return
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			walk(v.Elem(), tags, fn)
		}
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}

			tag := t.Field(i).Tag.Get("gguf")
			if tag == "" || tag == "-" {
				continue
			}

			walk(v.Field(i), append(slices.Clip(tags), ParseTags(tag)), fn)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			walk(v.Index(i), append(slices.Clip(tags), Tag{Name: strconv.Itoa(i)}), fn)
		}
	}
}

func tagName(tags []Tag) string {
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.Name
	}
	return strings.Join(names, ".")
}

// tagNames expands alternate names into every candidate dotted name, primary
// name first.
func tagNames(tags []Tag) []string {
	if len(tags) < 1 {
		return []string{""}
	}

	heads := append([]string{tags[0].Name}, tags[0].Alternate...)
	rest := tagNames(tags[1:])

	var names []string
	for _, head := range heads {
		for _, tail := range rest {
			if tail == "" {
				names = append(names, head)
			} else {
				names = append(names, head+"."+tail)
			}
		}
	}

	return names
}

type Tag struct {
	Name      string
	Alternate []string
}

func ParseTags(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.Name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "alt:"); ok {
				tag.Alternate = append(tag.Alternate, value)
			}
		}
	}

	return
}
