package model

import (
	"fmt"
	"maps"
	"slices"
)

// Setting names the files read and written for one pretrained model.
type Setting struct {
	Name       string
	Resolution int

	SrcWeight string
	SrcLatent string
	DstImage  string
	DstWeight string
}

var settings = map[string]Setting{
	"face_v1_1":   newSetting("face_v1_1", "anime_face_v1_1"),
	"face_v1_2":   newSetting("face_v1_2", "anime_face_v1_2"),
	"portrait_v1": newSetting("portrait_v1", "anime_portrait_v1"),
	"portrait_v2": newSetting("portrait_v2", "anime_portrait_v2"),
}

func newSetting(name, stem string) Setting {
	return Setting{
		Name:       name,
		Resolution: 512,
		SrcWeight:  stem + "_ndarray.pkl",
		SrcLatent:  stem + "_latents.pkl",
		DstImage:   stem + "_pt.png",
		DstWeight:  stem + "_state_dict.gguf",
	}
}

// Lookup returns the setting registered under name.
func Lookup(name string) (Setting, error) {
	s, ok := settings[name]
	if !ok {
		return Setting{}, fmt.Errorf("%w %q, expected one of %v", ErrUnknownModel, name, Settings())
	}

	return s, nil
}

// Settings lists the registered model names in sorted order.
func Settings() []string {
	return slices.Sorted(maps.Keys(settings))
}
