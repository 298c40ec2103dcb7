package model

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/ZailiWang/sglang/fs"
)

// ErrUnsupportedArchitecture is returned when no declared architecture is registered.
var ErrUnsupportedArchitecture = errors.New("unsupported model architecture")

// Architecture is a model implementation selected by the architecture class
// names listed in a checkpoint's config.json.
type Architecture struct {
	Name string

	// PackedModulesMapping maps a fused layer to the checkpoint layers it is
	// loaded from. Quantization schemes use it to decide whether a fused
	// layer is quantized.
	PackedModulesMapping map[string][]string
}

var architectures = make(map[string]*Architecture)

// Register registers an architecture under each of the given class names
func Register(a *Architecture, names ...string) {
	for _, name := range append([]string{a.Name}, names...) {
		if _, ok := architectures[name]; ok {
			panic("model: architecture already registered")
		}

		architectures[name] = a
	}
}

// New returns the first registered architecture named in c.
func New(c fs.Config) (*Architecture, error) {
	names := c.Strings("architectures")
	for _, name := range names {
		if a, ok := architectures[name]; ok {
			slog.Debug("resolved architecture", "name", name, "implementation", a.Name)
			return a, nil
		}
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: config lists no architectures", ErrUnsupportedArchitecture)
	}

	return nil, fmt.Errorf("%w: %v, supported: %v", ErrUnsupportedArchitecture, names, slices.Sorted(maps.Keys(architectures)))
}
