package model

import (
	"fmt"
	"sort"

	"github.com/halcyonreed/viptr/internal/vocab"
)

// TinyRecognizerConfig is the compact recognition preset. Weights trained for
// one preset are not interchangeable with the other.
func TinyRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		Encoder:    TinyConfig(),
		Vocab:      vocab.French,
		MaxLength:  32,
		Mean:       [3]float32{0.694, 0.695, 0.693},
		Std:        [3]float32{0.299, 0.296, 0.301},
		InputShape: [3]int{3, 32, 128},
	}
}

// BaseRecognizerConfig is the larger recognition preset.
func BaseRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		Encoder:    BaseConfig(),
		Vocab:      vocab.French,
		MaxLength:  32,
		Mean:       [3]float32{0.694, 0.695, 0.693},
		Std:        [3]float32{0.299, 0.296, 0.301},
		InputShape: [3]int{3, 32, 128},
	}
}

var variants = map[string]func() RecognizerConfig{
	"viptr-tiny": TinyRecognizerConfig,
	"viptr-base": BaseRecognizerConfig,
}

// VariantNames lists the built-in presets in stable order.
func VariantNames() []string {
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// VariantConfig returns a fresh copy of a named preset.
func VariantConfig(name string) (RecognizerConfig, error) {
	fn, ok := variants[name]
	if !ok {
		return RecognizerConfig{}, fmt.Errorf("model: unknown variant %q (have %v)", name, VariantNames())
	}
	return fn(), nil
}
