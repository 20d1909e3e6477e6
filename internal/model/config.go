// Package model implements the VIP text-recognition encoder and its CTC head.
// The encoder stacks a patch embedding and three mixing stages (cross-shaped
// window attention, a hybrid local/global stage, full self-attention) and
// emits one embedding per horizontal position of the input image. The
// recognition model projects those embeddings to vocabulary logits and decodes
// them with best-path CTC.
package model

import "fmt"

// Config fixes the encoder architecture. All slices are indexed by stage; the
// stage kinds themselves are positional (local, mixed, global). Values are
// immutable once the encoder is built.
type Config struct {
	InChannels int   `yaml:"in_channels" json:"in_channels"`
	OutDim     int   `yaml:"out_dim" json:"out_dim"`
	Dims       []int `yaml:"dims" json:"dims"`
	Depths     []int `yaml:"depths" json:"depths"`
	Heads      []int `yaml:"heads" json:"heads"`
	MLPRatios  []int `yaml:"mlp_ratios" json:"mlp_ratios"`
	SplitSizes []int `yaml:"split_sizes" json:"split_sizes"`
	SRRatios   []int `yaml:"sr_ratios" json:"sr_ratios"`

	// DropPathMax is the final value of the linear stochastic-depth schedule.
	// DropoutRate applies to the projection head. Both are carried for
	// completeness; inference forward passes are deterministic.
	DropPathMax float64 `yaml:"drop_path_max" json:"drop_path_max"`
	DropoutRate float64 `yaml:"dropout_rate" json:"dropout_rate"`

	// Seed drives weight initialization so freshly built models are
	// reproducible. Zero selects a fixed default.
	Seed uint64 `yaml:"seed" json:"seed"`
}

// TinyConfig is the small encoder variant (192-dim output embeddings).
func TinyConfig() Config {
	return Config{
		InChannels:  3,
		OutDim:      192,
		Dims:        []int{64, 128, 256},
		Depths:      []int{3, 3, 3},
		Heads:       []int{2, 4, 8},
		MLPRatios:   []int{3, 4, 4},
		SplitSizes:  []int{1, 2, 4},
		SRRatios:    []int{4, 2, 2},
		DropPathMax: 0.1,
		DropoutRate: 0.1,
	}
}

// BaseConfig is the large encoder variant (256-dim output embeddings).
func BaseConfig() Config {
	return Config{
		InChannels:  3,
		OutDim:      256,
		Dims:        []int{128, 256, 384},
		Depths:      []int{3, 6, 9},
		Heads:       []int{4, 8, 12},
		MLPRatios:   []int{4, 4, 4},
		SplitSizes:  []int{1, 2, 4},
		SRRatios:    []int{4, 2, 2},
		DropPathMax: 0.1,
		DropoutRate: 0.1,
	}
}

// Validate checks the cross-field constraints that the stage constructors
// rely on. It must pass before any tensors are allocated.
func (c Config) Validate() error {
	if c.InChannels < 1 {
		return fmt.Errorf("config: in_channels %d", c.InChannels)
	}
	if c.OutDim < 1 {
		return fmt.Errorf("config: out_dim %d", c.OutDim)
	}
	n := len(c.Dims)
	if n != 3 {
		return fmt.Errorf("config: the encoder is a 3-stage architecture, got %d dims", n)
	}
	for name, s := range map[string][]int{
		"depths":      c.Depths,
		"heads":       c.Heads,
		"mlp_ratios":  c.MLPRatios,
		"split_sizes": c.SplitSizes,
		"sr_ratios":   c.SRRatios,
	} {
		if len(s) != n {
			return fmt.Errorf("config: %s has %d entries for %d stages", name, len(s), n)
		}
	}
	for i := 0; i < n; i++ {
		if c.Dims[i] < 1 {
			return fmt.Errorf("config: stage %d dim %d", i, c.Dims[i])
		}
		if c.Depths[i] < 1 {
			return fmt.Errorf("config: stage %d depth %d", i, c.Depths[i])
		}
		if c.Heads[i] < 1 || c.Dims[i]%c.Heads[i] != 0 {
			return fmt.Errorf("config: stage %d dim %d not divisible by %d heads", i, c.Dims[i], c.Heads[i])
		}
		if c.MLPRatios[i] < 1 {
			return fmt.Errorf("config: stage %d mlp ratio %d", i, c.MLPRatios[i])
		}
		if c.SplitSizes[i] < 1 {
			return fmt.Errorf("config: stage %d split size %d", i, c.SplitSizes[i])
		}
		if c.SRRatios[i] < 1 {
			return fmt.Errorf("config: stage %d sr ratio %d", i, c.SRRatios[i])
		}
	}
	// The local and mixed stages split channels and heads in half.
	for _, i := range []int{0, 1} {
		if c.Dims[i]%2 != 0 {
			return fmt.Errorf("config: stage %d dim %d must be even for the channel split", i, c.Dims[i])
		}
		if c.Heads[i]%2 != 0 {
			return fmt.Errorf("config: stage %d head count %d must be even for the strip pair", i, c.Heads[i])
		}
	}
	// The mixed stage runs cross-shaped window attention on one channel half,
	// which splits that half into a strip pair of its own.
	if c.Dims[1]%4 != 0 {
		return fmt.Errorf("config: stage 1 dim %d must be divisible by 4 for the mixed split", c.Dims[1])
	}
	if (c.Dims[1]/4)%(c.Heads[1]/2) != 0 {
		return fmt.Errorf("config: stage 1 strip channels %d not divisible by %d heads", c.Dims[1]/4, c.Heads[1]/2)
	}
	return nil
}

// dropPathSchedule spreads the stochastic-depth rate linearly over all blocks,
// returning one slice per stage.
func (c Config) dropPathSchedule() [][]float64 {
	total := 0
	for _, d := range c.Depths {
		total += d
	}
	rates := make([]float64, total)
	if total > 1 {
		for i := range rates {
			rates[i] = c.DropPathMax * float64(i) / float64(total-1)
		}
	}
	out := make([][]float64, len(c.Depths))
	off := 0
	for i, d := range c.Depths {
		out[i] = rates[off : off+d]
		off += d
	}
	return out
}
