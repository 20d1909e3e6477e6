package model

import (
	"fmt"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// Encoder is the stacked VIP backbone: patch embedding, a local stage, a
// mixed local/global stage, a global stage, then a final norm, height
// pooling, and a biasless projection. The output is one embedding per
// horizontal position, left to right.
type Encoder struct {
	cfg    Config
	rt     *tensor.Runtime
	patch  *PatchEmbed
	stages []*Stage
	norm   *LayerNorm
	head   *Linear
}

// NewEncoder validates cfg and builds a freshly initialized encoder. The
// runtime is captured once; all forward passes run on it.
func NewEncoder(cfg Config, rt *tensor.Runtime) (*Encoder, error) {
	return newEncoder(cfg, rt, newInitializer(cfg.Seed))
}

func newEncoder(cfg Config, rt *tensor.Runtime, ini *initializer) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		cfg:   cfg,
		rt:    rt,
		patch: newPatchEmbed(ini, cfg.InChannels, cfg.Dims[0]),
	}
	kinds := []stageKind{stageLocal, stageMixed, stageGlobal}
	schedule := cfg.dropPathSchedule()
	for i, kind := range kinds {
		outDim := 0
		last := i == len(kinds)-1
		if !last {
			outDim = cfg.Dims[i+1]
		}
		st, err := newStage(ini, stageSettings{
			kind:       kind,
			dim:        cfg.Dims[i],
			depth:      cfg.Depths[i],
			heads:      cfg.Heads[i],
			mlpRatio:   cfg.MLPRatios[i],
			splitSize:  cfg.SplitSizes[i],
			srRatio:    cfg.SRRatios[i],
			dropPath:   schedule[i],
			downsample: !last,
			outDim:     outDim,
		})
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		e.stages = append(e.stages, st)
	}
	e.norm = newLayerNorm(cfg.Dims[len(cfg.Dims)-1], 1e-6)
	e.head = newLinear(ini, cfg.Dims[len(cfg.Dims)-1], cfg.OutDim, false)
	return e, nil
}

// Config returns the immutable architecture configuration.
func (e *Encoder) Config() Config { return e.cfg }

// OutDim returns the width of the emitted embeddings.
func (e *Encoder) OutDim() int { return e.cfg.OutDim }

// SequenceLength returns the number of embeddings produced for an input of
// the given pixel width.
func (e *Encoder) SequenceLength(width int) int { return width / 4 }

// heightFactor is the total height reduction: 4x from the patch embedding,
// then 2x per merging stage.
func (e *Encoder) heightFactor() int {
	f := 4
	for _, st := range e.stages {
		if st.merge != nil {
			f *= 2
		}
	}
	return f
}

// Forward maps an image batch (B, C, H, W) to embeddings (B, W/4, OutDim).
// Spatial dims must divide the stage reduction factors.
func (e *Encoder) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 4 || x.Dim(1) != e.cfg.InChannels {
		panic(fmt.Sprintf("model: encoder expects (B,%d,H,W), got %v", e.cfg.InChannels, x.Shape))
	}
	if h := x.Dim(2); h%e.heightFactor() != 0 {
		panic(fmt.Sprintf("model: input height %d not divisible by %d", h, e.heightFactor()))
	}
	if w := x.Dim(3); w%4 != 0 {
		panic(fmt.Sprintf("model: input width %d not divisible by 4", w))
	}
	y := e.patch.Forward(e.rt, x)
	for _, st := range e.stages {
		y = st.Forward(e.rt, y)
	}
	y = e.norm.Forward(y)
	y = tensor.MeanHeight(y)
	y = e.head.Forward(e.rt, y)
	hardswishInPlace(y.Data)
	return y
}

// Params lists every learnable buffer with its canonical name. The slices
// alias live storage, so loaders write weights directly into the model.
func (e *Encoder) Params() []Param {
	var p paramSet
	e.collect(&p, "")
	return p.list
}

func (e *Encoder) collect(p *paramSet, prefix string) {
	e.patch.collect(p, prefix+"patch_embed")
	for i, st := range e.stages {
		st.collect(p, fmt.Sprintf("%sstages.%d", prefix, i))
	}
	e.norm.collect(p, prefix+"norm")
	e.head.collect(p, prefix+"head")
}
