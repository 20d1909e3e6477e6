package model

import (
	"fmt"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// PatchMerging halves the height of a channel-last feature map while keeping
// its width, stepping the channel count between stages. The anisotropic
// stride suits wide, short text crops.
type PatchMerging struct {
	conv *Conv2d
	norm *LayerNorm
}

func newPatchMerging(ini *initializer, dim, outDim int) *PatchMerging {
	return &PatchMerging{
		conv: newConv2d(ini, convSpec{
			in: dim, out: outDim,
			kernel: [2]int{3, 3}, stride: [2]int{2, 1}, pad: [2]int{1, 1},
			bias: true,
		}),
		norm: newLayerNorm(outDim, 1e-5),
	}
}

// Forward maps (B,H,W,C) to (B,ceil(H/2),W,outDim).
func (pm *PatchMerging) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	y := tensor.NCHWToNHWC(pm.conv.Forward(rt, tensor.NHWCToNCHW(x)))
	return pm.norm.Forward(y)
}

func (pm *PatchMerging) collect(p *paramSet, prefix string) {
	pm.conv.collect(p, prefix+".reduction")
	pm.norm.collect(p, prefix+".norm")
}

// mixProj fuses the re-concatenated local and global halves of a mixed stage:
// depthwise 3x3, pointwise squeeze to an inner width, pointwise expand, each
// step activated and batch-normalized, applied residually in channel-first
// layout.
type mixProj struct {
	dw         *Conv2d
	dwNorm     *BatchNorm2d
	reduce     *Conv2d
	reduceNorm *BatchNorm2d
	expand     *Conv2d
	expandNorm *BatchNorm2d
}

func newMixProj(ini *initializer, dim int) *mixProj {
	inner := dim / 8
	if inner < 16 {
		inner = 16
	}
	return &mixProj{
		dw: newConv2d(ini, convSpec{
			in: dim, out: dim,
			kernel: [2]int{3, 3}, pad: [2]int{1, 1},
			groups: dim, bias: true,
		}),
		dwNorm:     newBatchNorm2d(dim),
		reduce:     newConv2d(ini, convSpec{in: dim, out: inner, kernel: [2]int{1, 1}, bias: true}),
		reduceNorm: newBatchNorm2d(inner),
		expand:     newConv2d(ini, convSpec{in: inner, out: dim, kernel: [2]int{1, 1}, bias: true}),
		expandNorm: newBatchNorm2d(dim),
	}
}

func (mp *mixProj) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	y := mp.dw.Forward(rt, x)
	geluInPlace(y.Data)
	mp.dwNorm.Forward(y)
	y = mp.reduce.Forward(rt, y)
	geluInPlace(y.Data)
	mp.reduceNorm.Forward(y)
	y = mp.expand.Forward(rt, y)
	mp.expandNorm.Forward(y)
	return y
}

func (mp *mixProj) collect(p *paramSet, prefix string) {
	mp.dw.collect(p, prefix+".dw")
	mp.dwNorm.collect(p, prefix+".dw_norm")
	mp.reduce.collect(p, prefix+".reduce")
	mp.reduceNorm.collect(p, prefix+".reduce_norm")
	mp.expand.collect(p, prefix+".expand")
	mp.expandNorm.collect(p, prefix+".expand_norm")
}

// stageKind enumerates the closed set of stage variants.
type stageKind int

const (
	stageLocal stageKind = iota
	stageMixed
	stageGlobal
)

// Stage is one encoder level: a stack of mixing blocks of a single variant,
// optionally followed by a height-halving patch merge.
type Stage struct {
	kind   stageKind
	local  []*CrossWindowBlock
	global []*GlobalBlock
	osra   []*OSRABlock
	proj   *mixProj
	merge  *PatchMerging
}

type stageSettings struct {
	kind       stageKind
	dim        int
	depth      int
	heads      int
	mlpRatio   int
	splitSize  int
	srRatio    int
	dropPath   []float64
	downsample bool
	outDim     int
}

func newStage(ini *initializer, s stageSettings) (*Stage, error) {
	if s.downsample && s.outDim < 1 {
		return nil, fmt.Errorf("model: downsampling stage needs an output dimension")
	}
	if len(s.dropPath) != s.depth {
		return nil, fmt.Errorf("model: %d drop-path rates for depth %d", len(s.dropPath), s.depth)
	}
	st := &Stage{kind: s.kind}
	switch s.kind {
	case stageLocal:
		for i := 0; i < s.depth; i++ {
			st.local = append(st.local, newCrossWindowBlock(ini, s.dim, s.heads, s.mlpRatio, s.splitSize, s.dropPath[i]))
		}
	case stageMixed:
		for i := 0; i < s.depth; i++ {
			st.local = append(st.local, newCrossWindowBlock(ini, s.dim/2, s.heads, s.mlpRatio, s.splitSize, s.dropPath[i]))
			st.osra = append(st.osra, newOSRABlock(ini, s.dim/2, s.heads/2, s.mlpRatio, s.srRatio, s.dropPath[i]))
		}
		st.proj = newMixProj(ini, s.dim)
	case stageGlobal:
		for i := 0; i < s.depth; i++ {
			st.global = append(st.global, newGlobalBlock(ini, s.dim, s.heads, s.mlpRatio, s.dropPath[i]))
		}
	default:
		return nil, fmt.Errorf("model: unknown stage kind %d", s.kind)
	}
	if s.downsample {
		st.merge = newPatchMerging(ini, s.dim, s.outDim)
	}
	return st, nil
}

// Forward maps a channel-last feature map through the stage. Height shrinks
// only when the stage ends in a patch merge.
func (s *Stage) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	tokens := x.Reshape(b, h*w, c)
	switch s.kind {
	case stageLocal:
		for _, blk := range s.local {
			tokens = blk.Forward(rt, tokens, h, w)
		}
	case stageGlobal:
		for _, blk := range s.global {
			tokens = blk.Forward(rt, tokens)
		}
	case stageMixed:
		for i := range s.local {
			halves := chunkLast(tokens, 2)
			x1 := s.local[i].Forward(rt, halves[0], h, w)
			x2 := s.osra[i].Forward(rt, halves[1], h, w)
			spatial := tensor.NHWCToNCHW(concatLast(x1, x2).Reshape(b, h, w, c))
			proj := s.proj.Forward(rt, spatial)
			tensor.Add(proj.Data, spatial.Data)
			tokens = tensor.NCHWToNHWC(proj).Reshape(b, h*w, c)
		}
	}
	out := tokens.Reshape(b, h, w, c)
	if s.merge != nil {
		out = s.merge.Forward(rt, out)
	}
	return out
}

func (s *Stage) collect(p *paramSet, prefix string) {
	switch s.kind {
	case stageLocal:
		for i, blk := range s.local {
			blk.collect(p, fmt.Sprintf("%s.blocks.%d", prefix, i))
		}
	case stageGlobal:
		for i, blk := range s.global {
			blk.collect(p, fmt.Sprintf("%s.blocks.%d", prefix, i))
		}
	case stageMixed:
		for i, blk := range s.local {
			blk.collect(p, fmt.Sprintf("%s.local.%d", prefix, i))
		}
		for i, blk := range s.osra {
			blk.collect(p, fmt.Sprintf("%s.global.%d", prefix, i))
		}
		s.proj.collect(p, prefix+".proj")
	}
	if s.merge != nil {
		s.merge.collect(p, prefix+".downsample")
	}
}
