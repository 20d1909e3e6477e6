package model

import (
	"fmt"
	"math"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// SelfAttention is plain multi-head attention over the full token sequence.
// It is only used in the final stage, where the map is small enough that
// quadratic cost is acceptable.
type SelfAttention struct {
	dim   int
	heads int
	scale float32
	qkv   *Linear
	proj  *Linear
}

func newSelfAttention(ini *initializer, dim, heads int) *SelfAttention {
	if dim%heads != 0 {
		panic(fmt.Sprintf("model: attention dim %d across %d heads", dim, heads))
	}
	return &SelfAttention{
		dim:   dim,
		heads: heads,
		scale: float32(1 / math.Sqrt(float64(dim/heads))),
		qkv:   newLinear(ini, dim, dim*3, true),
		proj:  newLinear(ini, dim, dim, true),
	}
}

// Forward maps (B,N,C) to (B,N,C).
func (a *SelfAttention) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	batch, tokens, c := x.Dim(0), x.Dim(1), x.Dim(2)
	if c != a.dim {
		panic(fmt.Sprintf("model: attention got %d channels, configured for %d", c, a.dim))
	}
	parts := chunkLast(a.qkv.Forward(rt, x), 3)
	qh := splitHeads(parts[0], a.heads)
	kh := splitHeads(parts[1], a.heads)
	vh := splitHeads(parts[2], a.heads)
	tensor.Scale(qh.Data, a.scale)

	headDim := c / a.heads
	groups := batch * a.heads
	out := tensor.New(groups, tokens, headDim)
	rt.Parallel(groups, func(start, end int) {
		scores := make([]float32, tokens*tokens)
		for g := start; g < end; g++ {
			qg := qh.Data[g*tokens*headDim : (g+1)*tokens*headDim]
			kg := kh.Data[g*tokens*headDim : (g+1)*tokens*headDim]
			vg := vh.Data[g*tokens*headDim : (g+1)*tokens*headDim]
			tensor.MatMulTransB(nil, scores, qg, kg, tokens, headDim, tokens)
			tensor.SoftmaxRows(scores, tokens, tokens)
			tensor.MatMul(nil, out.Data[g*tokens*headDim:(g+1)*tokens*headDim], scores, vg, tokens, tokens, headDim)
		}
	})

	return a.proj.Forward(rt, mergeHeads(out, a.heads))
}

func (a *SelfAttention) collect(p *paramSet, prefix string) {
	a.qkv.collect(p, prefix+".qkv")
	a.proj.collect(p, prefix+".proj")
}

// GlobalBlock wraps SelfAttention with the usual pre-norm residual pair.
type GlobalBlock struct {
	norm1    *LayerNorm
	attn     *SelfAttention
	norm2    *LayerNorm
	mlp      *MLP
	dropPath float64
}

func newGlobalBlock(ini *initializer, dim, heads, mlpRatio int, dropPath float64) *GlobalBlock {
	return &GlobalBlock{
		norm1:    newLayerNorm(dim, 1e-5),
		attn:     newSelfAttention(ini, dim, heads),
		norm2:    newLayerNorm(dim, 1e-5),
		mlp:      newMLP(ini, dim, dim*mlpRatio),
		dropPath: dropPath,
	}
}

func (blk *GlobalBlock) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	mixed := blk.attn.Forward(rt, blk.norm1.Forward(x))
	tensor.Add(mixed.Data, x.Data)
	mlpOut := blk.mlp.Forward(rt, blk.norm2.Forward(mixed))
	tensor.Add(mlpOut.Data, mixed.Data)
	return mlpOut
}

func (blk *GlobalBlock) collect(p *paramSet, prefix string) {
	blk.norm1.collect(p, prefix+".norm1")
	blk.attn.collect(p, prefix+".attn")
	blk.norm2.collect(p, prefix+".norm2")
	blk.mlp.collect(p, prefix+".mlp")
}
