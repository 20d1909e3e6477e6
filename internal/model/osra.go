package model

import (
	"fmt"
	"math"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// OSRAttention computes global attention with overlapping shifted reduction:
// queries stay at full resolution while keys and values come from a
// depthwise-downsampled copy of the map, locally enhanced by a residual 3x3
// depthwise convolution. An optional relative position table biases the
// logits; when its shape disagrees with the live attention map it is
// resampled under the configured interpolation policy.
type OSRAttention struct {
	dim     int
	heads   int
	srRatio int
	scale   float32
	q       *Conv2d
	sr1     *ConvBN
	sr2     *ConvBN
	local   *Conv2d
	kv      *Conv2d
	relPos  *tensor.Tensor
	interp  tensor.Interp
}

func newOSRAttention(ini *initializer, dim, heads, srRatio int) *OSRAttention {
	if dim%heads != 0 {
		panic(fmt.Sprintf("model: osra dim %d across %d heads", dim, heads))
	}
	a := &OSRAttention{
		dim:     dim,
		heads:   heads,
		srRatio: srRatio,
		scale:   float32(1 / math.Sqrt(float64(dim/heads))),
		q:       newConv2d(ini, convSpec{in: dim, out: dim, kernel: [2]int{1, 1}, bias: true}),
		local: newConv2d(ini, convSpec{
			in: dim, out: dim,
			kernel: [2]int{3, 3}, pad: [2]int{1, 1},
			groups: dim, bias: true,
		}),
		kv:     newConv2d(ini, convSpec{in: dim, out: dim * 2, kernel: [2]int{1, 1}, bias: true}),
		interp: tensor.Interp{Mode: tensor.Bicubic},
	}
	if srRatio > 1 {
		k := srRatio + 3
		a.sr1 = newConvBN(ini, convSpec{
			in: dim, out: dim,
			kernel: [2]int{k, k}, stride: [2]int{srRatio, srRatio}, pad: [2]int{k / 2, k / 2},
			groups: dim,
		})
		a.sr2 = newConvBN(ini, convSpec{in: dim, out: dim, kernel: [2]int{1, 1}, groups: dim})
	}
	return a
}

// SetRelativeBias installs a (heads, queryTokens, keyTokens) logit bias.
// Passing nil removes it.
func (a *OSRAttention) SetRelativeBias(bias *tensor.Tensor) {
	if bias != nil && (bias.Rank() != 3 || bias.Dim(0) != a.heads) {
		panic(fmt.Sprintf("model: relative bias shape %v for %d heads", bias.Shape, a.heads))
	}
	a.relPos = bias
}

// Forward maps (B, H*W, C) to (B, H*W, C).
func (a *OSRAttention) Forward(rt *tensor.Runtime, x *tensor.Tensor, height, width int) *tensor.Tensor {
	batch, tokens, c := x.Dim(0), x.Dim(1), x.Dim(2)
	if tokens != height*width {
		panic(fmt.Sprintf("model: osra got %d tokens for a %dx%d map", tokens, height, width))
	}
	if c != a.dim {
		panic(fmt.Sprintf("model: osra got %d channels, configured for %d", c, a.dim))
	}
	spatial := tensor.NHWCToNCHW(x.Reshape(batch, height, width, c))
	q := tensor.NCHWToNHWC(a.q.Forward(rt, spatial)).Reshape(batch, tokens, c)

	kvMap := spatial
	if a.sr1 != nil {
		kvMap = a.sr1.Forward(rt, kvMap)
		geluInPlace(kvMap.Data)
		kvMap = a.sr2.Forward(rt, kvMap)
	}
	enhanced := a.local.Forward(rt, kvMap)
	tensor.Add(enhanced.Data, kvMap.Data)
	kvPair := chunkChannelsNCHW(a.kv.Forward(rt, enhanced), 2)
	reduced := kvPair[0].Dim(2) * kvPair[0].Dim(3)
	kTok := tensor.NCHWToNHWC(kvPair[0]).Reshape(batch, reduced, c)
	vTok := tensor.NCHWToNHWC(kvPair[1]).Reshape(batch, reduced, c)

	qh := splitHeads(q, a.heads)
	kh := splitHeads(kTok, a.heads)
	vh := splitHeads(vTok, a.heads)

	bias := a.relPos
	if bias != nil && (bias.Dim(1) != tokens || bias.Dim(2) != reduced) {
		bias = tensor.Resample2D(bias, tokens, reduced, a.interp)
	}

	headDim := c / a.heads
	groups := batch * a.heads
	out := tensor.New(groups, tokens, headDim)
	rt.Parallel(groups, func(start, end int) {
		scores := make([]float32, tokens*reduced)
		for g := start; g < end; g++ {
			qg := qh.Data[g*tokens*headDim : (g+1)*tokens*headDim]
			kg := kh.Data[g*reduced*headDim : (g+1)*reduced*headDim]
			vg := vh.Data[g*reduced*headDim : (g+1)*reduced*headDim]
			tensor.MatMulTransB(nil, scores, qg, kg, tokens, headDim, reduced)
			tensor.Scale(scores, a.scale)
			if bias != nil {
				h := g % a.heads
				tensor.Add(scores, bias.Data[h*tokens*reduced:(h+1)*tokens*reduced])
			}
			tensor.SoftmaxRows(scores, tokens, reduced)
			tensor.MatMul(nil, out.Data[g*tokens*headDim:(g+1)*tokens*headDim], scores, vg, tokens, reduced, headDim)
		}
	})

	return mergeHeads(out, a.heads)
}

func (a *OSRAttention) collect(p *paramSet, prefix string) {
	a.q.collect(p, prefix+".q")
	if a.sr1 != nil {
		a.sr1.collect(p, prefix+".sr1")
		a.sr2.collect(p, prefix+".sr2")
	}
	a.local.collect(p, prefix+".local_conv")
	a.kv.collect(p, prefix+".kv")
}

// OSRABlock wraps OSRAttention with the pre-norm residual pair.
type OSRABlock struct {
	norm1    *LayerNorm
	mixer    *OSRAttention
	norm2    *LayerNorm
	mlp      *MLP
	dropPath float64
}

func newOSRABlock(ini *initializer, dim, heads, mlpRatio, srRatio int, dropPath float64) *OSRABlock {
	return &OSRABlock{
		norm1:    newLayerNorm(dim, 1e-5),
		mixer:    newOSRAttention(ini, dim, heads, srRatio),
		norm2:    newLayerNorm(dim, 1e-5),
		mlp:      newMLP(ini, dim, dim*mlpRatio),
		dropPath: dropPath,
	}
}

func (blk *OSRABlock) Forward(rt *tensor.Runtime, x *tensor.Tensor, height, width int) *tensor.Tensor {
	mixed := blk.mixer.Forward(rt, blk.norm1.Forward(x), height, width)
	tensor.Add(mixed.Data, x.Data)
	mlpOut := blk.mlp.Forward(rt, blk.norm2.Forward(mixed))
	tensor.Add(mlpOut.Data, mixed.Data)
	return mlpOut
}

func (blk *OSRABlock) collect(p *paramSet, prefix string) {
	blk.norm1.collect(p, prefix+".norm1")
	blk.mixer.collect(p, prefix+".attn")
	blk.norm2.collect(p, prefix+".norm2")
	blk.mlp.collect(p, prefix+".mlp")
}
