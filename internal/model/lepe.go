package model

import (
	"fmt"
	"math"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// stripOrient selects the window geometry of a LePE attention half.
type stripOrient int

const (
	// stripColumns attends within full-height strips of width splitSize.
	stripColumns stripOrient = iota
	// stripRows attends within full-width strips of height splitSize.
	stripRows
	// stripNone attends over the whole map in a single window.
	stripNone
)

// LePEAttention is scaled dot-product attention restricted to one strip
// orientation. Position information enters through a depthwise 3x3
// convolution applied to the windowed value tensor (the LePE term), added to
// the attention output before the windows are merged back.
type LePEAttention struct {
	dim       int
	heads     int
	splitSize int
	orient    stripOrient
	scale     float32
	getV      *Conv2d
}

func newLePEAttention(ini *initializer, dim, heads, splitSize int, orient stripOrient) *LePEAttention {
	if dim%heads != 0 {
		panic(fmt.Sprintf("model: lepe dim %d across %d heads", dim, heads))
	}
	return &LePEAttention{
		dim:       dim,
		heads:     heads,
		splitSize: splitSize,
		orient:    orient,
		scale:     float32(1 / math.Sqrt(float64(dim/heads))),
		getV: newConv2d(ini, convSpec{
			in: dim, out: dim,
			kernel: [2]int{3, 3}, pad: [2]int{1, 1},
			groups: dim, bias: true,
		}),
	}
}

// windowDims returns the strip geometry for a height x width map.
func (a *LePEAttention) windowDims(height, width int) (int, int) {
	switch a.orient {
	case stripColumns:
		return height, a.splitSize
	case stripRows:
		return a.splitSize, width
	default:
		return height, width
	}
}

// Forward consumes pre-projected q, k, v of shape (B, H*W, C) and returns the
// mixed tokens in the same shape.
func (a *LePEAttention) Forward(rt *tensor.Runtime, q, k, v *tensor.Tensor, height, width int) *tensor.Tensor {
	batch, tokens, c := q.Dim(0), q.Dim(1), q.Dim(2)
	if tokens != height*width {
		panic(fmt.Sprintf("model: lepe got %d tokens for a %dx%d map", tokens, height, width))
	}
	if c != a.dim {
		panic(fmt.Sprintf("model: lepe got %d channels, configured for %d", c, a.dim))
	}
	winH, winW := a.windowDims(height, width)

	// A channel-last token sequence is bitwise identical to the NHWC map it
	// was flattened from, so windowing is a pure reshape chain.
	qw := tensor.PartitionWindows(q.Reshape(batch, height, width, c), winH, winW)
	kw := tensor.PartitionWindows(k.Reshape(batch, height, width, c), winH, winW)
	vw := tensor.PartitionWindows(v.Reshape(batch, height, width, c), winH, winW)
	nWin, winTokens := qw.Dim(0), qw.Dim(1)

	// LePE term: the windowed V rearranged to NCHW, passed through the
	// depthwise conv, and brought back to the window-token layout.
	vSpatial := tensor.NHWCToNCHW(vw.Reshape(nWin, winH, winW, c))
	lepe := tensor.NCHWToNHWC(a.getV.Forward(rt, vSpatial)).Reshape(nWin, winTokens, c)

	qh := splitHeads(qw, a.heads)
	kh := splitHeads(kw, a.heads)
	vh := splitHeads(vw, a.heads)
	tensor.Scale(qh.Data, a.scale)

	headDim := c / a.heads
	out := tensor.New(nWin*a.heads, winTokens, headDim)
	rt.Parallel(nWin*a.heads, func(start, end int) {
		scores := make([]float32, winTokens*winTokens)
		for g := start; g < end; g++ {
			qg := qh.Data[g*winTokens*headDim : (g+1)*winTokens*headDim]
			kg := kh.Data[g*winTokens*headDim : (g+1)*winTokens*headDim]
			vg := vh.Data[g*winTokens*headDim : (g+1)*winTokens*headDim]
			tensor.MatMulTransB(nil, scores, qg, kg, winTokens, headDim, winTokens)
			tensor.SoftmaxRows(scores, winTokens, winTokens)
			tensor.MatMul(nil, out.Data[g*winTokens*headDim:(g+1)*winTokens*headDim], scores, vg, winTokens, winTokens, headDim)
		}
	})

	mixed := mergeHeads(out, a.heads)
	tensor.Add(mixed.Data, lepe.Data)
	merged := tensor.MergeWindows(mixed, winH, winW, height, width)
	return merged.Reshape(batch, tokens, c)
}

func (a *LePEAttention) collect(p *paramSet, prefix string) {
	a.getV.collect(p, prefix+".get_v")
}

// CrossWindowBlock realizes cross-shaped window attention: channels are split
// in half, one half attends within column strips and the other within row
// strips, and the halves are concatenated and projected. A pre-norm residual
// MLP follows, as in every other mixing block.
type CrossWindowBlock struct {
	norm1    *LayerNorm
	qkv      *Linear
	columns  *LePEAttention
	rows     *LePEAttention
	proj     *Linear
	norm2    *LayerNorm
	mlp      *MLP
	dropPath float64
}

func newCrossWindowBlock(ini *initializer, dim, heads, mlpRatio, splitSize int, dropPath float64) *CrossWindowBlock {
	if dim%2 != 0 || heads%2 != 0 {
		panic(fmt.Sprintf("model: cross-window block needs even dim and heads, got %d/%d", dim, heads))
	}
	return &CrossWindowBlock{
		norm1:    newLayerNorm(dim, 1e-5),
		qkv:      newLinear(ini, dim, dim*3, true),
		columns:  newLePEAttention(ini, dim/2, heads/2, splitSize, stripColumns),
		rows:     newLePEAttention(ini, dim/2, heads/2, splitSize, stripRows),
		proj:     newLinear(ini, dim, dim, true),
		norm2:    newLayerNorm(dim, 1e-5),
		mlp:      newMLP(ini, dim, dim*mlpRatio),
		dropPath: dropPath,
	}
}

// Forward maps (B, H*W, C) to (B, H*W, C).
func (blk *CrossWindowBlock) Forward(rt *tensor.Runtime, x *tensor.Tensor, height, width int) *tensor.Tensor {
	qkv := blk.qkv.Forward(rt, blk.norm1.Forward(x))
	parts := chunkLast(qkv, 3)
	q := chunkLast(parts[0], 2)
	k := chunkLast(parts[1], 2)
	v := chunkLast(parts[2], 2)

	x1 := blk.columns.Forward(rt, q[0], k[0], v[0], height, width)
	x2 := blk.rows.Forward(rt, q[1], k[1], v[1], height, width)
	merged := blk.proj.Forward(rt, concatLast(x1, x2))

	tensor.Add(merged.Data, x.Data)
	mlpOut := blk.mlp.Forward(rt, blk.norm2.Forward(merged))
	tensor.Add(mlpOut.Data, merged.Data)
	return mlpOut
}

func (blk *CrossWindowBlock) collect(p *paramSet, prefix string) {
	blk.norm1.collect(p, prefix+".norm1")
	blk.qkv.collect(p, prefix+".qkv")
	blk.columns.collect(p, prefix+".attn0")
	blk.rows.collect(p, prefix+".attn1")
	blk.proj.collect(p, prefix+".proj")
	blk.norm2.collect(p, prefix+".norm2")
	blk.mlp.collect(p, prefix+".mlp")
}
