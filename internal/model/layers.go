package model

import (
	"fmt"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// Linear is a dense projection. The weight is stored row-major as (out, in)
// so a forward pass is a matmul against the transposed weight.
type Linear struct {
	W   *tensor.Tensor
	B   []float32
	In  int
	Out int
}

func newLinear(ini *initializer, in, out int, bias bool) *Linear {
	l := &Linear{W: tensor.New(out, in), In: in, Out: out}
	ini.truncNormal(l.W.Data)
	if bias {
		l.B = make([]float32, out)
	}
	return l
}

// Forward maps (..., in) to (..., out), preserving all leading axes.
func (l *Linear) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	if x.Dim(-1) != l.In {
		panic(fmt.Sprintf("model: linear expects %d input features, got %v", l.In, x.Shape))
	}
	rows := x.Len() / l.In
	shape := append(append([]int(nil), x.Shape[:x.Rank()-1]...), l.Out)
	out := tensor.New(shape...)
	tensor.MatMulTransB(rt, out.Data, x.Data, l.W.Data, rows, l.In, l.Out)
	if l.B != nil {
		for r := 0; r < rows; r++ {
			tensor.Add(out.Data[r*l.Out:(r+1)*l.Out], l.B)
		}
	}
	return out
}

func (l *Linear) collect(p *paramSet, prefix string) {
	p.add(prefix+".weight", l.W.Data, l.Out, l.In)
	if l.B != nil {
		p.add(prefix+".bias", l.B, l.Out)
	}
}

// Conv2d wraps a convolution's parameters and geometry.
type Conv2d struct {
	W      *tensor.Tensor
	B      []float32
	Stride [2]int
	Pad    [2]int
	Groups int
}

type convSpec struct {
	in, out int
	kernel  [2]int
	stride  [2]int
	pad     [2]int
	groups  int
	bias    bool
}

func newConv2d(ini *initializer, s convSpec) *Conv2d {
	if s.groups == 0 {
		s.groups = 1
	}
	if s.stride[0] == 0 {
		s.stride = [2]int{1, 1}
	}
	if s.in%s.groups != 0 {
		panic(fmt.Sprintf("model: conv %d channels across %d groups", s.in, s.groups))
	}
	c := &Conv2d{
		W:      tensor.New(s.out, s.in/s.groups, s.kernel[0], s.kernel[1]),
		Stride: s.stride,
		Pad:    s.pad,
		Groups: s.groups,
	}
	fanIn := (s.in / s.groups) * s.kernel[0] * s.kernel[1]
	ini.uniformFanIn(c.W.Data, fanIn)
	if s.bias {
		c.B = make([]float32, s.out)
		ini.uniformFanIn(c.B, fanIn)
	}
	return c
}

func (c *Conv2d) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	return tensor.Conv2D(rt, x, c.W, c.B, c.Stride[0], c.Stride[1], c.Pad[0], c.Pad[1], c.Groups)
}

func (c *Conv2d) collect(p *paramSet, prefix string) {
	p.add(prefix+".weight", c.W.Data, c.W.Shape...)
	if c.B != nil {
		p.add(prefix+".bias", c.B, len(c.B))
	}
}

// BatchNorm2d holds inference-time batch normalization statistics.
type BatchNorm2d struct {
	Gamma []float32
	Beta  []float32
	Mean  []float32
	Var   []float32
	Eps   float32
}

func newBatchNorm2d(dim int) *BatchNorm2d {
	bn := &BatchNorm2d{
		Gamma: make([]float32, dim),
		Beta:  make([]float32, dim),
		Mean:  make([]float32, dim),
		Var:   make([]float32, dim),
		Eps:   1e-5,
	}
	fill(bn.Gamma, 1)
	fill(bn.Var, 1)
	return bn
}

// Forward normalizes x in place.
func (bn *BatchNorm2d) Forward(x *tensor.Tensor) {
	tensor.BatchNorm2D(x, bn.Gamma, bn.Beta, bn.Mean, bn.Var, bn.Eps)
}

func (bn *BatchNorm2d) collect(p *paramSet, prefix string) {
	n := len(bn.Gamma)
	p.add(prefix+".weight", bn.Gamma, n)
	p.add(prefix+".bias", bn.Beta, n)
	p.add(prefix+".running_mean", bn.Mean, n)
	p.add(prefix+".running_var", bn.Var, n)
}

// ConvBN is the conv-then-batchnorm pair used throughout the embedding and
// reduction paths. The convolution carries no bias.
type ConvBN struct {
	Conv *Conv2d
	Norm *BatchNorm2d
}

func newConvBN(ini *initializer, s convSpec) *ConvBN {
	s.bias = false
	return &ConvBN{Conv: newConv2d(ini, s), Norm: newBatchNorm2d(s.out)}
}

func (cb *ConvBN) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	y := cb.Conv.Forward(rt, x)
	cb.Norm.Forward(y)
	return y
}

func (cb *ConvBN) collect(p *paramSet, prefix string) {
	cb.Conv.collect(p, prefix+".conv")
	cb.Norm.collect(p, prefix+".norm")
}

// LayerNorm normalizes the trailing channel axis.
type LayerNorm struct {
	Gamma []float32
	Beta  []float32
	Eps   float32
}

func newLayerNorm(dim int, eps float32) *LayerNorm {
	ln := &LayerNorm{
		Gamma: make([]float32, dim),
		Beta:  make([]float32, dim),
		Eps:   eps,
	}
	fill(ln.Gamma, 1)
	return ln
}

// Forward returns a normalized copy, leaving x untouched for residual paths.
func (ln *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	cols := len(ln.Gamma)
	out := x.Clone()
	tensor.LayerNormRows(out.Data, out.Len()/cols, cols, ln.Gamma, ln.Beta, ln.Eps)
	return out
}

func (ln *LayerNorm) collect(p *paramSet, prefix string) {
	n := len(ln.Gamma)
	p.add(prefix+".weight", ln.Gamma, n)
	p.add(prefix+".bias", ln.Beta, n)
}

// MLP is the position-wise feed-forward sublayer: expand, GELU, contract.
type MLP struct {
	FC1 *Linear
	FC2 *Linear
}

func newMLP(ini *initializer, dim, hidden int) *MLP {
	return &MLP{
		FC1: newLinear(ini, dim, hidden, true),
		FC2: newLinear(ini, hidden, dim, true),
	}
}

func (m *MLP) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	h := m.FC1.Forward(rt, x)
	geluInPlace(h.Data)
	return m.FC2.Forward(rt, h)
}

func (m *MLP) collect(p *paramSet, prefix string) {
	m.FC1.collect(p, prefix+".fc1")
	m.FC2.collect(p, prefix+".fc2")
}

func geluInPlace(x []float32) {
	for i, v := range x {
		x[i] = tensor.GELU(v)
	}
}

func hardswishInPlace(x []float32) {
	for i, v := range x {
		x[i] = tensor.Hardswish(v)
	}
}
