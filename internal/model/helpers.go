package model

import (
	"fmt"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// chunkLast splits the trailing axis into n equal parts, copying each part
// into its own tensor.
func chunkLast(x *tensor.Tensor, n int) []*tensor.Tensor {
	c := x.Dim(-1)
	if n < 1 || c%n != 0 {
		panic(fmt.Sprintf("model: cannot chunk %d channels into %d parts", c, n))
	}
	part := c / n
	rows := x.Len() / c
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = part
	out := make([]*tensor.Tensor, n)
	for i := range out {
		out[i] = tensor.New(shape...)
	}
	for r := 0; r < rows; r++ {
		src := x.Data[r*c : (r+1)*c]
		for i := range out {
			copy(out[i].Data[r*part:(r+1)*part], src[i*part:(i+1)*part])
		}
	}
	return out
}

// concatLast joins tensors along the trailing axis. All inputs must agree on
// every leading dimension.
func concatLast(xs ...*tensor.Tensor) *tensor.Tensor {
	if len(xs) == 0 {
		panic("model: concat of nothing")
	}
	lead := xs[0].Shape[:xs[0].Rank()-1]
	total := 0
	for _, x := range xs {
		if x.Rank() != len(lead)+1 {
			panic("model: concat rank mismatch")
		}
		for i, d := range lead {
			if x.Shape[i] != d {
				panic(fmt.Sprintf("model: concat leading dims %v vs %v", x.Shape, xs[0].Shape))
			}
		}
		total += x.Dim(-1)
	}
	shape := append(append([]int(nil), lead...), total)
	out := tensor.New(shape...)
	rows := out.Len() / total
	off := 0
	for _, x := range xs {
		c := x.Dim(-1)
		for r := 0; r < rows; r++ {
			copy(out.Data[r*total+off:r*total+off+c], x.Data[r*c:(r+1)*c])
		}
		off += c
	}
	return out
}

// chunkChannelsNCHW splits (B, n*C, H, W) into n tensors of (B, C, H, W).
func chunkChannelsNCHW(x *tensor.Tensor, n int) []*tensor.Tensor {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("model: channel chunk needs NCHW, got %v", x.Shape))
	}
	b, c, h, w := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	if n < 1 || c%n != 0 {
		panic(fmt.Sprintf("model: cannot chunk %d channels into %d parts", c, n))
	}
	part := c / n
	plane := h * w
	out := make([]*tensor.Tensor, n)
	for i := range out {
		out[i] = tensor.New(b, part, h, w)
	}
	for bi := 0; bi < b; bi++ {
		for i := range out {
			src := x.Data[(bi*c+i*part)*plane : (bi*c+(i+1)*part)*plane]
			copy(out[i].Data[bi*part*plane:(bi+1)*part*plane], src)
		}
	}
	return out
}

// splitHeads reorders a token sequence (B,T,C) into per-head groups
// (B*heads, T, C/heads); head h of batch b lands at index b*heads+h.
func splitHeads(x *tensor.Tensor, heads int) *tensor.Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("model: head split needs (B,T,C), got %v", x.Shape))
	}
	b, t, c := x.Dim(0), x.Dim(1), x.Dim(2)
	if heads < 1 || c%heads != 0 {
		panic(fmt.Sprintf("model: %d channels across %d heads", c, heads))
	}
	d := c / heads
	out := tensor.New(b*heads, t, d)
	for n := 0; n < b; n++ {
		for h := 0; h < heads; h++ {
			for tk := 0; tk < t; tk++ {
				src := x.Data[(n*t+tk)*c+h*d:]
				copy(out.Data[((n*heads+h)*t+tk)*d:((n*heads+h)*t+tk+1)*d], src[:d])
			}
		}
	}
	return out
}

// mergeHeads inverts splitHeads.
func mergeHeads(x *tensor.Tensor, heads int) *tensor.Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("model: head merge needs (G,T,d), got %v", x.Shape))
	}
	g, t, d := x.Dim(0), x.Dim(1), x.Dim(2)
	if heads < 1 || g%heads != 0 {
		panic(fmt.Sprintf("model: %d groups across %d heads", g, heads))
	}
	b, c := g/heads, d*heads
	out := tensor.New(b, t, c)
	for n := 0; n < b; n++ {
		for h := 0; h < heads; h++ {
			for tk := 0; tk < t; tk++ {
				dst := out.Data[(n*t+tk)*c+h*d:]
				copy(dst[:d], x.Data[((n*heads+h)*t+tk)*d:((n*heads+h)*t+tk+1)*d])
			}
		}
	}
	return out
}
