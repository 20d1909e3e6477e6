package tensor

import "fmt"

// NCHWToNHWC permutes (B,C,H,W) to (B,H,W,C).
func NCHWToNHWC(x *Tensor) *Tensor {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("tensor: nchw->nhwc needs a rank-4 input, got %v", x.Shape))
	}
	b, c, h, w := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	out := New(b, h, w, c)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			src := x.Data[(n*c+ch)*h*w:]
			for y := 0; y < h; y++ {
				for z := 0; z < w; z++ {
					out.Data[((n*h+y)*w+z)*c+ch] = src[y*w+z]
				}
			}
		}
	}
	return out
}

// NHWCToNCHW permutes (B,H,W,C) to (B,C,H,W).
func NHWCToNCHW(x *Tensor) *Tensor {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("tensor: nhwc->nchw needs a rank-4 input, got %v", x.Shape))
	}
	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	out := New(b, c, h, w)
	for n := 0; n < b; n++ {
		for y := 0; y < h; y++ {
			for z := 0; z < w; z++ {
				src := x.Data[((n*h+y)*w+z)*c:]
				for ch := 0; ch < c; ch++ {
					out.Data[(n*c+ch)*h*w+y*w+z] = src[ch]
				}
			}
		}
	}
	return out
}

// MeanHeight averages an NHWC feature map over its height axis,
// collapsing (B,H,W,C) to (B,W,C).
func MeanHeight(x *Tensor) *Tensor {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("tensor: mean over height needs a rank-4 input, got %v", x.Shape))
	}
	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	if h == 0 {
		panic("tensor: mean over empty height axis")
	}
	out := New(b, w, c)
	inv := 1 / float32(h)
	for n := 0; n < b; n++ {
		dst := out.Data[n*w*c : (n+1)*w*c]
		for y := 0; y < h; y++ {
			Add(dst, x.Data[(n*h+y)*w*c:(n*h+y+1)*w*c])
		}
		Scale(dst, inv)
	}
	return out
}
