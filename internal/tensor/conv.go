package tensor

import (
	"fmt"
	"math"
)

// Conv2D applies a 2D convolution to x in NCHW layout. The weight is
// (outC, inC/groups, kH, kW) and bias may be nil. Output spatial dims follow
// the usual floor((in + 2*pad - k)/stride) + 1 rule. Filters are distributed
// across rt's workers.
func Conv2D(rt *Runtime, x, weight *Tensor, bias []float32, strideH, strideW, padH, padW, groups int) *Tensor {
	if x.Rank() != 4 || weight.Rank() != 4 {
		panic(fmt.Sprintf("tensor: conv2d needs rank-4 input and weight, got %v and %v", x.Shape, weight.Shape))
	}
	if strideH < 1 || strideW < 1 || padH < 0 || padW < 0 || groups < 1 {
		panic(fmt.Sprintf("tensor: conv2d bad geometry stride=(%d,%d) pad=(%d,%d) groups=%d", strideH, strideW, padH, padW, groups))
	}
	batch, inC, inH, inW := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	outC, cg, kH, kW := weight.Dim(0), weight.Dim(1), weight.Dim(2), weight.Dim(3)
	if inC%groups != 0 || outC%groups != 0 || cg != inC/groups {
		panic(fmt.Sprintf("tensor: conv2d channels %d->%d not divisible into %d groups (weight expects %d per group)", inC, outC, groups, cg))
	}
	if bias != nil && len(bias) != outC {
		panic(fmt.Sprintf("tensor: conv2d bias length %d for %d filters", len(bias), outC))
	}
	outH := (inH+2*padH-kH)/strideH + 1
	outW := (inW+2*padW-kW)/strideW + 1
	if outH < 1 || outW < 1 {
		panic(fmt.Sprintf("tensor: conv2d output collapses to %dx%d for input %dx%d kernel %dx%d", outH, outW, inH, inW, kH, kW))
	}
	out := New(batch, outC, outH, outW)

	ocPerGroup := outC / groups
	rt.Parallel(batch*outC, func(start, end int) {
		for idx := start; idx < end; idx++ {
			b, oc := idx/outC, idx%outC
			g := oc / ocPerGroup
			w := weight.Data[oc*cg*kH*kW : (oc+1)*cg*kH*kW]
			var b0 float32
			if bias != nil {
				b0 = bias[oc]
			}
			dst := out.Data[(b*outC+oc)*outH*outW:]
			for oh := 0; oh < outH; oh++ {
				ih0 := oh*strideH - padH
				for ow := 0; ow < outW; ow++ {
					iw0 := ow*strideW - padW
					acc := float64(b0)
					for c := 0; c < cg; c++ {
						src := x.Data[(b*inC+g*cg+c)*inH*inW:]
						wk := w[c*kH*kW:]
						for kh := 0; kh < kH; kh++ {
							ih := ih0 + kh
							if ih < 0 || ih >= inH {
								continue
							}
							for kw := 0; kw < kW; kw++ {
								iw := iw0 + kw
								if iw < 0 || iw >= inW {
									continue
								}
								acc += float64(src[ih*inW+iw]) * float64(wk[kh*kW+kw])
							}
						}
					}
					dst[oh*outW+ow] = float32(acc)
				}
			}
		}
	})
	return out
}

// BatchNorm2D normalizes each channel of an NCHW tensor in place using the
// recorded running statistics, then applies the affine parameters.
func BatchNorm2D(x *Tensor, gamma, beta, mean, variance []float32, eps float32) {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("tensor: batchnorm needs a rank-4 input, got %v", x.Shape))
	}
	c := x.Dim(1)
	if len(gamma) != c || len(beta) != c || len(mean) != c || len(variance) != c {
		panic(fmt.Sprintf("tensor: batchnorm parameter lengths %d/%d/%d/%d for %d channels", len(gamma), len(beta), len(mean), len(variance), c))
	}
	batch, plane := x.Dim(0), x.Dim(2)*x.Dim(3)
	scale := make([]float32, c)
	shift := make([]float32, c)
	for i := range scale {
		s := gamma[i] / float32(math.Sqrt(float64(variance[i])+float64(eps)))
		scale[i] = s
		shift[i] = beta[i] - mean[i]*s
	}
	for b := 0; b < batch; b++ {
		for ch := 0; ch < c; ch++ {
			s, sh := scale[ch], shift[ch]
			p := x.Data[(b*c+ch)*plane : (b*c+ch+1)*plane]
			for i, v := range p {
				p[i] = v*s + sh
			}
		}
	}
}
