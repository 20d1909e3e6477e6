package tensor

import (
	"math/rand"
	"testing"
)

// conv2dNaive pads the input explicitly and convolves without bounds checks,
// as an independent reference for Conv2D.
func conv2dNaive(x, w *Tensor, bias []float32, sh, sw, ph, pw, groups int) *Tensor {
	b, inC, h, wd := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	outC, cg, kh, kw := w.Dim(0), w.Dim(1), w.Dim(2), w.Dim(3)

	padH, padW := h+2*ph, wd+2*pw
	padded := New(b, inC, padH, padW)
	for n := 0; n < b; n++ {
		for c := 0; c < inC; c++ {
			for y := 0; y < h; y++ {
				for z := 0; z < wd; z++ {
					padded.Data[((n*inC+c)*padH+y+ph)*padW+z+pw] = x.Data[((n*inC+c)*h+y)*wd+z]
				}
			}
		}
	}

	outH := (padH-kh)/sh + 1
	outW := (padW-kw)/sw + 1
	out := New(b, outC, outH, outW)
	for n := 0; n < b; n++ {
		for oc := 0; oc < outC; oc++ {
			g := oc / (outC / groups)
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					var sum float32
					if bias != nil {
						sum = bias[oc]
					}
					for c := 0; c < cg; c++ {
						for y := 0; y < kh; y++ {
							for z := 0; z < kw; z++ {
								iv := padded.Data[((n*inC+g*cg+c)*padH+oy*sh+y)*padW+ox*sw+z]
								wv := w.Data[((oc*cg+c)*kh+y)*kw+z]
								sum += iv * wv
							}
						}
					}
					out.Data[((n*outC+oc)*outH+oy)*outW+ox] = sum
				}
			}
		}
	}
	return out
}

func TestConv2DKnownValues(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	w := FromSlice([]float32{1, 1, 1, 1}, 1, 1, 2, 2)
	out := Conv2D(nil, x, w, []float32{1}, 1, 1, 0, 0, 1)
	if out.Dim(2) != 2 || out.Dim(3) != 2 {
		t.Fatalf("output shape = %v", out.Shape)
	}
	compareSlices(t, out.Data, []float32{13, 17, 25, 29}, 1e-5)
}

func TestConv2DAgainstNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	cases := []struct {
		name                   string
		b, inC, h, w           int
		outC, kh, kw           int
		sh, sw, ph, pw, groups int
	}{
		{"3x3 stride2", 2, 3, 8, 10, 5, 3, 3, 2, 2, 1, 1, 1},
		{"patch merge stride", 1, 4, 8, 16, 8, 3, 3, 2, 1, 1, 1, 1},
		{"1x1", 2, 6, 4, 4, 4, 1, 1, 1, 1, 0, 0, 1},
		{"depthwise", 1, 8, 6, 6, 8, 3, 3, 1, 1, 1, 1, 8},
		{"grouped", 1, 4, 5, 7, 6, 3, 3, 1, 1, 1, 1, 2},
		{"downsample k7", 1, 4, 12, 12, 4, 7, 7, 4, 4, 3, 3, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			x := FromSlice(randSlice(rng, c.b*c.inC*c.h*c.w), c.b, c.inC, c.h, c.w)
			w := FromSlice(randSlice(rng, c.outC*(c.inC/c.groups)*c.kh*c.kw), c.outC, c.inC/c.groups, c.kh, c.kw)
			bias := randSlice(rng, c.outC)

			want := conv2dNaive(x, w, bias, c.sh, c.sw, c.ph, c.pw, c.groups)
			got := Conv2D(NewRuntime(4), x, w, bias, c.sh, c.sw, c.ph, c.pw, c.groups)
			if !got.SameShape(want) {
				t.Fatalf("shape = %v, want %v", got.Shape, want.Shape)
			}
			compareSlices(t, got.Data, want.Data, 1e-3)

			nb := Conv2D(nil, x, w, nil, c.sh, c.sw, c.ph, c.pw, c.groups)
			wantNB := conv2dNaive(x, w, nil, c.sh, c.sw, c.ph, c.pw, c.groups)
			compareSlices(t, nb.Data, wantNB.Data, 1e-3)
		})
	}
}

func TestConv2DPanics(t *testing.T) {
	x := New(1, 4, 6, 6)
	mustPanic(t, "group mismatch", func() {
		Conv2D(nil, x, New(6, 2, 3, 3), nil, 1, 1, 1, 1, 4)
	})
	mustPanic(t, "bias length", func() {
		Conv2D(nil, x, New(6, 4, 3, 3), make([]float32, 5), 1, 1, 1, 1, 1)
	})
	mustPanic(t, "collapsed output", func() {
		Conv2D(nil, x, New(6, 4, 7, 7), nil, 1, 1, 0, 0, 1)
	})
	mustPanic(t, "rank", func() {
		Conv2D(nil, New(4, 6, 6), New(6, 4, 3, 3), nil, 1, 1, 1, 1, 1)
	})
}

func TestBatchNorm2D(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, -1, 0, 1}, 1, 2, 1, 3)
	gamma := []float32{2, 1}
	beta := []float32{1, 0}
	mean := []float32{2, 0}
	variance := []float32{1, 4}
	BatchNorm2D(x, gamma, beta, mean, variance, 0)
	compareSlices(t, x.Data, []float32{-1, 1, 3, -0.5, 0, 0.5}, 1e-5)
}

func BenchmarkConv2D(b *testing.B) {
	rng := rand.New(rand.NewSource(21))
	x := FromSlice(randSlice(rng, 1*3*32*128), 1, 3, 32, 128)
	w := FromSlice(randSlice(rng, 64*3*3*3), 64, 3, 3, 3)
	bias := randSlice(rng, 64)
	rt := NewRuntime(0)
	b.ReportAllocs()
	for b.Loop() {
		Conv2D(rt, x, w, bias, 2, 2, 1, 1, 1)
	}
}
