package tensor

import "fmt"

// InterpMode selects the resampling kernel.
type InterpMode int

const (
	Bilinear InterpMode = iota
	Bicubic
)

// Interp fixes the resampling policy: which kernel to use and how output
// coordinates map back onto the source grid. With AlignCorners false the
// half-pixel convention is used, matching the common deep-learning default.
type Interp struct {
	Mode         InterpMode
	AlignCorners bool
}

// Resample2D resizes every plane of a (planes, rows, cols) tensor to
// (planes, outRows, outCols) under the given policy. Border samples are
// clamped. A same-size call returns a copy.
func Resample2D(x *Tensor, outRows, outCols int, p Interp) *Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("tensor: resample needs a rank-3 input, got %v", x.Shape))
	}
	if outRows < 1 || outCols < 1 {
		panic(fmt.Sprintf("tensor: resample to %dx%d", outRows, outCols))
	}
	planes, rows, cols := x.Dim(0), x.Dim(1), x.Dim(2)
	if rows == outRows && cols == outCols {
		return x.Clone()
	}
	out := New(planes, outRows, outCols)
	for pl := 0; pl < planes; pl++ {
		src := x.Data[pl*rows*cols : (pl+1)*rows*cols]
		dst := out.Data[pl*outRows*outCols : (pl+1)*outRows*outCols]
		for oy := 0; oy < outRows; oy++ {
			sy := sourceCoord(oy, outRows, rows, p.AlignCorners)
			for ox := 0; ox < outCols; ox++ {
				sx := sourceCoord(ox, outCols, cols, p.AlignCorners)
				var v float64
				if p.Mode == Bicubic {
					v = sampleBicubic(src, rows, cols, sy, sx)
				} else {
					v = sampleBilinear(src, rows, cols, sy, sx)
				}
				dst[oy*outCols+ox] = float32(v)
			}
		}
	}
	return out
}

func sourceCoord(dst, outSize, inSize int, alignCorners bool) float64 {
	if alignCorners {
		if outSize <= 1 {
			return 0
		}
		return float64(dst) * float64(inSize-1) / float64(outSize-1)
	}
	return (float64(dst)+0.5)*float64(inSize)/float64(outSize) - 0.5
}

func sampleBilinear(src []float32, rows, cols int, y, x float64) float64 {
	y0 := floorInt(y)
	x0 := floorInt(x)
	fy := y - float64(y0)
	fx := x - float64(x0)
	v00 := at(src, rows, cols, y0, x0)
	v01 := at(src, rows, cols, y0, x0+1)
	v10 := at(src, rows, cols, y0+1, x0)
	v11 := at(src, rows, cols, y0+1, x0+1)
	top := v00 + (v01-v00)*fx
	bot := v10 + (v11-v10)*fx
	return top + (bot-top)*fy
}

func sampleBicubic(src []float32, rows, cols int, y, x float64) float64 {
	y0 := floorInt(y)
	x0 := floorInt(x)
	fy := y - float64(y0)
	fx := x - float64(x0)
	var wy, wx [4]float64
	for i := 0; i < 4; i++ {
		wy[i] = cubicWeight(float64(i-1) - fy)
		wx[i] = cubicWeight(float64(i-1) - fx)
	}
	var v float64
	for i := 0; i < 4; i++ {
		var row float64
		for j := 0; j < 4; j++ {
			row += wx[j] * at(src, rows, cols, y0+i-1, x0+j-1)
		}
		v += wy[i] * row
	}
	return v
}

// cubicWeight is the Keys kernel with a = -0.75.
func cubicWeight(t float64) float64 {
	const a = -0.75
	if t < 0 {
		t = -t
	}
	switch {
	case t <= 1:
		return ((a+2)*t-(a+3))*t*t + 1
	case t < 2:
		return (((t-5)*t+8)*t - 4) * a
	default:
		return 0
	}
}

func at(src []float32, rows, cols, y, x int) float64 {
	if y < 0 {
		y = 0
	} else if y >= rows {
		y = rows - 1
	}
	if x < 0 {
		x = 0
	} else if x >= cols {
		x = cols - 1
	}
	return float64(src[y*cols+x])
}

func floorInt(v float64) int {
	i := int(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return i
}
