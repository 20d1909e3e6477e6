package tensor

import (
	"fmt"
	"math"
)

// Add accumulates src into dst element-wise.
func Add(dst, src []float32) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("tensor: add length mismatch %d vs %d", len(dst), len(src)))
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// Scale multiplies x by s in place.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// Dot returns the inner product of a and b, accumulated in float64.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("tensor: dot length mismatch %d vs %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// GELU is the exact Gaussian error linear unit, x * Phi(x).
func GELU(x float32) float32 {
	return float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
}

// Hardswish is x * relu6(x+3) / 6.
func Hardswish(x float32) float32 {
	switch {
	case x <= -3:
		return 0
	case x >= 3:
		return x
	default:
		return x * (x + 3) / 6
	}
}

// Softmax normalizes x in place into a probability distribution.
// The maximum is subtracted first so large logits cannot overflow.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - maxv))
		x[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// SoftmaxRows applies Softmax independently to each of the rows*cols rows.
func SoftmaxRows(x []float32, rows, cols int) {
	if len(x) != rows*cols {
		panic(fmt.Sprintf("tensor: softmax rows %dx%d does not cover %d elements", rows, cols, len(x)))
	}
	for r := 0; r < rows; r++ {
		Softmax(x[r*cols : (r+1)*cols])
	}
}

// LogSoftmax rewrites x in place as log-probabilities.
func LogSoftmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(float64(v - maxv))
	}
	lse := float64(maxv) + math.Log(sum)
	for i, v := range x {
		x[i] = float32(float64(v) - lse)
	}
}

// LayerNormRows normalizes each row of x to zero mean and unit variance, then
// applies the affine parameters. gamma and beta must have length cols.
func LayerNormRows(x []float32, rows, cols int, gamma, beta []float32, eps float32) {
	if len(x) != rows*cols {
		panic(fmt.Sprintf("tensor: layernorm rows %dx%d does not cover %d elements", rows, cols, len(x)))
	}
	if len(gamma) != cols || len(beta) != cols {
		panic(fmt.Sprintf("tensor: layernorm affine length %d/%d for %d columns", len(gamma), len(beta), cols))
	}
	for r := 0; r < rows; r++ {
		row := x[r*cols : (r+1)*cols]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(cols)
		var sq float64
		for _, v := range row {
			d := float64(v) - mean
			sq += d * d
		}
		inv := 1 / math.Sqrt(sq/float64(cols)+float64(eps))
		for i, v := range row {
			row[i] = float32((float64(v)-mean)*inv)*gamma[i] + beta[i]
		}
	}
}

// MatMul computes dst = a @ b for row-major a of shape (n,k) and b of shape
// (k,m). Rows of the output are distributed across rt's workers.
func MatMul(rt *Runtime, dst, a, b []float32, n, k, m int) {
	if len(a) != n*k || len(b) != k*m || len(dst) != n*m {
		panic(fmt.Sprintf("tensor: matmul (%d,%d)x(%d,%d) with buffers %d/%d/%d", n, k, k, m, len(a), len(b), len(dst)))
	}
	rt.Parallel(n, func(start, end int) {
		for i := start; i < end; i++ {
			row := dst[i*m : (i+1)*m]
			for j := range row {
				row[j] = 0
			}
			for l := 0; l < k; l++ {
				av := a[i*k+l]
				if av == 0 {
					continue
				}
				brow := b[l*m : (l+1)*m]
				for j, bv := range brow {
					row[j] += av * bv
				}
			}
		}
	})
}

// MatMulTransB computes dst = a @ bᵀ for row-major a of shape (n,k) and b of
// shape (m,k). Each output element is a float64-accumulated dot product.
func MatMulTransB(rt *Runtime, dst, a, b []float32, n, k, m int) {
	if len(a) != n*k || len(b) != m*k || len(dst) != n*m {
		panic(fmt.Sprintf("tensor: matmul (%d,%d)x(%d,%d)T with buffers %d/%d/%d", n, k, m, k, len(a), len(b), len(dst)))
	}
	rt.Parallel(n, func(start, end int) {
		for i := start; i < end; i++ {
			arow := a[i*k : (i+1)*k]
			for j := 0; j < m; j++ {
				dst[i*m+j] = Dot(arow, b[j*k:(j+1)*k])
			}
		}
	})
}
