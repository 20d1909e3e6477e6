// Package tensor provides the dense float32 containers and numeric kernels
// shared by the vision encoder and the recognition head. Tensors are plain
// row-major buffers with an explicit shape; all layout conventions (NCHW for
// convolutions, channel-last for token sequences) are decided by the caller.
package tensor

import "fmt"

// Tensor is a dense row-major float32 array. The last axis varies fastest.
// Shape is owned by the tensor; Data may be shared between tensors produced
// by Reshape.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zero-filled tensor with the given shape.
// It panics if any dimension is negative.
func New(shape ...int) *Tensor {
	n := checkShape(shape)
	return &Tensor{Data: make([]float32, n), Shape: append([]int(nil), shape...)}
}

// FromSlice wraps an existing buffer without copying.
// It panics if the buffer length does not match the shape volume.
func FromSlice(data []float32, shape ...int) *Tensor {
	n := checkShape(shape)
	if len(data) != n {
		panic(fmt.Sprintf("tensor: buffer length %d does not match shape %v (volume %d)", len(data), shape, n))
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}
}

// Dim returns the size of axis i, counting negative indices from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Reshape returns a tensor sharing t's buffer under a new shape.
// The volume must match; one dimension may be -1 to infer it.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	out := append([]int(nil), shape...)
	infer := -1
	vol := 1
	for i, d := range out {
		switch {
		case d == -1:
			if infer >= 0 {
				panic(fmt.Sprintf("tensor: reshape %v has more than one inferred axis", shape))
			}
			infer = i
		case d < 0:
			panic(fmt.Sprintf("tensor: reshape to negative dimension %d", d))
		default:
			vol *= d
		}
	}
	if infer >= 0 {
		if vol == 0 || len(t.Data)%vol != 0 {
			panic(fmt.Sprintf("tensor: cannot infer axis in reshape of %d elements to %v", len(t.Data), shape))
		}
		out[infer] = len(t.Data) / vol
		vol = len(t.Data)
	}
	if vol != len(t.Data) {
		panic(fmt.Sprintf("tensor: reshape of %d elements to %v (volume %d)", len(t.Data), shape, vol))
	}
	return &Tensor{Data: t.Data, Shape: out}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{Data: make([]float32, len(t.Data)), Shape: append([]int(nil), t.Shape...)}
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether t and u have identical shapes.
func (t *Tensor) SameShape(u *Tensor) bool {
	if len(t.Shape) != len(u.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if u.Shape[i] != d {
			return false
		}
	}
	return true
}

func checkShape(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}
