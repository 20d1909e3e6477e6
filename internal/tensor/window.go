package tensor

import "fmt"

// PartitionWindows splits a channel-last feature map (B,H,W,C) into
// non-overlapping winH x winW blocks, returning (B*nH*nW, winH*winW, C).
// Windows are ordered row-major over the grid and tokens row-major within
// each window, so MergeWindows is an exact inverse. Both spatial dims must be
// divisible by the window size.
func PartitionWindows(x *Tensor, winH, winW int) *Tensor {
	if x.Rank() != 4 {
		panic(fmt.Sprintf("tensor: window partition needs a rank-4 input, got %v", x.Shape))
	}
	b, h, w, c := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	if winH < 1 || winW < 1 {
		panic(fmt.Sprintf("tensor: window size %dx%d", winH, winW))
	}
	if h%winH != 0 || w%winW != 0 {
		panic(fmt.Sprintf("tensor: feature map %dx%d not divisible by window %dx%d", h, w, winH, winW))
	}
	nH, nW := h/winH, w/winW
	out := New(b*nH*nW, winH*winW, c)
	rowLen := winW * c
	for n := 0; n < b; n++ {
		for i := 0; i < nH; i++ {
			for j := 0; j < nW; j++ {
				win := ((n*nH+i)*nW + j) * winH * rowLen
				for p := 0; p < winH; p++ {
					src := ((n*h+i*winH+p)*w + j*winW) * c
					copy(out.Data[win+p*rowLen:win+(p+1)*rowLen], x.Data[src:src+rowLen])
				}
			}
		}
	}
	return out
}

// MergeWindows reassembles windows produced by PartitionWindows back into a
// (B,H,W,C) map. height and width name the original spatial dims.
func MergeWindows(win *Tensor, winH, winW, height, width int) *Tensor {
	if win.Rank() != 3 {
		panic(fmt.Sprintf("tensor: window merge needs a rank-3 input, got %v", win.Shape))
	}
	if winH < 1 || winW < 1 || height%winH != 0 || width%winW != 0 {
		panic(fmt.Sprintf("tensor: target %dx%d not divisible by window %dx%d", height, width, winH, winW))
	}
	if win.Dim(1) != winH*winW {
		panic(fmt.Sprintf("tensor: window holds %d tokens, expected %d", win.Dim(1), winH*winW))
	}
	nH, nW := height/winH, width/winW
	if win.Dim(0)%(nH*nW) != 0 {
		panic(fmt.Sprintf("tensor: %d windows do not tile a %dx%d grid", win.Dim(0), nH, nW))
	}
	b, c := win.Dim(0)/(nH*nW), win.Dim(2)
	out := New(b, height, width, c)
	rowLen := winW * c
	for n := 0; n < b; n++ {
		for i := 0; i < nH; i++ {
			for j := 0; j < nW; j++ {
				src := ((n*nH+i)*nW + j) * winH * rowLen
				for p := 0; p < winH; p++ {
					dst := ((n*height+i*winH+p)*width + j*winW) * c
					copy(out.Data[dst:dst+rowLen], win.Data[src+p*rowLen:src+(p+1)*rowLen])
				}
			}
		}
	}
	return out
}
