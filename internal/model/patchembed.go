package model

import "github.com/halcyonreed/viptr/internal/tensor"

// PatchEmbed turns an image into the initial token grid with two stride-2
// convolutions, reducing both spatial dims 4x. Output is channel-last.
type PatchEmbed struct {
	conv1 *ConvBN
	conv2 *ConvBN
}

func newPatchEmbed(ini *initializer, inChannels, embedDim int) *PatchEmbed {
	return &PatchEmbed{
		conv1: newConvBN(ini, convSpec{
			in: inChannels, out: embedDim / 2,
			kernel: [2]int{3, 3}, stride: [2]int{2, 2}, pad: [2]int{1, 1},
		}),
		conv2: newConvBN(ini, convSpec{
			in: embedDim / 2, out: embedDim,
			kernel: [2]int{3, 3}, stride: [2]int{2, 2}, pad: [2]int{1, 1},
		}),
	}
}

// Forward maps (B,C,H,W) to (B,H/4,W/4,embedDim).
func (pe *PatchEmbed) Forward(rt *tensor.Runtime, x *tensor.Tensor) *tensor.Tensor {
	y := pe.conv1.Forward(rt, x)
	geluInPlace(y.Data)
	y = pe.conv2.Forward(rt, y)
	geluInPlace(y.Data)
	return tensor.NCHWToNHWC(y)
}

func (pe *PatchEmbed) collect(p *paramSet, prefix string) {
	pe.conv1.collect(p, prefix+".conv1")
	pe.conv2.collect(p, prefix+".conv2")
}
