// Package preprocess turns decoded word-crop images into the normalized
// NCHW float32 batches the recognizer consumes. Geometry and normalization
// constants come from the model configuration; the two must agree or the
// weights see inputs they were never trained on.
package preprocess

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// Interpolation selects the resampling kernel used when resizing.
type Interpolation int

const (
	Bilinear Interpolation = iota
	CatmullRom
	NearestNeighbor
)

// ParseInterpolation maps a config string to a kernel.
func ParseInterpolation(name string) (Interpolation, error) {
	switch name {
	case "", "bilinear":
		return Bilinear, nil
	case "catmullrom", "bicubic":
		return CatmullRom, nil
	case "nearest":
		return NearestNeighbor, nil
	}
	return 0, fmt.Errorf("preprocess: unknown interpolation %q", name)
}

func (i Interpolation) String() string {
	switch i {
	case CatmullRom:
		return "catmullrom"
	case NearestNeighbor:
		return "nearest"
	default:
		return "bilinear"
	}
}

func (i Interpolation) scaler() draw.Scaler {
	switch i {
	case CatmullRom:
		return draw.CatmullRom
	case NearestNeighbor:
		return draw.NearestNeighbor
	default:
		return draw.BiLinear
	}
}

// Options fix the target geometry and normalization of a Processor.
type Options struct {
	// Height and Width are the model input size in pixels.
	Height int
	Width  int
	// Mean and Std are per-channel RGB normalization constants applied to
	// [0,1] pixel values.
	Mean [3]float32
	Std  [3]float32
	// PreserveAspect scales the crop to fit inside the target and pads the
	// remainder with black instead of stretching.
	PreserveAspect bool
	// SymmetricPad centers the scaled crop; otherwise it sits at the top
	// left edge.
	SymmetricPad bool
	Interp       Interpolation
}

// Processor resizes and normalizes images into model input batches. It is
// stateless after construction and safe for concurrent use.
type Processor struct {
	opts   Options
	scaler draw.Scaler
}

// New validates opts and builds a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Height < 1 || opts.Width < 1 {
		return nil, fmt.Errorf("preprocess: target size %dx%d", opts.Width, opts.Height)
	}
	for i, s := range opts.Std {
		if s == 0 {
			return nil, fmt.Errorf("preprocess: zero std for channel %d", i)
		}
	}
	return &Processor{opts: opts, scaler: opts.Interp.scaler()}, nil
}

// Options returns the construction-time options.
func (p *Processor) Options() Options { return p.opts }

// OutputShape returns the per-image tensor geometry (C, H, W).
func (p *Processor) OutputShape() (c, h, w int) { return 3, p.opts.Height, p.opts.Width }

// Tensor assembles a normalized (B, 3, H, W) batch from one or more images.
func (p *Processor) Tensor(imgs ...image.Image) (*tensor.Tensor, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("preprocess: empty batch")
	}
	h, w := p.opts.Height, p.opts.Width
	out := tensor.New(len(imgs), 3, h, w)
	plane := h * w
	for bi, img := range imgs {
		if img == nil {
			return nil, fmt.Errorf("preprocess: nil image at index %d", bi)
		}
		sb := img.Bounds()
		if sb.Dx() < 1 || sb.Dy() < 1 {
			return nil, fmt.Errorf("preprocess: empty image at index %d", bi)
		}
		canvas := p.render(img)
		base := out.Data[bi*3*plane:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px := canvas.RGBAAt(x, y)
				idx := y*w + x
				base[idx] = (float32(px.R)/255 - p.opts.Mean[0]) / p.opts.Std[0]
				base[plane+idx] = (float32(px.G)/255 - p.opts.Mean[1]) / p.opts.Std[1]
				base[2*plane+idx] = (float32(px.B)/255 - p.opts.Mean[2]) / p.opts.Std[2]
			}
		}
	}
	return out, nil
}

// render scales img onto a target-sized canvas. Unused canvas area stays
// black, which normalizes to the same value the training padding had.
func (p *Processor) render(img image.Image) *image.RGBA {
	h, w := p.opts.Height, p.opts.Width
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	dr := canvas.Bounds()
	if p.opts.PreserveAspect {
		sb := img.Bounds()
		scale := math.Min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
		dw := clampInt(int(math.Round(float64(sb.Dx())*scale)), 1, w)
		dh := clampInt(int(math.Round(float64(sb.Dy())*scale)), 1, h)
		ox, oy := 0, 0
		if p.opts.SymmetricPad {
			ox = (w - dw) / 2
			oy = (h - dh) / 2
		}
		dr = image.Rect(ox, oy, ox+dw, oy+dh)
	}
	p.scaler.Scale(canvas, dr, img, img.Bounds(), draw.Src, nil)
	return canvas
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
