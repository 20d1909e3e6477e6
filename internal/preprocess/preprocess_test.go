package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func testOptions() Options {
	return Options{
		Height: 32,
		Width:  128,
		Mean:   [3]float32{0.5, 0.5, 0.5},
		Std:    [3]float32{0.5, 0.5, 0.5},
	}
}

func mustProcessor(t testing.TB, opts Options) *Processor {
	t.Helper()
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.Width = 0
	if _, err := New(opts); err == nil {
		t.Fatal("expected error for zero width")
	}
	opts = testOptions()
	opts.Std[1] = 0
	if _, err := New(opts); err == nil {
		t.Fatal("expected error for zero std")
	}
}

func TestParseInterpolation(t *testing.T) {
	t.Parallel()
	cases := map[string]Interpolation{
		"":           Bilinear,
		"bilinear":   Bilinear,
		"catmullrom": CatmullRom,
		"bicubic":    CatmullRom,
		"nearest":    NearestNeighbor,
	}
	for name, want := range cases {
		got, err := ParseInterpolation(name)
		if err != nil || got != want {
			t.Fatalf("ParseInterpolation(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseInterpolation("lanczos"); err == nil {
		t.Fatal("expected error for unknown kernel")
	}
	if got := CatmullRom.String(); got != "catmullrom" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTensorShapeAndBatch(t *testing.T) {
	t.Parallel()
	p := mustProcessor(t, testOptions())
	a := solid(40, 20, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	b := solid(9, 31, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	out, err := p.Tensor(a, b)
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if out.Dim(0) != 2 || out.Dim(1) != 3 || out.Dim(2) != 32 || out.Dim(3) != 128 {
		t.Fatalf("shape %v", out.Shape)
	}

	c, h, w := p.OutputShape()
	if c != 3 || h != 32 || w != 128 {
		t.Fatalf("OutputShape() = %d,%d,%d", c, h, w)
	}
}

func TestNormalizeUniformImage(t *testing.T) {
	t.Parallel()
	p := mustProcessor(t, testOptions())
	out, err := p.Tensor(solid(8, 8, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	// Stretched white fills everything; (1 - 0.5) / 0.5 = 1 on all planes.
	for i, v := range out.Data {
		if math.Abs(float64(v)-1) > 1e-2 {
			t.Fatalf("value %g at %d", v, i)
		}
	}
}

func TestChannelOrder(t *testing.T) {
	t.Parallel()
	p := mustProcessor(t, testOptions())
	out, err := p.Tensor(solid(16, 16, color.RGBA{R: 255, A: 255}))
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	plane := 32 * 128
	if r := out.Data[0]; math.Abs(float64(r)-1) > 1e-2 {
		t.Fatalf("red plane %g", r)
	}
	if g := out.Data[plane]; math.Abs(float64(g)+1) > 1e-2 {
		t.Fatalf("green plane %g", g)
	}
	if b := out.Data[2*plane]; math.Abs(float64(b)+1) > 1e-2 {
		t.Fatalf("blue plane %g", b)
	}
}

func TestPreserveAspectPadsRight(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.PreserveAspect = true
	p := mustProcessor(t, opts)

	// A 50x50 square scales to 32x32 and leaves columns 32..127 black.
	out, err := p.Tensor(solid(50, 50, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	row := 16 * 128
	if v := out.Data[row+4]; math.Abs(float64(v)-1) > 1e-2 {
		t.Fatalf("content column %g", v)
	}
	if v := out.Data[row+64]; v != -1 {
		t.Fatalf("padding column %g, want -1", v)
	}
	if v := out.Data[row+127]; v != -1 {
		t.Fatalf("last column %g, want -1", v)
	}
}

func TestSymmetricPadCenters(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.PreserveAspect = true
	opts.SymmetricPad = true
	p := mustProcessor(t, opts)

	// The 32-wide result sits at columns 48..79.
	out, err := p.Tensor(solid(50, 50, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	row := 16 * 128
	if v := out.Data[row]; v != -1 {
		t.Fatalf("left padding %g, want -1", v)
	}
	if v := out.Data[row+64]; math.Abs(float64(v)-1) > 1e-2 {
		t.Fatalf("centered content %g", v)
	}
	if v := out.Data[row+127]; v != -1 {
		t.Fatalf("right padding %g, want -1", v)
	}
}

func TestGrayLevel(t *testing.T) {
	t.Parallel()
	p := mustProcessor(t, testOptions())
	out, err := p.Tensor(solid(4, 4, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	want := (128.0/255 - 0.5) / 0.5
	if v := out.Data[0]; math.Abs(float64(v)-want) > 1e-2 {
		t.Fatalf("gray %g, want %g", v, want)
	}
}

func TestTensorErrors(t *testing.T) {
	t.Parallel()
	p := mustProcessor(t, testOptions())
	if _, err := p.Tensor(); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if _, err := p.Tensor(nil); err == nil {
		t.Fatal("expected error for nil image")
	}
	if _, err := p.Tensor(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	src := solid(5, 3, color.RGBA{R: 7, G: 8, B: 9, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png encode: %v", err)
	}

	img, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 5 || b.Dy() != 3 {
		t.Fatalf("bounds %v", b)
	}

	if _, err := Decode([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}

	path := filepath.Join(t.TempDir(), "crop.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := DecodeFile(path); err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func BenchmarkTensor(b *testing.B) {
	opts := testOptions()
	opts.PreserveAspect = true
	p := mustProcessor(b, opts)
	img := solid(100, 40, color.RGBA{R: 200, G: 180, B: 160, A: 255})
	b.ReportAllocs()
	for b.Loop() {
		if _, err := p.Tensor(img); err != nil {
			b.Fatal(err)
		}
	}
}
