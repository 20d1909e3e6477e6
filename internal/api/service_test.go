package api

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/halcyonreed/viptr/internal/logger"
	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
	"github.com/halcyonreed/viptr/internal/tensor"
)

func newTestService(t *testing.T) *RecognitionService {
	t.Helper()
	cfg := testRecognizerConfig()
	mdl, err := model.NewRecognizer(cfg, tensor.NewRuntime(0))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	proc, err := preprocess.New(preprocess.Options{
		Height: cfg.InputShape[1],
		Width:  cfg.InputShape[2],
		Mean:   cfg.Mean,
		Std:    cfg.Std,
	})
	if err != nil {
		t.Fatalf("preprocess.New: %v", err)
	}
	return NewRecognitionService("viptr-tiny", mdl, proc, logger.Discard())
}

func grayCrop(w, h int, v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestServiceRecognizeBatch(t *testing.T) {
	s := newTestService(t)
	preds, err := s.Recognize(context.Background(), []image.Image{
		grayCrop(40, 16, 30),
		grayCrop(60, 24, 200),
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("got %d predictions", len(preds))
	}
	for i, p := range preds {
		if p.Confidence <= 0 || p.Confidence > 1 {
			t.Fatalf("prediction %d confidence %g", i, p.Confidence)
		}
	}
}

func TestServiceRejectsEmptyBatch(t *testing.T) {
	s := newTestService(t)
	_, err := s.Recognize(context.Background(), nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("got %v, want ErrInvalidRequest", err)
	}
}

func TestServiceHonorsCanceledContext(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Recognize(ctx, []image.Image{grayCrop(40, 16, 30)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestServiceConfigSurface(t *testing.T) {
	s := newTestService(t)
	if s.Variant() != "viptr-tiny" {
		t.Fatalf("variant %q", s.Variant())
	}
	if got := s.Config().MaxLength; got != 8 {
		t.Fatalf("max length %d", got)
	}
}
