// Package api serves the recognition model over REST: POST /v1/recognize for
// inference, plus model listing, health, and Prometheus metrics endpoints.
package api

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/halcyonreed/viptr/internal/logger"
	"github.com/halcyonreed/viptr/internal/metrics"
	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
)

// RecognitionService couples a loaded recognizer with its preprocessing
// pipeline. Forward passes are serialized so concurrent requests queue instead
// of oversubscribing the worker pool.
type RecognitionService struct {
	variant string
	mdl     *model.Recognizer
	proc    *preprocess.Processor
	log     logger.Logger
	mu      sync.Mutex
}

// NewRecognitionService wires a recognizer and its processor into a service.
// A nil logger discards.
func NewRecognitionService(variant string, mdl *model.Recognizer, proc *preprocess.Processor, log logger.Logger) *RecognitionService {
	if log == nil {
		log = logger.Discard()
	}
	metrics.SetModelLoaded(variant)
	return &RecognitionService{
		variant: variant,
		mdl:     mdl,
		proc:    proc,
		log:     log,
	}
}

// Variant returns the name of the serving model preset.
func (s *RecognitionService) Variant() string { return s.variant }

// Config returns the serving model's construction-time configuration.
func (s *RecognitionService) Config() model.RecognizerConfig { return s.mdl.Config() }

// Recognize preprocesses the crops into one batch and decodes text from each.
// Results match the input order.
func (s *RecognitionService) Recognize(ctx context.Context, imgs []image.Image) ([]model.Prediction, error) {
	if len(imgs) == 0 {
		return nil, newInvalidRequest("no images supplied")
	}
	batch, err := s.proc.Tensor(imgs...)
	if err != nil {
		metrics.RecordError("preprocess")
		return nil, newInvalidRequest(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.mdl.Forward(batch, model.Request{ReturnPreds: true})
	if err != nil {
		metrics.RecordError("forward")
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.RecordRecognition(len(imgs), elapsed)
	for _, p := range res.Preds {
		metrics.RecordPrediction(len([]rune(p.Text)))
	}
	s.log.Debug("recognized batch", "crops", len(imgs), "duration", elapsed)
	return res.Preds, nil
}
