package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/halcyonreed/viptr/internal/logger"
	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
	"github.com/halcyonreed/viptr/internal/tensor"
	"github.com/halcyonreed/viptr/internal/vocab"
)

// loadRecognizer builds the recognizer and its preprocessing pipeline from
// the shared model flags, loading weights when any are configured.
func loadRecognizer(log logger.Logger) (*model.Recognizer, *preprocess.Processor, error) {
	cfg, err := model.VariantConfig(variantName)
	if err != nil {
		return nil, nil, err
	}
	if vocabName != "" {
		v, err := vocab.Lookup(vocabName)
		if err != nil {
			return nil, nil, err
		}
		cfg.Vocab = v
	}

	rt := tensor.NewRuntime(int(workers))
	rec, err := model.NewRecognizer(cfg, rt)
	if err != nil {
		return nil, nil, err
	}

	path, err := resolveWeightsPath(weightsPath, modelsPath, variantName, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		log.Warn("no weights configured; predictions come from randomly initialized parameters")
	} else {
		if !fileExists(path) {
			return nil, nil, fmt.Errorf("weights file not found: %s", path)
		}
		stats, err := rec.LoadFile(path, splitIgnoreKeys(ignoreKeys)...)
		if err != nil {
			return nil, nil, fmt.Errorf("load weights %s: %w", path, err)
		}
		log.Info("loaded weights", "path", path, "tensors", stats.Loaded)
		if len(stats.Skipped) > 0 {
			log.Info("parameters kept initialized by --ignore-keys", "count", len(stats.Skipped))
		}
		if len(stats.Mismatched) > 0 {
			log.Warn("shape-mismatched parameters kept initialized", "params", strings.Join(stats.Mismatched, ", "))
		}
		if len(stats.Missing) > 0 {
			log.Warn("parameters missing from weights file", "count", len(stats.Missing))
		}
	}

	proc, err := preprocess.New(preprocess.Options{
		Height:         cfg.InputShape[1],
		Width:          cfg.InputShape[2],
		Mean:           cfg.Mean,
		Std:            cfg.Std,
		PreserveAspect: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, proc, nil
}

// splitIgnoreKeys parses the comma-separated --ignore-keys value.
func splitIgnoreKeys(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
