package model

import (
	"errors"
	"fmt"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// ErrMissingTargets is returned when a forward pass runs in training mode
// without ground-truth labels.
var ErrMissingTargets = errors.New("model: training requires target labels")

// RecognizerConfig fixes the full recognition surface: the encoder variant,
// the vocabulary, the output length cap, and the normalization constants the
// weights were trained with. All of it is immutable after construction.
type RecognizerConfig struct {
	Encoder   Config     `yaml:"encoder" json:"encoder"`
	Vocab     string     `yaml:"vocab" json:"vocab"`
	MaxLength int        `yaml:"max_length" json:"max_length"`
	Mean      [3]float32 `yaml:"mean" json:"mean"`
	Std       [3]float32 `yaml:"std" json:"std"`
	// InputShape is the canonical (C, H, W) geometry images are resized to
	// before entering the encoder.
	InputShape [3]int `yaml:"input_shape" json:"input_shape"`
}

// Request selects the outputs of a recognition forward pass.
type Request struct {
	// Targets are ground-truth strings; required in training mode, optional
	// otherwise (supplying them computes the loss).
	Targets      []string
	ReturnLogits bool
	ReturnPreds  bool
}

// Result carries whichever outputs the request asked for.
type Result struct {
	Logits  *tensor.Tensor
	Preds   []Prediction
	Loss    float32
	HasLoss bool
}

// Recognizer couples the encoder with a linear CTC head and the decoding
// vocabulary.
type Recognizer struct {
	cfg      RecognizerConfig
	enc      *Encoder
	head     *Linear
	vocab    []rune
	vocabIdx map[rune]int
	training bool
	rt       *tensor.Runtime
}

// NewRecognizer builds a recognizer with fresh weights.
func NewRecognizer(cfg RecognizerConfig, rt *tensor.Runtime) (*Recognizer, error) {
	if cfg.MaxLength < 1 {
		return nil, fmt.Errorf("model: max length %d", cfg.MaxLength)
	}
	runes := []rune(cfg.Vocab)
	if len(runes) == 0 {
		return nil, fmt.Errorf("model: empty vocabulary")
	}
	idx := make(map[rune]int, len(runes))
	for i, r := range runes {
		if _, dup := idx[r]; dup {
			return nil, fmt.Errorf("model: duplicate vocabulary symbol %q", r)
		}
		idx[r] = i
	}
	ini := newInitializer(cfg.Encoder.Seed)
	enc, err := newEncoder(cfg.Encoder, rt, ini)
	if err != nil {
		return nil, err
	}
	return &Recognizer{
		cfg:      cfg,
		enc:      enc,
		head:     newLinear(ini, cfg.Encoder.OutDim, len(runes)+1, true),
		vocab:    runes,
		vocabIdx: idx,
		rt:       rt,
	}, nil
}

// Encoder exposes the backbone, mainly for weight loading and tests.
func (m *Recognizer) Encoder() *Encoder { return m.enc }

// Config returns the construction-time configuration.
func (m *Recognizer) Config() RecognizerConfig { return m.cfg }

// Vocab returns the symbol set, blank excluded.
func (m *Recognizer) Vocab() string { return string(m.vocab) }

// SetTraining switches training mode, which makes targets mandatory.
func (m *Recognizer) SetTraining(training bool) { m.training = training }

// Forward runs recognition on an image batch (B, C, H, W). The spatial dims
// must already match the model's reduction factors; use the preprocessing
// pipeline to get there.
func (m *Recognizer) Forward(x *tensor.Tensor, req Request) (*Result, error) {
	if m.training && req.Targets == nil {
		return nil, ErrMissingTargets
	}
	if x.Rank() != 4 || x.Dim(1) != m.cfg.Encoder.InChannels {
		return nil, fmt.Errorf("model: expected (B,%d,H,W) input, got %v", m.cfg.Encoder.InChannels, x.Shape)
	}
	if req.Targets != nil && x.Dim(0) != len(req.Targets) {
		return nil, fmt.Errorf("model: %d targets for a batch of %d", len(req.Targets), x.Dim(0))
	}

	features := truncateSeq(m.enc.Forward(x), m.cfg.MaxLength)
	logits := m.head.Forward(m.rt, features)

	res := &Result{}
	if req.ReturnLogits {
		res.Logits = logits
	}
	if req.Targets == nil || req.ReturnPreds {
		res.Preds = bestPath(logits, m.vocab)
	}
	if req.Targets != nil {
		targets, err := m.buildTargets(req.Targets)
		if err != nil {
			return nil, err
		}
		res.Loss = ctcLoss(logits, targets)
		res.HasLoss = true
	}
	return res, nil
}

// buildTargets encodes ground truth as 1-based vocabulary indices; 0 stays
// reserved for the CTC blank.
func (m *Recognizer) buildTargets(gts []string) ([][]int, error) {
	out := make([][]int, len(gts))
	for i, gt := range gts {
		runes := []rune(gt)
		if len(runes) > m.cfg.MaxLength {
			return nil, fmt.Errorf("model: target %d is %d symbols, max length is %d", i, len(runes), m.cfg.MaxLength)
		}
		seq := make([]int, len(runes))
		for j, r := range runes {
			k, ok := m.vocabIdx[r]
			if !ok {
				return nil, fmt.Errorf("model: symbol %q in target %d is not in the vocabulary", r, i)
			}
			seq[j] = k + 1
		}
		out[i] = seq
	}
	return out, nil
}

// Params lists all learnable buffers of the recognizer.
func (m *Recognizer) Params() []Param {
	var p paramSet
	m.enc.collect(&p, "encoder.")
	m.head.collect(&p, "head")
	return p.list
}

// truncateSeq keeps the first maxLen positions of a (B, N, C) sequence.
func truncateSeq(x *tensor.Tensor, maxLen int) *tensor.Tensor {
	b, n, c := x.Dim(0), x.Dim(1), x.Dim(2)
	if n <= maxLen {
		return x
	}
	out := tensor.New(b, maxLen, c)
	for bi := 0; bi < b; bi++ {
		copy(out.Data[bi*maxLen*c:(bi+1)*maxLen*c], x.Data[bi*n*c:bi*n*c+maxLen*c])
	}
	return out
}
