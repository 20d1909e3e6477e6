package model

import (
	"fmt"
	"math"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// Prediction is one decoded word with a conservative confidence bound: the
// minimum over time-steps of the top softmax probability.
type Prediction struct {
	Text       string  `json:"value"`
	Confidence float32 `json:"confidence"`
}

// bestPath decodes logits (B, T, V+1) by taking the argmax symbol per step,
// collapsing consecutive repeats, dropping blanks (index 0), and mapping the
// surviving index k to vocabulary[k-1].
func bestPath(logits *tensor.Tensor, vocabulary []rune) []Prediction {
	if logits.Rank() != 3 {
		panic(fmt.Sprintf("model: decode needs (B,T,C) logits, got %v", logits.Shape))
	}
	batch, steps, classes := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if classes != len(vocabulary)+1 {
		panic(fmt.Sprintf("model: %d classes for a %d-symbol vocabulary", classes, len(vocabulary)))
	}
	out := make([]Prediction, batch)
	for b := 0; b < batch; b++ {
		var text []rune
		conf := float32(1)
		prev := -1
		for t := 0; t < steps; t++ {
			row := logits.Data[(b*steps+t)*classes : (b*steps+t+1)*classes]
			best := 0
			maxLogit := row[0]
			for k, v := range row {
				if v > maxLogit {
					maxLogit = v
					best = k
				}
			}
			// Top softmax probability without materializing the distribution.
			var denom float64
			for _, v := range row {
				denom += math.Exp(float64(v - maxLogit))
			}
			if p := float32(1 / denom); p < conf {
				conf = p
			}
			if best != prev {
				if best != 0 {
					text = append(text, vocabulary[best-1])
				}
				prev = best
			}
		}
		out[b] = Prediction{Text: string(text), Confidence: conf}
	}
	return out
}

// ctcLoss is the mean CTC negative log-likelihood of targets under logits
// (B, T, V+1). Targets hold 1-based vocabulary indices. Every sample uses the
// full T steps as its input length. Per-sample losses are divided by the
// target length (clamped to 1) before averaging; unsatisfiable alignments
// contribute zero instead of +Inf so a single bad sample cannot poison a
// batch.
func ctcLoss(logits *tensor.Tensor, targets [][]int) float32 {
	if logits.Rank() != 3 {
		panic(fmt.Sprintf("model: ctc needs (B,T,C) logits, got %v", logits.Shape))
	}
	batch, steps, classes := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if len(targets) != batch {
		panic(fmt.Sprintf("model: %d targets for a batch of %d", len(targets), batch))
	}
	var total float64
	for b := 0; b < batch; b++ {
		lp := make([]float32, steps*classes)
		copy(lp, logits.Data[b*steps*classes:(b+1)*steps*classes])
		for t := 0; t < steps; t++ {
			tensor.LogSoftmax(lp[t*classes : (t+1)*classes])
		}
		loss := ctcSample(lp, steps, classes, targets[b])
		if math.IsInf(loss, 0) || math.IsNaN(loss) {
			loss = 0
		}
		div := len(targets[b])
		if div < 1 {
			div = 1
		}
		total += loss / float64(div)
	}
	return float32(total / float64(batch))
}

// ctcSample runs the forward (alpha) recursion in log space over the
// blank-interleaved target and returns the negative log-likelihood.
func ctcSample(lp []float32, steps, classes int, target []int) float64 {
	ext := make([]int, 2*len(target)+1)
	for i, k := range target {
		if k < 1 || k >= classes {
			panic(fmt.Sprintf("model: target index %d outside 1..%d", k, classes-1))
		}
		ext[2*i+1] = k
	}
	s := len(ext)

	negInf := math.Inf(-1)
	alpha := make([]float64, s)
	next := make([]float64, s)
	for i := range alpha {
		alpha[i] = negInf
	}
	alpha[0] = float64(lp[ext[0]])
	if s > 1 {
		alpha[1] = float64(lp[ext[1]])
	}
	for t := 1; t < steps; t++ {
		row := lp[t*classes : (t+1)*classes]
		for i := 0; i < s; i++ {
			v := alpha[i]
			if i > 0 {
				v = logAdd(v, alpha[i-1])
			}
			if i > 1 && ext[i] != 0 && ext[i] != ext[i-2] {
				v = logAdd(v, alpha[i-2])
			}
			next[i] = v + float64(row[ext[i]])
		}
		alpha, next = next, alpha
	}
	ll := alpha[s-1]
	if s > 1 {
		ll = logAdd(ll, alpha[s-2])
	}
	return -ll
}

func logAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
