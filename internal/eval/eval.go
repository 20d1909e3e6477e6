// Package eval scores recognition output against ground truth: exact and
// case-insensitive match rates plus corpus-level character error rate.
package eval

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Metrics accumulates match statistics over a stream of samples. The zero
// value is ready to use.
type Metrics struct {
	samples  int
	raw      int
	caseless int
	// editDist and refLen are summed in runes, so the error rate weights
	// every reference character equally across the corpus.
	editDist int
	refLen   int
}

// Update scores one prediction against its ground truth.
func (m *Metrics) Update(gt, pred string) {
	m.samples++
	if gt == pred {
		m.raw++
	}
	if strings.EqualFold(gt, pred) {
		m.caseless++
	}
	m.editDist += levenshtein.ComputeDistance(gt, pred)
	m.refLen += utf8.RuneCountInString(gt)
}

// Merge folds another accumulator into this one.
func (m *Metrics) Merge(other *Metrics) {
	m.samples += other.samples
	m.raw += other.raw
	m.caseless += other.caseless
	m.editDist += other.editDist
	m.refLen += other.refLen
}

// Samples returns how many pairs have been scored.
func (m *Metrics) Samples() int { return m.samples }

// Summary reports the aggregated rates.
type Summary struct {
	Samples       int     `json:"samples"`
	ExactMatch    float64 `json:"exact_match"`
	CaselessMatch float64 `json:"caseless_match"`
	CharErrorRate float64 `json:"char_error_rate"`
}

// Summary computes the final rates. An empty accumulator reports zeros.
func (m *Metrics) Summary() Summary {
	s := Summary{Samples: m.samples}
	if m.samples > 0 {
		s.ExactMatch = float64(m.raw) / float64(m.samples)
		s.CaselessMatch = float64(m.caseless) / float64(m.samples)
	}
	if m.refLen > 0 {
		s.CharErrorRate = float64(m.editDist) / float64(m.refLen)
	}
	return s
}
