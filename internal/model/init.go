package model

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// initializer draws fresh parameter values. Linear weights use a truncated
// normal (sigma 0.02, clipped to [-2, 2]), convolution weights and biases the
// uniform fan-in rule, and normalization layers start at identity.
type initializer struct {
	normal  distuv.Normal
	uniform distuv.Uniform
}

func newInitializer(seed uint64) *initializer {
	if seed == 0 {
		seed = 0x7665
	}
	src := rand.NewSource(seed)
	return &initializer{
		normal:  distuv.Normal{Mu: 0, Sigma: 0.02, Src: src},
		uniform: distuv.Uniform{Min: -1, Max: 1, Src: src},
	}
}

// truncNormal fills w by rejection sampling the configured normal inside
// [-2, 2].
func (ini *initializer) truncNormal(w []float32) {
	for i := range w {
		for {
			v := ini.normal.Rand()
			if v >= -2 && v <= 2 {
				w[i] = float32(v)
				break
			}
		}
	}
}

// uniformFanIn fills w from U(-b, b) with b = 1/sqrt(fanIn).
func (ini *initializer) uniformFanIn(w []float32, fanIn int) {
	bound := 1 / math.Sqrt(float64(fanIn))
	for i := range w {
		w[i] = float32(ini.uniform.Rand() * bound)
	}
}

func fill(w []float32, v float32) {
	for i := range w {
		w[i] = v
	}
}
