package model

import (
	"testing"

	"github.com/halcyonreed/viptr/internal/tensor"
)

// smallEncoderConfig keeps the three-stage layout at toy widths so forward
// passes stay cheap.
func smallEncoderConfig() Config {
	return Config{
		InChannels: 3,
		OutDim:     24,
		Dims:       []int{8, 16, 32},
		Depths:     []int{1, 1, 1},
		Heads:      []int{2, 4, 8},
		MLPRatios:  []int{1, 1, 1},
		SplitSizes: []int{1, 2, 4},
		SRRatios:   []int{4, 2, 2},
		Seed:       1,
	}
}

func TestEncoderOutputShape(t *testing.T) {
	rt := tensor.NewRuntime(0)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	x := tensor.New(2, 3, 32, 64)
	patternFill(x.Data)
	y := enc.Forward(x)
	if y.Dim(0) != 2 || y.Dim(1) != 16 || y.Dim(2) != 24 {
		t.Fatalf("shape %v", y.Shape)
	}
	if got := enc.SequenceLength(64); got != 16 {
		t.Fatalf("SequenceLength(64) = %d", got)
	}
	if enc.OutDim() != 24 {
		t.Fatalf("OutDim() = %d", enc.OutDim())
	}
}

func TestEncoderSequenceLengthTracksWidthOnly(t *testing.T) {
	rt := tensor.NewRuntime(0)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	a := tensor.New(1, 3, 32, 32)
	patternFill(a.Data)
	if y := enc.Forward(a); y.Dim(1) != 8 {
		t.Fatalf("width 32 gave %d positions", y.Dim(1))
	}

	// Same width, different batch size and content.
	b := tensor.New(3, 3, 32, 32)
	for i := range b.Data {
		b.Data[i] = float32(i%11)*0.09 - 0.4
	}
	if y := enc.Forward(b); y.Dim(0) != 3 || y.Dim(1) != 8 {
		t.Fatalf("batch 3 gave shape %v", y.Shape)
	}

	c := tensor.New(1, 3, 32, 64)
	patternFill(c.Data)
	if y := enc.Forward(c); y.Dim(1) != 16 {
		t.Fatalf("width 64 gave %d positions", y.Dim(1))
	}
}

func TestEncoderBatchConsistency(t *testing.T) {
	rt := tensor.NewRuntime(0)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	single := tensor.New(1, 3, 32, 32)
	patternFill(single.Data)
	pair := tensor.New(2, 3, 32, 32)
	copy(pair.Data[:single.Len()], single.Data)
	for i := single.Len(); i < pair.Len(); i++ {
		pair.Data[i] = float32(i%7) * 0.1
	}

	y1 := enc.Forward(single)
	y2 := enc.Forward(pair)
	compareSlices(t, y2.Data[:y1.Len()], y1.Data, 1e-6)
}

func TestEncoderDeterminism(t *testing.T) {
	rt := tensor.NewRuntime(3)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	x := tensor.New(1, 3, 32, 32)
	patternFill(x.Data)
	y1 := enc.Forward(x)
	y2 := enc.Forward(x)
	compareSlices(t, y1.Data, y2.Data, 0)
}

func TestEncoderSeedControlsWeights(t *testing.T) {
	rt := tensor.NewRuntime(0)
	cfg := smallEncoderConfig()
	e1, err := NewEncoder(cfg, rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	e2, err := NewEncoder(cfg, rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	cfg.Seed = 99
	e3, err := NewEncoder(cfg, rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	x := tensor.New(1, 3, 32, 32)
	patternFill(x.Data)
	y1 := e1.Forward(x)
	y2 := e2.Forward(x)
	y3 := e3.Forward(x)
	compareSlices(t, y1.Data, y2.Data, 0)

	same := true
	for i := range y1.Data {
		if y1.Data[i] != y3.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical outputs")
	}
}

func TestEncoderForwardPanics(t *testing.T) {
	rt := tensor.NewRuntime(0)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	mustPanic(t, func() { enc.Forward(tensor.New(1, 1, 32, 32)) })
	mustPanic(t, func() { enc.Forward(tensor.New(1, 3, 24, 32)) }) // height factor is 16
	mustPanic(t, func() { enc.Forward(tensor.New(1, 3, 32, 30)) })
	mustPanic(t, func() { enc.Forward(tensor.New(3, 32, 32)) })
}

func TestEncoderParamRegistry(t *testing.T) {
	enc, err := NewEncoder(smallEncoderConfig(), nil)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	params := enc.Params()
	names := map[string]bool{}
	for _, p := range params {
		names[p.Name] = true
		if len(p.Data) == 0 {
			t.Fatalf("param %s has no storage", p.Name)
		}
	}
	for _, want := range []string{
		"patch_embed.conv1.conv.weight",
		"patch_embed.conv2.norm.running_var",
		"stages.0.blocks.0.qkv.weight",
		"stages.0.blocks.0.attn0.get_v.weight",
		"stages.0.downsample.reduction.bias",
		"stages.1.local.0.proj.weight",
		"stages.1.global.0.attn.kv.bias",
		"stages.1.proj.expand_norm.running_mean",
		"stages.2.blocks.0.attn.proj.weight",
		"norm.weight",
		"head.weight",
	} {
		if !names[want] {
			t.Fatalf("missing param %s", want)
		}
	}
	if names["head.bias"] {
		t.Fatal("projection head must not carry a bias")
	}

	// Registry data aliases the live weights.
	var headW []float32
	for _, p := range params {
		if p.Name == "head.weight" {
			headW = p.Data
		}
	}
	headW[0] = 123
	if enc.head.W.Data[0] != 123 {
		t.Fatal("param registry does not alias model storage")
	}
}

func BenchmarkEncoderForward(b *testing.B) {
	rt := tensor.NewRuntime(0)
	enc, err := NewEncoder(smallEncoderConfig(), rt)
	if err != nil {
		b.Fatalf("NewEncoder: %v", err)
	}
	x := tensor.New(1, 3, 32, 64)
	patternFill(x.Data)
	b.ReportAllocs()
	for b.Loop() {
		enc.Forward(x)
	}
}
