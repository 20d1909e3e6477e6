package model

import (
	"strings"
	"testing"

	"github.com/halcyonreed/viptr/internal/tensor"
)

func TestNewStageRequiresOutDimForDownsample(t *testing.T) {
	_, err := newStage(newInitializer(1), stageSettings{
		kind: stageLocal, dim: 4, depth: 1, heads: 2, mlpRatio: 2, splitSize: 1,
		dropPath: []float64{0}, downsample: true,
	})
	if err == nil {
		t.Fatal("expected a configuration error before any tensor work")
	}
	if !strings.Contains(err.Error(), "output dimension") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewStageChecksDropPathLength(t *testing.T) {
	_, err := newStage(newInitializer(1), stageSettings{
		kind: stageLocal, dim: 4, depth: 2, heads: 2, mlpRatio: 2, splitSize: 1,
		dropPath: []float64{0},
	})
	if err == nil {
		t.Fatal("expected an error for a short drop-path schedule")
	}
}

func TestPatchMergingHalvesHeight(t *testing.T) {
	pm := newPatchMerging(newInitializer(1), 4, 8)
	x := tensor.New(1, 4, 6, 4)
	patternFill(x.Data)
	y := pm.Forward(nil, x)
	if y.Dim(0) != 1 || y.Dim(1) != 2 || y.Dim(2) != 6 || y.Dim(3) != 8 {
		t.Fatalf("shape %v", y.Shape)
	}
}

func TestStageForwardShapes(t *testing.T) {
	rt := tensor.NewRuntime(2)

	local, err := newStage(newInitializer(2), stageSettings{
		kind: stageLocal, dim: 4, depth: 2, heads: 2, mlpRatio: 2, splitSize: 1,
		dropPath: []float64{0, 0},
	})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	x := tensor.New(1, 4, 4, 4)
	patternFill(x.Data)
	if y := local.Forward(rt, x); !y.SameShape(x) {
		t.Fatalf("local shape %v", y.Shape)
	}

	merged, err := newStage(newInitializer(2), stageSettings{
		kind: stageLocal, dim: 4, depth: 1, heads: 2, mlpRatio: 2, splitSize: 1,
		dropPath: []float64{0}, downsample: true, outDim: 8,
	})
	if err != nil {
		t.Fatalf("merged: %v", err)
	}
	if y := merged.Forward(rt, x); y.Dim(1) != 2 || y.Dim(2) != 4 || y.Dim(3) != 8 {
		t.Fatalf("merged shape %v", y.Shape)
	}

	mixed, err := newStage(newInitializer(2), stageSettings{
		kind: stageMixed, dim: 8, depth: 1, heads: 2, mlpRatio: 2, splitSize: 2,
		srRatio: 2, dropPath: []float64{0},
	})
	if err != nil {
		t.Fatalf("mixed: %v", err)
	}
	xm := tensor.New(1, 4, 4, 8)
	patternFill(xm.Data)
	if y := mixed.Forward(rt, xm); !y.SameShape(xm) {
		t.Fatalf("mixed shape %v", y.Shape)
	}

	global, err := newStage(newInitializer(2), stageSettings{
		kind: stageGlobal, dim: 4, depth: 1, heads: 2, mlpRatio: 2,
		dropPath: []float64{0},
	})
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	xg := tensor.New(1, 2, 3, 4)
	patternFill(xg.Data)
	if y := global.Forward(rt, xg); !y.SameShape(xg) {
		t.Fatalf("global shape %v", y.Shape)
	}
}

func TestMixedStageParamNames(t *testing.T) {
	mixed, err := newStage(newInitializer(2), stageSettings{
		kind: stageMixed, dim: 8, depth: 1, heads: 2, mlpRatio: 2, splitSize: 2,
		srRatio: 2, dropPath: []float64{0}, downsample: true, outDim: 16,
	})
	if err != nil {
		t.Fatalf("newStage: %v", err)
	}
	var p paramSet
	mixed.collect(&p, "stages.1")
	names := map[string]bool{}
	for _, param := range p.list {
		names[param.Name] = true
	}
	for _, want := range []string{
		"stages.1.local.0.qkv.weight",
		"stages.1.local.0.attn0.get_v.weight",
		"stages.1.local.0.attn1.get_v.bias",
		"stages.1.global.0.attn.q.weight",
		"stages.1.global.0.attn.sr1.conv.weight",
		"stages.1.global.0.attn.local_conv.bias",
		"stages.1.global.0.attn.kv.weight",
		"stages.1.proj.dw.weight",
		"stages.1.proj.reduce_norm.running_mean",
		"stages.1.downsample.reduction.weight",
		"stages.1.downsample.norm.bias",
	} {
		if !names[want] {
			t.Fatalf("missing param %s", want)
		}
	}
}

func TestMixProjInnerFloor(t *testing.T) {
	mp := newMixProj(newInitializer(1), 32)
	// 32/8 = 4 is below the floor of 16.
	if got := mp.reduce.W.Dim(0); got != 16 {
		t.Fatalf("inner width %d, want 16", got)
	}
	big := newMixProj(newInitializer(1), 256)
	if got := big.reduce.W.Dim(0); got != 32 {
		t.Fatalf("inner width %d, want 32", got)
	}
}
