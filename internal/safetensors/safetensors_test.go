package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// writeRaw crafts a file byte-by-byte so malformed headers can be tested.
func writeRaw(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	out := append(lenBuf[:], headerBytes...)
	out = append(out, data...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	w := NewWriter()
	w.SetMetadata("variant", "viptr-tiny")
	if err := w.Add("head.weight", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add("head.bias", []int{2}, []float32{-0.5, 0.25}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Metadata["variant"] != "viptr-tiny" {
		t.Fatalf("metadata = %v", f.Metadata)
	}
	names := f.Names()
	if len(names) != 2 || names[0] != "head.bias" || names[1] != "head.weight" {
		t.Fatalf("Names() = %v", names)
	}

	vals, info, err := f.ReadTensorF32("head.weight")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if info.DType != "F32" || len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("info = %+v", info)
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if vals[i] != want {
			t.Fatalf("element %d: got %f, want %f", i, vals[i], want)
		}
	}

	bias, _, err := f.ReadTensorF32("head.bias")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if bias[0] != -0.5 || bias[1] != 0.25 {
		t.Fatalf("bias = %v", bias)
	}
}

func TestWriterRejectsBadTensors(t *testing.T) {
	t.Parallel()
	w := NewWriter()
	if err := w.Add("a", []int{2}, []float32{1, 2}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add("a", []int{2}, []float32{1, 2}); err == nil {
		t.Fatal("expected error for duplicate name")
	}
	if err := w.Add("b", []int{3}, []float32{1, 2}); err == nil {
		t.Fatal("expected error for shape/data mismatch")
	}
	if err := w.Add("c", []int{0}, nil); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "truncated.safetensors")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestOpenInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "invalid.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	if err := os.WriteFile(path, append(lenBuf[:], []byte("not valid js")...), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid JSON header")
	}
}

func TestOpenInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad_offsets.safetensors")
	writeRaw(t, path, map[string]any{
		"bad": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid data_offsets")
	}
}

func TestReadTensorNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "one.safetensors")
	w := NewWriter()
	if err := w.Add("a", []int{1}, []float32{1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := f.Tensor("missing"); ok {
		t.Fatal("expected tensor lookup to fail")
	}
	if _, _, err := f.ReadTensor("missing"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}

func TestReadTensorBF16(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bf16.safetensors")

	// 0x3F80 and 0x4000 are the top halves of float32 1.0 and 2.0.
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 0x3F80)
	binary.LittleEndian.PutUint16(data[2:], 0x4000)
	writeRaw(t, path, map[string]any{
		"test": map[string]any{"dtype": "BF16", "shape": []int{2}, "data_offsets": []int64{0, 4}},
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	vals, _, err := f.ReadTensorF32("test")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if len(vals) != 2 || vals[0] != 1.0 || vals[1] != 2.0 {
		t.Fatalf("vals = %v", vals)
	}
}

func TestReadTensorF16(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "f16.safetensors")

	// 0x3C00 is half-precision 1.0, 0xC200 is -3.0.
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 0x3C00)
	binary.LittleEndian.PutUint16(data[2:], 0xC200)
	writeRaw(t, path, map[string]any{
		"test": map[string]any{"dtype": "F16", "shape": []int{2}, "data_offsets": []int64{0, 4}},
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	vals, _, err := f.ReadTensorF32("test")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if len(vals) != 2 || vals[0] != 1.0 || vals[1] != -3.0 {
		t.Fatalf("vals = %v", vals)
	}
}

func TestReadTensorUnsupportedDType(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "unsupported.safetensors")
	writeRaw(t, path, map[string]any{
		"test": map[string]any{"dtype": "I32", "shape": []int{2}, "data_offsets": []int64{0, 8}},
	}, make([]byte, 8))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := f.ReadTensorF32("test"); err == nil {
		t.Fatal("expected error for unsupported dtype")
	}
}

func TestReadTensorSizeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mismatch.safetensors")
	writeRaw(t, path, map[string]any{
		"test": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 8}},
	}, make([]byte, 8))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := f.ReadTensorF32("test"); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}

func TestReadTensorInvertedOffsets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "inverted.safetensors")
	writeRaw(t, path, map[string]any{
		"bad": map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int64{8, 0}},
	}, make([]byte, 8))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := f.ReadTensor("bad"); err == nil {
		t.Fatal("expected error for inverted offsets")
	}
}

func TestMetadataWithoutTensors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "meta.safetensors")
	writeRaw(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
	}, nil)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(f.Tensors) != 0 {
		t.Fatalf("expected no tensors, got %d", len(f.Tensors))
	}
	if f.Metadata["format"] != "pt" {
		t.Fatalf("metadata = %v", f.Metadata)
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{1}, 1, false},
		{[]int{4, 5, 6}, 120, false},
		{[]int{}, 0, true},
		{[]int{0}, 0, true},
		{[]int{-1}, 0, true},
		{[]int{2, -1}, 0, true},
	}
	for _, tc := range tests {
		n, err := numElements(tc.shape)
		if tc.wantErr {
			if err == nil {
				t.Errorf("numElements(%v): expected error", tc.shape)
			}
			continue
		}
		if err != nil {
			t.Errorf("numElements(%v): unexpected error: %v", tc.shape, err)
			continue
		}
		if n != tc.want {
			t.Errorf("numElements(%v): got %d, want %d", tc.shape, n, tc.want)
		}
	}
}

func TestF32PayloadExact(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "exact.safetensors")
	values := []float32{0, -1.5, float32(math.Pi), 3e-30}
	w := NewWriter()
	if err := w.Add("v", []int{4}, values); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	vals, _, err := f.ReadTensorF32("v")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	for i, want := range values {
		if vals[i] != want {
			t.Fatalf("element %d: got %g, want %g", i, vals[i], want)
		}
	}
}
