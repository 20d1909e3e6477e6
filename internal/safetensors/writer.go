package safetensors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
)

// A Writer accumulates named tensors and serializes them as one file.
// Tensors are written full precision regardless of how they will be read
// back; payload order follows insertion order.
type Writer struct {
	names  []string
	shapes map[string][]int
	data   map[string][]float32
	meta   map[string]string
}

func NewWriter() *Writer {
	return &Writer{
		shapes: make(map[string][]int),
		data:   make(map[string][]float32),
	}
}

// SetMetadata records a key in the __metadata__ header section.
func (w *Writer) SetMetadata(key, value string) {
	if w.meta == nil {
		w.meta = make(map[string]string)
	}
	w.meta[key] = value
}

func (w *Writer) Add(name string, shape []int, data []float32) error {
	if _, ok := w.data[name]; ok {
		return fmt.Errorf("duplicate tensor %s", name)
	}
	n, err := numElements(shape)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v holds %d elements, have %d", name, shape, n, len(data))
	}
	w.names = append(w.names, name)
	w.shapes[name] = append([]int(nil), shape...)
	w.data[name] = data
	return nil
}

func (w *Writer) Save(path string) error {
	header := make(map[string]any, len(w.names)+1)
	if len(w.meta) > 0 {
		header["__metadata__"] = w.meta
	}
	var off int64
	for _, name := range w.names {
		n := int64(len(w.data[name])) * 4
		header[name] = tensorHeader{
			DType:       "F32",
			Shape:       w.shapes[name],
			DataOffsets: []int64{off, off + n},
		}
		off += n
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(8 + len(headerBytes) + int(off))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	var scratch [4]byte
	for _, name := range w.names {
		for _, v := range w.data[name] {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			buf.Write(scratch[:])
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
