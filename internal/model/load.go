package model

import (
	"github.com/halcyonreed/viptr/internal/safetensors"
)

// LoadStats reports what a weight load did.
type LoadStats struct {
	Loaded     int
	Skipped    []string // in the ignore list
	Mismatched []string // present but wrong shape
	Missing    []string // not in the file
	Unused     []string // in the file, not consumed
}

// LoadParams fills a parameter registry from a safetensors file. Parameters
// named in ignoreKeys keep their initialized values, as do parameters whose
// stored shape does not match; both are reported rather than treated as
// errors so a checkpoint trained against a different vocabulary can still
// seed the encoder.
func LoadParams(params []Param, path string, ignoreKeys ...string) (*LoadStats, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	ignore := make(map[string]bool, len(ignoreKeys))
	for _, k := range ignoreKeys {
		ignore[k] = true
	}

	stats := &LoadStats{}
	consumed := make(map[string]bool, len(params))
	for _, p := range params {
		if ignore[p.Name] {
			stats.Skipped = append(stats.Skipped, p.Name)
			continue
		}
		info, ok := f.Tensor(p.Name)
		if !ok {
			stats.Missing = append(stats.Missing, p.Name)
			continue
		}
		if !shapeEqual(info.Shape, p.Shape) {
			stats.Mismatched = append(stats.Mismatched, p.Name)
			continue
		}
		vals, _, err := f.ReadTensorF32(p.Name)
		if err != nil {
			return nil, err
		}
		copy(p.Data, vals)
		consumed[p.Name] = true
		stats.Loaded++
	}
	for _, name := range f.Names() {
		if !consumed[name] {
			stats.Unused = append(stats.Unused, name)
		}
	}
	return stats, nil
}

// SaveParams writes a parameter registry as a safetensors file.
func SaveParams(params []Param, path string, meta map[string]string) error {
	w := safetensors.NewWriter()
	for k, v := range meta {
		w.SetMetadata(k, v)
	}
	for _, p := range params {
		if err := w.Add(p.Name, p.Shape, p.Data); err != nil {
			return err
		}
	}
	return w.Save(path)
}

// LoadFile fills the model's parameters from a safetensors file.
func (m *Recognizer) LoadFile(path string, ignoreKeys ...string) (*LoadStats, error) {
	return LoadParams(m.Params(), path, ignoreKeys...)
}

// SaveFile writes the model's parameters as a safetensors file.
func (m *Recognizer) SaveFile(path string, meta map[string]string) error {
	return SaveParams(m.Params(), path, meta)
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
