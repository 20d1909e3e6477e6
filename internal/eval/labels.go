package eval

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// LoadLabels reads a labels file mapping image file names to ground-truth
// strings, the flat JSON object layout word-crop datasets ship with.
func LoadLabels(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string)
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("eval: parse labels %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("eval: labels %s: no entries", path)
	}
	return labels, nil
}
