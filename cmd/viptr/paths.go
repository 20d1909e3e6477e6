package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const envViptrModelsDir = "VIPTR_MODELS_DIR"

// resolveWeightsPath locates the safetensors file to load. An explicit
// --weights flag wins. Otherwise the models directory (--models-path, then
// VIPTR_MODELS_DIR) is searched: a file named after the variant is preferred,
// a lone weights file is picked up with a note, and anything more ambiguous
// is an error. Empty path with nil error means no weights are configured at
// all.
func resolveWeightsPath(weightsFlag, modelsDir, variant string, stderr io.Writer) (string, error) {
	weightsFlag = strings.TrimSpace(weightsFlag)
	if weightsFlag != "" {
		return filepath.Clean(weightsFlag), nil
	}

	dir := strings.TrimSpace(modelsDir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envViptrModelsDir))
	}
	if dir == "" {
		return "", nil
	}

	files, err := discoverWeights(dir)
	if err != nil {
		return "", err
	}
	preferred := filepath.Join(dir, variant+".safetensors")
	for _, f := range files {
		if f == preferred {
			return f, nil
		}
	}
	switch len(files) {
	case 0:
		return "", fmt.Errorf("no .safetensors weights found in %s", dir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using weights %s\n", files[0])
		return files[0], nil
	default:
		return "", fmt.Errorf(
			"multiple weights files in %s and none named %s.safetensors; set --weights",
			dir, variant,
		)
	}
}

func discoverWeights(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".safetensors") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
