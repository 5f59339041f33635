package modelfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// ScanDir scans a directory for loadable model files and builds the catalog
// served by GET /models. ID is the full filename; quant and family come from
// filename parsing.
func ScanDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !loadableExt(name) {
			continue
		}
		family := ParseArch(name)
		if family == "unknown" {
			family = ""
		}
		m := types.Model{
			ID:     name,
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   filepath.Join(abs, name),
			Quant:  ParseQuant(name),
			Family: family,
		}
		if info, err := e.Info(); err == nil {
			m.SizeMB = int(info.Size() / (1024 * 1024))
		}
		models = append(models, m)
	}
	return models, nil
}

func loadableExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gguf", ".ggml", ".llamafile":
		return true
	default:
		return false
	}
}
