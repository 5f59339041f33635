package modelfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Profile describes an analyzed model file. Immutable once written; a new
// one is derived when the file's fingerprint changes.
type Profile struct {
	Fingerprint string  `json:"fingerprint"`
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Format      Format  `json:"format"`
	SizeMB      int     `json:"size_mb"`
	ParamsB     float64 `json:"params_b"`
	Quant       string  `json:"quant"`
	Arch        string  `json:"arch"`
	LayerCount  int     `json:"layer_count"`
}

// FingerprintFile returns a stable identity for a model file derived from
// path, size and mtime. Content hashing is deliberately avoided: model files
// are multi-gigabyte and the metadata triple changes whenever the file does.
func FingerprintFile(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano())))
	return hex.EncodeToString(sum[:]), nil
}

var (
	paramsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)b\b`)
	quantRe  = regexp.MustCompile(`(?i)\b(i?q\d+(?:_[a-z0-9]+)*|f16|f32|bf16)\b`)
)

// Analyze builds a Profile for the file at path. The detector identifies the
// format; a detector error degrades to FormatUnknown instead of failing the
// analysis. Everything else comes from the filename and file size.
func Analyze(path string, det Detector) (*Profile, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	fp, err := FingerprintFile(path)
	if err != nil {
		return nil, err
	}

	format := FormatUnknown
	if det != nil {
		if f, _, derr := det.DetectFormat(path); derr == nil {
			format = f
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sizeMB := int(st.Size() / (1024 * 1024))
	quant := ParseQuant(name)
	params := ParseParamsB(name)
	if params == 0 {
		params = estimateParamsFromSize(sizeMB, quant)
	}
	return &Profile{
		Fingerprint: fp,
		Path:        path,
		Name:        name,
		Format:      format,
		SizeMB:      sizeMB,
		ParamsB:     params,
		Quant:       quant,
		Arch:        ParseArch(name),
		LayerCount:  estimateLayers(params),
	}, nil
}

// ParseParamsB extracts a parameter count in billions from a model name,
// e.g. "7b", "13B", "1.1b". Returns 0 when the name carries no hint.
func ParseParamsB(name string) float64 {
	matches := paramsRe.FindAllStringSubmatch(name, -1)
	if len(matches) == 0 {
		return 0
	}
	// Take the last hint: "mixtral-8x7b" should read 7, not 8.
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseQuant extracts a quantization token like Q4_K_M from a model name.
func ParseQuant(name string) string {
	m := quantRe.FindString(name)
	return strings.ToUpper(m)
}

// ParseArch guesses the architecture family from the model name.
func ParseArch(name string) string {
	lower := strings.ToLower(name)
	for _, fam := range []string{"mixtral", "mistral", "llama", "phi", "qwen", "gemma", "falcon", "starcoder", "gpt"} {
		if strings.Contains(lower, fam) {
			return fam
		}
	}
	return "unknown"
}

// estimateParamsFromSize back-derives a parameter count from file size using
// approximate bytes-per-parameter for the quantization.
func estimateParamsFromSize(sizeMB int, quant string) float64 {
	if sizeMB <= 0 {
		return 0
	}
	bpp := 0.60
	switch {
	case strings.HasPrefix(quant, "F32"):
		bpp = 4.0
	case strings.HasPrefix(quant, "F16"), strings.HasPrefix(quant, "BF16"):
		bpp = 2.0
	case strings.HasPrefix(quant, "Q8"):
		bpp = 1.07
	case strings.HasPrefix(quant, "Q6"):
		bpp = 0.82
	case strings.HasPrefix(quant, "Q5"):
		bpp = 0.69
	case strings.HasPrefix(quant, "Q4"), strings.HasPrefix(quant, "IQ4"):
		bpp = 0.57
	case strings.HasPrefix(quant, "Q3"), strings.HasPrefix(quant, "IQ3"):
		bpp = 0.44
	case strings.HasPrefix(quant, "Q2"), strings.HasPrefix(quant, "IQ2"):
		bpp = 0.34
	}
	return float64(sizeMB) * 1e6 / bpp / 1e9
}

// estimateLayers maps a parameter count to a typical transformer depth.
// Good enough for per-layer VRAM math; exact counts need format parsing,
// which is out of scope.
func estimateLayers(paramsB float64) int {
	switch {
	case paramsB <= 0:
		return 32
	case paramsB <= 1.5:
		return 22
	case paramsB <= 3:
		return 26
	case paramsB <= 8:
		return 32
	case paramsB <= 15:
		return 40
	case paramsB <= 35:
		return 60
	case paramsB <= 75:
		return 80
	default:
		return 96
	}
}
