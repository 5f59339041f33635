// Package modelfile identifies model files: coarse format sniffing, stable
// fingerprints and filename-derived profiles. It never parses full model
// metadata; that stays behind the Detector interface.
package modelfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format tags the coarse on-disk layout of a model file.
type Format string

const (
	FormatGGUF        Format = "gguf"
	FormatGGML        Format = "ggml"
	FormatSafetensors Format = "safetensors"
	FormatLlamafile   Format = "llamafile"
	FormatUnknown     Format = "unknown"
)

// Meta carries coarse, detector-specific metadata as key/values.
type Meta map[string]string

// Detector resolves a model file to a format tag plus coarse metadata.
type Detector interface {
	DetectFormat(path string) (Format, Meta, error)
}

// SniffDetector reads magic bytes and falls back to the file extension.
// It is the default Detector.
type SniffDetector struct{}

func (SniffDetector) DetectFormat(path string) (Format, Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, nil, err
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return FormatUnknown, nil, err
	}
	head = head[:n]

	if format, meta, ok := sniffMagic(head); ok {
		return format, meta, nil
	}
	return formatFromExt(path), Meta{"source": "extension"}, nil
}

func sniffMagic(head []byte) (Format, Meta, bool) {
	if len(head) >= 8 && string(head[:4]) == "GGUF" {
		version := binary.LittleEndian.Uint32(head[4:8])
		return FormatGGUF, Meta{"source": "magic", "gguf_version": fmt.Sprintf("%d", version)}, true
	}
	// Legacy ggml family magics are little-endian uint32 on disk.
	if len(head) >= 4 {
		switch string(head[:4]) {
		case "tjgg", "lmgg", "algg", "fmgg":
			return FormatGGML, Meta{"source": "magic"}, true
		}
	}
	// llamafile is an APE polyglot binary.
	if len(head) >= 6 && string(head[:6]) == "MZqFpD" {
		return FormatLlamafile, Meta{"source": "magic"}, true
	}
	// safetensors starts with a little-endian u64 header length followed by
	// a JSON object.
	if len(head) >= 9 {
		hdrLen := binary.LittleEndian.Uint64(head[:8])
		if head[8] == '{' && hdrLen > 0 && hdrLen < 1<<31 {
			return FormatSafetensors, Meta{"source": "magic"}, true
		}
	}
	return FormatUnknown, nil, false
}

func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gguf":
		return FormatGGUF
	case ".ggml":
		return FormatGGML
	case ".safetensors":
		return FormatSafetensors
	case ".llamafile":
		return FormatLlamafile
	default:
		return FormatUnknown
	}
}
