// Package loader reads the subsystem's two inputs: raw experiment log
// payloads and recorded trigger streams in their common on-disk forms.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DecodeLogPayload returns the text of a raw log payload, transparently
// decompressing gzip (.gz) and zstd (.zst, .zstd) containers based on
// the filename.
func DecodeLogPayload(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gz":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("open gzip payload: %w", err)
		}
		defer zr.Close()
		raw, err := io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("decompress gzip payload: %w", err)
		}
		return string(raw), nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return "", err
		}
		defer dec.Close()
		raw, err := dec.DecodeAll(data, nil)
		if err != nil {
			return "", fmt.Errorf("decompress zstd payload: %w", err)
		}
		return string(raw), nil
	default:
		return string(data), nil
	}
}

// ReadLogPayload reads a log file from disk via DecodeLogPayload.
func ReadLogPayload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeLogPayload(path, data)
}
