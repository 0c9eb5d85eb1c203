// Package store persists session results as zstd-compressed JSON files
// so they outlive the in-memory job registry.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Store is a directory of per-session result files.
type Store struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New opens (creating if needed) a result store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Store{dir: dir, enc: enc, dec: dec}, nil
}

// Close releases the compressor state.
func (s *Store) Close() {
	s.enc.Close()
	s.dec.Close()
}

// Save writes the result for a session, replacing any previous one.
func (s *Store) Save(sessionID string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	compressed := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)))

	path := s.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a previously saved result into out. os.ErrNotExist is
// returned unwrapped when the session has no stored result.
func (s *Store) Load(sessionID string, out any) error {
	compressed, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return err
	}
	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompress result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) path(sessionID string) string {
	// Session IDs are UUIDs, but never trust them as path components.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sessionID)
	return filepath.Join(s.dir, safe+".json.zst")
}
