package memory

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"studyrag/internal/domain"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int
	Dimension int
	Docs      map[string][]domain.EmbeddedChunk
}

// Save writes every document set to w as a gob snapshot.
func (s *Storage) Save(w io.Writer) error {
	s.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Dimension: s.dimension, Docs: make(map[string][]domain.EmbeddedChunk, len(s.docs))}
	for id, set := range s.docs {
		snap.Docs[id] = set.chunks
	}
	s.mu.RUnlock()
	return gob.NewEncoder(w).Encode(&snap)
}

// Load replaces the index contents with a snapshot read from r. The current
// contents are kept if the snapshot is invalid.
func (s *Storage) Load(r io.Reader) error {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	docs := make(map[string]*docSet, len(snap.Docs))
	for id, chunks := range snap.Docs {
		set := &docSet{chunks: chunks}
		for _, ch := range chunks {
			if len(ch.Embedding) != snap.Dimension {
				return fmt.Errorf("snapshot document %s: %w", id,
					&domain.DimensionMismatchError{Want: snap.Dimension, Got: len(ch.Embedding)})
			}
			set.dimension = snap.Dimension
		}
		docs[id] = set
	}
	s.mu.Lock()
	s.docs = docs
	s.dimension = snap.Dimension
	s.mu.Unlock()
	return nil
}

// SaveFile writes a snapshot to path through a temporary file and rename.
func (s *Storage) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := s.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile loads a snapshot from path. A missing file leaves the index empty
// and is not an error.
func (s *Storage) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return s.Load(f)
}
