package storage

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// FileStore is a local, zstd-compressed, atomically-renamed file
// implementation of Store.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore constructs a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "creating snapshot directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".snapshot.zst")
}

func (s *FileStore) writeAtomic(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeCacheWriteFailed, "encoding snapshot")
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeCacheWriteFailed, "constructing zstd encoder")
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw.Bytes(), nil)

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "writing snapshot temp file")
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "renaming snapshot into place")
	}
	return nil
}

func (s *FileStore) readInto(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return pipelineerrors.DataUnavailable(name + " snapshot")
	}

	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeCacheWriteFailed, "constructing zstd decoder")
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeCacheWriteFailed, "decompressing snapshot")
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindInternal, pipelineerrors.CodeCacheWriteFailed, "decoding snapshot")
	}
	return nil
}

// SaveSystemState implements Store.
func (s *FileStore) SaveSystemState(state model.SystemState) error {
	return s.writeAtomic("system_state", state)
}

// LoadSystemState implements Store.
func (s *FileStore) LoadSystemState() (model.SystemState, error) {
	var state model.SystemState
	err := s.readInto("system_state", &state)
	return state, err
}

// SavePerformanceStats implements Store.
func (s *FileStore) SavePerformanceStats(stats model.PerformanceStats) error {
	return s.writeAtomic("performance_stats", stats)
}

// LoadPerformanceStats implements Store.
func (s *FileStore) LoadPerformanceStats() (model.PerformanceStats, error) {
	var stats model.PerformanceStats
	err := s.readInto("performance_stats", &stats)
	return stats, err
}
