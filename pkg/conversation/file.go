package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/entrhq/scout/pkg/types"
)

// FileStore keeps each conversation in <dir>/<key>.json with its metadata
// in <dir>/<key>.meta.json. Files are replaced atomically.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a store rooted at dir. If dir is empty, defaults to
// ~/.scout/session.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".scout", "session")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *FileStore) transcriptPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) metaPath(key string) string {
	return filepath.Join(s.dir, key+".meta.json")
}

func (s *FileStore) Append(ctx context.Context, key string, msg types.Message) error {
	if err := checkAppend(key, msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(key)()

	msgs, err := s.readTranscript(key)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	if err := writeJSONAtomic(s.transcriptPath(key), msgs); err != nil {
		return err
	}

	m, err := s.readMeta(key)
	if err != nil {
		return err
	}
	touch(&m, key, len(msgs), StatusActive, now())
	return writeJSONAtomic(s.metaPath(key), m)
}

func (s *FileStore) Load(_ context.Context, key string) ([]types.Message, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	defer s.lock(key)()
	return s.readTranscript(key)
}

func (s *FileStore) Clear(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	defer s.lock(key)()

	if err := writeJSONAtomic(s.transcriptPath(key), []types.Message{}); err != nil {
		return err
	}
	m, err := s.readMeta(key)
	if err != nil {
		return err
	}
	touch(&m, key, 0, StatusCleared, now())
	return writeJSONAtomic(s.metaPath(key), m)
}

func (s *FileStore) Meta(_ context.Context, key string) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	defer s.lock(key)()
	return s.readMeta(key)
}

func (s *FileStore) UpdateMeta(_ context.Context, key string, patch func(*Metadata)) (Metadata, error) {
	if err := ValidateKey(key); err != nil {
		return Metadata{}, err
	}
	defer s.lock(key)()

	msgs, err := s.readTranscript(key)
	if err != nil {
		return Metadata{}, err
	}
	m, err := s.readMeta(key)
	if err != nil {
		return Metadata{}, err
	}
	m = applyPatch(m, key, len(msgs), patch)
	if err := writeJSONAtomic(s.metaPath(key), m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readTranscript(key string) ([]types.Message, error) {
	data, err := os.ReadFile(s.transcriptPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.Message{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	msgs := []types.Message{}
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode transcript %s: %w", key, err)
	}
	return msgs, nil
}

func (s *FileStore) readMeta(key string) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newMetadata(key), nil
		}
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata %s: %w", key, err)
	}
	return m, nil
}

// writeJSONAtomic writes v to a temp file in the target directory and
// renames it over path.
func writeJSONAtomic(path string, v interface{}) error {
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
