package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MetadataStore keeps the first time each upload was picked up for processing.
type MetadataStore interface {
	ReadAll() (map[string]string, error)
	MarkFirstSeen(filename string, at time.Time) error
	Delete(filename string) error
}

// FileMetadata persists the filename → RFC 3339 timestamp mapping as a single
// JSON document. All access goes through one mutex; external writers to the
// same file are not guarded against.
type FileMetadata struct {
	mu   sync.Mutex
	path string
}

func NewFileMetadata(path string) *FileMetadata {
	return &FileMetadata{path: path}
}

func (f *FileMetadata) ReadAll() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileMetadata) WriteAll(m map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(m)
}

// MarkFirstSeen records at for filename unless an entry already exists.
func (f *FileMetadata) MarkFirstSeen(filename string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := m[filename]; ok {
		return nil
	}
	m[filename] = at.UTC().Format(time.RFC3339Nano)
	return f.write(m)
}

func (f *FileMetadata) Delete(filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := m[filename]; !ok {
		return nil
	}
	delete(m, filename)
	return f.write(m)
}

func (f *FileMetadata) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	m := map[string]string{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// write replaces the document through a temp file so readers never observe a
// partially written file.
func (f *FileMetadata) write(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
