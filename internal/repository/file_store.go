package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// fileRecord is the on-disk envelope; the JSON body is kept verbatim.
type fileRecord struct {
	Key       string    `yaml:"key"`
	Version   int64     `yaml:"version"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Body      string    `yaml:"body"`
}

// FileStore persists documents as individual YAML files, one directory per
// collection. Each document is stored as {collection}/{key}.yaml.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
// The directory is created if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(_ context.Context, collection, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readFile(s.filePath(collection, key))
	if err != nil {
		return nil, err
	}
	return []byte(rec.Body), nil
}

func (s *FileStore) Upsert(_ context.Context, collection, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	if rec, err := s.readFile(s.filePath(collection, key)); err == nil {
		version = rec.Version
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.writeFile(collection, key, body, version+1)
}

func (s *FileStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(collection, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FileStore) Scan(_ context.Context, collection string, match func(key string, body []byte) bool) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		rec, err := s.readFile(filepath.Join(s.dir, collection, name))
		if err != nil {
			continue // skip corrupt files
		}
		body := []byte(rec.Body)
		if match != nil && !match(rec.Key, body) {
			continue
		}
		docs = append(docs, Document{Collection: collection, Key: rec.Key, Body: body, Version: rec.Version})
	}
	return docs, nil
}

// Update holds the store lock across the read, fn and the write, so
// per-key updates never race inside one process.
func (s *FileStore) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		current []byte
		version int64
	)
	rec, err := s.readFile(s.filePath(collection, key))
	switch {
	case err == nil:
		current, version = []byte(rec.Body), rec.Version
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := s.writeFile(collection, key, next, version+1); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readFile(path string) (fileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecord{}, ErrNotFound
		}
		return fileRecord{}, err
	}
	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// writeFile replaces the document through a temp file and rename.
func (s *FileStore) writeFile(collection, key string, body []byte, version int64) error {
	dir := filepath.Join(s.dir, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	data, err := yaml.Marshal(&fileRecord{
		Key:       key,
		Version:   version,
		UpdatedAt: time.Now().UTC(),
		Body:      string(body),
	})
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	path := s.filePath(collection, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FileStore) filePath(collection, key string) string {
	return filepath.Join(s.dir, collection, key+".yaml")
}
