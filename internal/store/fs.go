package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	contentSuffix = ".dat"
	metaSuffix    = ".meta.yaml"
)

// FSOptions configures the filesystem backend.
type FSOptions struct {
	Path string `mapstructure:"path"`
}

// FSStore writes <id>.dat with a <id>.meta.yaml sidecar per record.
type FSStore struct {
	root string
}

// NewFS creates the store directory if needed.
func NewFS(opts FSOptions) (*FSStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("fs store: path is required")
	}
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FSStore{root: opts.Path}, nil
}

func (s *FSStore) Put(ctx context.Context, rec Record, data []byte) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := complete(rec, data)
	if err != nil {
		return Record{}, err
	}
	meta, err := yaml.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	// content first, so a sidecar never points at a missing file
	if err := writeFileAtomic(filepath.Join(s.root, rec.ID+contentSuffix), data); err != nil {
		return Record{}, err
	}
	if err := writeFileAtomic(filepath.Join(s.root, rec.ID+metaSuffix), meta); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *FSStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, nil, ErrNotFound
	}
	rec, err := s.readMeta(filepath.Join(s.root, id+metaSuffix))
	if err != nil {
		return Record{}, nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, id+contentSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, nil, ErrNotFound
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("read content %s: %w", id, err)
	}
	return rec, data, nil
}

func (s *FSStore) List(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}
	var recs []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.readMeta(filepath.Join(s.root, e.Name()))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) readMeta(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", path, err)
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
