// Package filestore persists the collection as a single JSON document on
// disk, next to the configuracion block clients of the JSON API read.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gastos/internal/core"
)

const (
	SchemaVersion = "1.0"
	Currency      = "EUR"
)

// Settings is the "configuracion" block written alongside the lists.
type Settings struct {
	Version   string `json:"version"`
	UpdatedAt string `json:"fechaActualizacion"`
	Currency  string `json:"moneda"`
}

// Document is the on-disk layout.
type Document struct {
	core.Collection
	Settings Settings `json:"configuracion"`
}

// Store rewrites the whole file on every save. Writes go to a temporary
// file that is renamed over the target, so readers never see a partial
// document.
type Store struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func New(path string) *Store {
	return &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default().With("component", "filestore"),
	}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(ctx context.Context, c core.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(c)
}

// Load reads the document. A missing file is created with the empty
// structure and an empty collection is returned.
func (s *Store) Load(ctx context.Context) (core.Collection, error) {
	doc, err := s.LoadDocument(ctx)
	if err != nil {
		return core.Collection{}, err
	}
	return doc.Collection, nil
}

// LoadDocument returns the collection together with its settings block.
func (s *Store) LoadDocument(ctx context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := core.NewCollection()
		if err := s.write(empty); err != nil {
			return Document{}, err
		}
		s.logger.InfoContext(ctx, "Created empty data file", "path", s.path)
		return Document{Collection: empty, Settings: s.settings()}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read data file: %w", err)
	}

	c, err := core.DecodeCollection(data)
	if err != nil {
		return Document{}, err
	}
	var meta struct {
		Settings Settings `json:"configuracion"`
	}
	_ = json.Unmarshal(data, &meta)
	return Document{Collection: c, Settings: meta.Settings}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) settings() Settings {
	return Settings{
		Version:   SchemaVersion,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
		Currency:  Currency,
	}
}

func (s *Store) write(c core.Collection) error {
	c = c.Clone()
	c.Normalize()
	data, err := json.MarshalIndent(Document{Collection: c, Settings: s.settings()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
