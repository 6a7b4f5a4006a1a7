package preset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps all presets in one YAML document:
//
//	presets:
//	  - id: verse
//	    label: Verse
//	    ...
//
// Every write rewrites the file through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDoc struct {
	Presets []Preset `yaml:"presets"`
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) List(ctx context.Context) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	sortByID(doc.Presets)
	return doc.Presets, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range doc.Presets {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

func (s *FileStore) Save(ctx context.Context, p Preset) error {
	if err := checkPreset(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Presets {
		if doc.Presets[i].ID == p.ID {
			doc.Presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Presets = append(doc.Presets, p)
	}
	sortByID(doc.Presets)
	return s.write(doc)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for i := range doc.Presets {
		if doc.Presets[i].ID == id {
			doc.Presets = append(doc.Presets[:i], doc.Presets[i+1:]...)
			return s.write(doc)
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

func (s *FileStore) read() (fileDoc, error) {
	var doc fileDoc
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("preset: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("preset: parse %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDoc) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("preset: create dir: %w", err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("preset: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".presets-*.yaml")
	if err != nil {
		return fmt.Errorf("preset: write %s: %w", s.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("preset: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("preset: write %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("preset: write %s: %w", s.path, err)
	}
	return nil
}

// ReadFile parses a standalone preset file, either a document with a
// presets list or a single preset.
func ReadFile(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("preset: parse %s: %w", path, err)
	}
	if len(doc.Presets) > 0 {
		return doc.Presets, nil
	}

	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("preset: parse %s: %w", path, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: %s has no presets", ErrInvalidRecord, path)
	}
	return []Preset{p}, nil
}
