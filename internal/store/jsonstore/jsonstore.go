package jsonstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

// JSON-backed storage. One human-readable file per board, holding the
// sections array. A missing file means no record for that board. Saves go
// through a temp file and a rename.

const filePrefix = "board-"

// Store keeps board files in Dir.
type Store struct {
	Dir string

	mu sync.Mutex
}

// New returns a store rooted at dir. An empty dir means the working directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getwd: %w", err)
		}
		dir = wd
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) dataPath(id string) (string, error) {
	if err := store.CheckID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filePrefix+id+".json"), nil
}

func (s *Store) Load(_ context.Context, id string) (model.Document, bool, error) {
	p, err := s.dataPath(id)
	if err != nil {
		return model.Document{}, false, err
	}
	s.mu.Lock()
	b, err := os.ReadFile(p)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Document{}, false, nil
		}
		return model.Document{}, false, store.Unavailable("read file", err)
	}
	doc, err := store.Decode(b)
	if err != nil {
		return model.Document{}, true, fmt.Errorf("board %s: %w", id, err)
	}
	return doc, true, nil
}

func (s *Store) Save(_ context.Context, id string, doc model.Document) error {
	p, err := s.dataPath(id)
	if err != nil {
		return err
	}
	b, err := model.EncodeSections(doc.Sections)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no board %q", store.ErrWriteRejected, id)
		}
		return store.Unavailable("stat file", err)
	}
	if err := replaceFile(p, b); err != nil {
		return store.Unavailable("write file", err)
	}
	return nil
}

// replaceFile writes b next to p and renames it over p, so readers see either
// the old document or the new one.
func replaceFile(p string, b []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(b); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Chmod(0o644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *Store) Ensure(_ context.Context, id string) error {
	p, err := s.dataPath(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return store.Unavailable("create file", err)
	}
	defer f.Close()
	if _, err := f.WriteString("[]"); err != nil {
		return store.Unavailable("write file", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
