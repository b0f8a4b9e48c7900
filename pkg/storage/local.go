package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or would resolve
// outside the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// LocalStore keeps report and history artifacts under a directory. Keys are
// slash separated regardless of platform.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

// openLocal creates the root so a bad output directory fails at startup
// rather than after a scan has run.
func openLocal(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage.Open: %w", err)
	}
	return NewLocalStore(root), nil
}

func (s *LocalStore) path(op, key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%s %q: %w", op, key, ErrInvalidKey)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean[1:])), nil
}

// Put writes through a temp file and rename, so readers of the history
// never see a half-written snapshot.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	const op = "storage.Local.Put"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.path(op, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return nil
}

// Get returns an error matching fs.ErrNotExist for unknown keys.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.Local.Get"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.path(op, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, key, err)
	}
	return data, nil
}

// List returns the sorted keys under prefix. Temp files from in-flight
// writes are skipped. A missing prefix is empty, not an error.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	const op = "storage.Local.List"
	prefix = strings.Trim(prefix, "/")
	root := s.Root
	if prefix != "" {
		p, err := s.path(op, prefix)
		if err != nil {
			return nil, err
		}
		root = p
	}

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, prefix, err)
	}
	slices.Sort(keys)
	return keys, nil
}
