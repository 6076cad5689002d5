package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sakif/roomchat/internal/model"
)

// LocalPrefix is the URL path the local store is mounted on.
const LocalPrefix = "/avatars/"

// LocalStore keeps avatars as files in one directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("avatar: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("avatar: creating %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	key, _, err := newKey(filename)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("avatar: creating file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("avatar: writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("avatar: closing file: %w", err)
	}
	return key, nil
}

func (s *LocalStore) URL(ref string) string {
	if ref == "" || ref == model.DefaultAvatar {
		return DefaultURL
	}
	return LocalPrefix + ref
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	if ref == "" || ref == model.DefaultAvatar {
		return nil
	}
	if filepath.Base(ref) != ref {
		return fmt.Errorf("avatar: invalid reference %q", ref)
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("avatar: removing file: %w", err)
	}
	return nil
}

// Handler serves the stored files. Mount it under LocalPrefix with the
// prefix stripped.
func (s *LocalStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
