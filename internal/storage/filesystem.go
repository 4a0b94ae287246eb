package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"product-admin/internal/config"
	"product-admin/internal/domain"

	"github.com/google/uuid"
)

var ErrInvalidPath = errors.New("path escapes storage root")

// StoredBlob describes a blob found on disk
type StoredBlob struct {
	Path    string
	ModTime time.Time
}

// ImageStore persists uploaded blobs and resolves their public URLs
type ImageStore interface {
	Save(ctx context.Context, data []byte, folder, ext string) (string, error)
	Delete(ctx context.Context, storedPath string) error
	List(ctx context.Context, folder string) ([]StoredBlob, error)
	URL(storedPath string) string
}

// FileSystem stores blobs below a root directory that is served publicly.
type FileSystem struct {
	root    string
	baseURL string
}

// NewFileSystem creates the storage root if needed and returns the store
func NewFileSystem(cfg config.StorageConfig) (*FileSystem, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: storage root is not configured", domain.ErrStorage)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve storage root: %v", domain.ErrStorage, err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage root: %v", domain.ErrStorage, err)
	}

	return &FileSystem{
		root:    root,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Root returns the absolute directory blobs are written to
func (s *FileSystem) Root() string {
	return s.root
}

// Save writes data under folder with a freshly generated name and returns
// the slash separated path relative to the root.
func (s *FileSystem) Save(ctx context.Context, data []byte, folder, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := s.resolve(folder)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create folder: %v", domain.ErrStorage, err)
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	name := uuid.NewString() + ext

	// O_EXCL makes a name clash fail instead of overwriting another upload.
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create file: %v", domain.ErrStorage, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: write file: %v", domain.ErrStorage, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: close file: %v", domain.ErrStorage, err)
	}

	return path.Join(filepath.ToSlash(folder), name), nil
}

// Delete removes a stored blob. Missing blobs are not an error.
func (s *FileSystem) Delete(ctx context.Context, storedPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.resolve(storedPath)
	if err != nil {
		return err
	}

	if full == s.root {
		return fmt.Errorf("%w: refusing to delete storage root", ErrInvalidPath)
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete file: %v", domain.ErrStorage, err)
	}

	return nil
}

// List returns every regular file stored under folder
func (s *FileSystem) List(ctx context.Context, folder string) ([]StoredBlob, error) {
	dir, err := s.resolve(folder)
	if err != nil {
		return nil, err
	}

	var blobs []StoredBlob
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p == dir {
				return fs.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}

		blobs = append(blobs, StoredBlob{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list folder: %v", domain.ErrStorage, err)
	}

	return blobs, nil
}

// URL returns the public URL of a stored blob
func (s *FileSystem) URL(storedPath string) string {
	return s.baseURL + "/" + strings.TrimLeft(storedPath, "/")
}

func (s *FileSystem) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return full, nil
}
