package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ImageStore persists normalized images under a root directory with one
// subdirectory per kind. Directories are created once by NewImageStore.
type ImageStore struct {
	root   string
	prefix string
}

// NewImageStore prepares root/favicons and root/thumbnails and returns a store
// whose public paths start with publicPrefix (for example "/images").
func NewImageStore(root, publicPrefix string) (*ImageStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("image root is required")
	}
	for _, kind := range []string{KindFavicon, KindThumbnail} {
		if err := os.MkdirAll(filepath.Join(root, kind), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create image directory: %w", err)
		}
	}
	return &ImageStore{
		root:   root,
		prefix: "/" + strings.Trim(publicPrefix, "/"),
	}, nil
}

// Root returns the directory served at the public prefix.
func (s *ImageStore) Root() string { return s.root }

// Prefix returns the public URL prefix.
func (s *ImageStore) Prefix() string { return s.prefix }

// FilePath returns where the image of kind for id lives on disk.
func (s *ImageStore) FilePath(kind, id string) string {
	return filepath.Join(s.root, kind, id+OutputExt)
}

// PublicPath returns the URL path the image of kind for id is served at.
func (s *ImageStore) PublicPath(kind, id string) string {
	return path.Join(s.prefix, kind, id+OutputExt)
}

// Save atomically writes data as the image of kind for id and returns its public path.
// The file is written to a temporary name, synced, renamed into place and
// verified, so a returned path always refers to a complete file.
func (s *ImageStore) Save(kind, id string, data []byte) (string, error) {
	if kind != KindFavicon && kind != KindThumbnail {
		return "", fmt.Errorf("unknown image kind %q", kind)
	}
	if err := ValidateRecordID(id); err != nil {
		return "", err
	}

	dest := s.FilePath(kind, id)
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+id+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("failed to sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close image: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to chmod image: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move image into place: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return "", fmt.Errorf("failed to verify image: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return "", fmt.Errorf("image size mismatch: wrote %d bytes, found %d", len(data), info.Size())
	}

	return s.PublicPath(kind, id), nil
}

// Remove deletes both images for id. Missing files are not an error.
func (s *ImageStore) Remove(id string) error {
	if err := ValidateRecordID(id); err != nil {
		return err
	}
	var errs []error
	for _, kind := range []string{KindFavicon, KindThumbnail} {
		if err := os.Remove(s.FilePath(kind, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
