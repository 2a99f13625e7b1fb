// Package storage keeps uploaded files on local disk under a single root.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// ProfileImageDir is the subdirectory of the root holding profile images.
	ProfileImageDir = "profile_images"

	// DefaultPublicPrefix is the URL path files are served under when none
	// is configured.
	DefaultPublicPrefix = "uploads"
)

// ErrOutsideRoot is returned when a stored path does not resolve inside the
// store root.
var ErrOutsideRoot = errors.New("path is outside the upload directory")

// FileStore writes uploads to disk. Paths it returns are public paths of the
// form {prefix}/{relative path}, independent of where the root lives on
// disk; they are what gets persisted as pdf_url and profile_image_url and
// are served under /{prefix}/.
type FileStore struct {
	root   string
	prefix string
}

// NewFileStore creates the root and its profile image directory. An empty
// publicPrefix selects DefaultPublicPrefix.
func NewFileStore(root, publicPrefix string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("upload directory is required")
	}
	root = filepath.Clean(root)

	prefix := strings.Trim(path.Clean("/"+publicPrefix), "/")
	if prefix == "" {
		prefix = DefaultPublicPrefix
	}

	if err := os.MkdirAll(filepath.Join(root, ProfileImageDir), 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &FileStore{root: root, prefix: prefix}, nil
}

// Root returns the directory files are written under.
func (s *FileStore) Root() string {
	return s.root
}

// PublicPrefix returns the leading segment of every stored path, without
// slashes.
func (s *FileStore) PublicPrefix() string {
	return s.prefix
}

// SavePDF stores data as {uuid}_{name} and returns the stored path.
func (s *FileStore) SavePDF(name string, data []byte) (string, error) {
	return s.write(fmt.Sprintf("%s_%s", uuid.New(), safeName(name)), data)
}

// SaveProfileImage stores data as profile_images/{userID}_{uuid}.{ext} and
// returns the stored path.
func (s *FileStore) SaveProfileImage(userID uuid.UUID, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.%s", userID, uuid.New(), strings.ToLower(ext))
	return s.write(path.Join(ProfileImageDir, name), data)
}

// Read returns the contents of a stored path.
func (s *FileStore) Read(stored string) ([]byte, error) {
	p, err := s.resolve(stored)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", stored, err)
	}
	return data, nil
}

// Remove deletes a stored path. A file that no longer exists is not an error.
func (s *FileStore) Remove(stored string) error {
	p, err := s.resolve(stored)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", stored, err)
	}
	return nil
}

func (s *FileStore) write(rel string, data []byte) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	return s.prefix + "/" + rel, nil
}

// resolve maps a stored path back to a file under the root. Anything not
// under the public prefix, or escaping it, is rejected.
func (s *FileStore) resolve(stored string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(stored, "/"), s.prefix+"/")
	if !ok {
		return "", ErrOutsideRoot
	}
	rel := path.Clean(rest)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "unknown.pdf"
	}
	return name
}

// Extension returns the lowercased text after the last dot in name, or ""
// when there is none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
