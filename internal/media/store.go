package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Ref points at a stored attachment. The URL is what clients fetch; the
// remaining fields describe the original upload.
type Ref struct {
	URL       string `json:"media_url"`
	MediaType string `json:"media_type"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
}

// Store writes chat attachments to a local directory and serves them back
// under a fixed URL prefix.
type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %s: %w", dir, err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the on-disk directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Save streams the upload to disk under a fresh name and returns its Ref.
func (s *Store) Save(r io.Reader, originalName, mediaType string) (*Ref, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	dst := filepath.Join(s.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create blob: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("write blob: %w", err)
	}

	return &Ref{
		URL:       s.baseURL + "/" + name,
		MediaType: mediaType,
		FileName:  originalName,
		FileSize:  size,
	}, nil
}

// Remove deletes the blob behind a previously returned URL. Used to roll
// back an accepted upload when the message insert fails.
func (s *Store) Remove(url string) error {
	name := path.Base(url)
	if name == "." || name == "/" || name == "" {
		return errors.New("invalid media url")
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
