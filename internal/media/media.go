// Package media stores chat attachments and hands out their public URLs.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes = 10 << 20

var (
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("file is empty")
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
)

// ObjectInfo is metadata about a stored object.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Backend is the storage behind the service.
type Backend interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error)
}

// Object describes a completed upload.
type Object struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// Service accepts uploads and serves them back.
type Service struct {
	backend  Backend
	baseURL  string
	maxBytes int64
}

// NewService creates a media service. publicBaseURL prefixes returned URLs.
func NewService(backend Backend, publicBaseURL string, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		backend:  backend,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		maxBytes: maxBytes,
	}
}

// MaxBytes returns the configured size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores the content of r under a fresh name and returns its public URL.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mt := mimetype.Detect(data)
	name := uuid.NewString() + extensionFor(filename, mt)
	contentType := mt.String()

	if err := s.backend.Put(ctx, name, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	return &Object{
		Name:        name,
		URL:         s.baseURL + "/media/" + name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Open returns a stored object. The caller closes the reader.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	if !validName(name) {
		return nil, nil, ErrNotFound
	}
	return s.backend.Open(ctx, name)
}

// extensionFor keeps a sane extension from the client file name and falls back to the sniffed one.
func extensionFor(filename string, mt *mimetype.MIME) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) >= 2 && len(ext) <= 10 && isAlnum(ext[1:]) {
		return ext
	}
	return mt.Extension()
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// validName accepts only names this service generates: no separators, no dot segments.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
