package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// LocalBackend keeps objects as files in a directory.
type LocalBackend struct {
	dir string
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates dir if needed.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

// Put writes r to a temporary file and renames it into place.
func (b *LocalBackend) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, name)); err != nil {
		return fmt.Errorf("publish object: %w", err)
	}
	return nil
}

// Open opens a stored file and sniffs its content type.
func (b *LocalBackend) Open(_ context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	path := filepath.Join(b.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open object: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat object: %w", err)
	}

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("detect content type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("rewind object: %w", err)
	}

	return f, &ObjectInfo{
		Name:        name,
		Size:        st.Size(),
		ContentType: mt.String(),
		ModTime:     st.ModTime(),
	}, nil
}
