package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newLocalService(t *testing.T, maxBytes int64) *Service {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	return NewService(backend, "http://chat.example.com/", maxBytes)
}

func TestUploadAndOpenLocal(t *testing.T) {
	svc := newLocalService(t, 0)
	ctx := context.Background()

	obj, err := svc.Upload(ctx, "Cat.PNG", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasSuffix(obj.Name, ".png") {
		t.Fatalf("expected .png name, got %s", obj.Name)
	}
	if obj.URL != "http://chat.example.com/media/"+obj.Name {
		t.Fatalf("unexpected url %s", obj.URL)
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %s", obj.ContentType)
	}
	if obj.Size != int64(len(pngHeader)) {
		t.Fatalf("unexpected size %d", obj.Size)
	}

	rc, info, err := svc.Open(ctx, obj.Name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, pngHeader) {
		t.Fatalf("content mismatch")
	}
	if info.ContentType != "image/png" {
		t.Fatalf("expected image/png on open, got %s", info.ContentType)
	}
}

func TestUploadFallsBackToSniffedExtension(t *testing.T) {
	svc := newLocalService(t, 0)

	obj, err := svc.Upload(context.Background(), "noext", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasSuffix(obj.Name, ".png") {
		t.Fatalf("expected sniffed .png, got %s", obj.Name)
	}

	obj, err = svc.Upload(context.Background(), "weird.p/ng", bytes.NewReader([]byte("plain text")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if strings.Contains(obj.Name, "/") || !strings.HasSuffix(obj.Name, ".txt") {
		t.Fatalf("expected sanitized .txt name, got %s", obj.Name)
	}
}

func TestUploadLimits(t *testing.T) {
	svc := newLocalService(t, 8)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "big.bin", bytes.NewReader(make([]byte, 9))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := svc.Upload(ctx, "exact.bin", bytes.NewReader(make([]byte, 8))); err != nil {
		t.Fatalf("expected limit-sized upload to pass, got %v", err)
	}
	if _, err := svc.Upload(ctx, "empty.bin", bytes.NewReader(nil)); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestOpenRejectsUnknownAndTraversal(t *testing.T) {
	svc := newLocalService(t, 0)
	ctx := context.Background()

	for _, name := range []string{"", "..", "../etc/passwd", ".upload-123", "a/b", "missing.png"} {
		if _, _, err := svc.Open(ctx, name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Open(%q): expected ErrNotFound, got %v", name, err)
		}
	}
}
