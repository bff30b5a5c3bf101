package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// getContentType extracts Content-Type from headers with a default fallback.
func getContentType(headers nats.Header) string {
	if headers != nil {
		if ct := headers.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// JetStreamBackend keeps objects in a NATS JetStream object store bucket.
type JetStreamBackend struct {
	conn   *nats.Conn
	store  jetstream.ObjectStore
	bucket string
}

var _ Backend = (*JetStreamBackend)(nil)

// NewJetStreamBackend connects to natsURL and opens or creates bucket.
func NewJetStreamBackend(ctx context.Context, natsURL, bucket string) (*JetStreamBackend, error) {
	conn, err := nats.Connect(natsURL, nats.Name("nexus-chat-media"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	// Try to get existing bucket first
	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Chat media attachments",
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create object store bucket: %w", err)
		}
	}

	return &JetStreamBackend{conn: conn, store: store, bucket: bucket}, nil
}

// Put stores an object with its content type header.
func (b *JetStreamBackend) Put(ctx context.Context, name string, r io.Reader, _ int64, contentType string) error {
	meta := jetstream.ObjectMeta{
		Name: name,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	if _, err := b.store.Put(ctx, meta, r); err != nil {
		return fmt.Errorf("store object: %w", err)
	}
	return nil
}

// Open streams an object back.
func (b *JetStreamBackend) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	result, err := b.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get object: %w", err)
	}

	info, err := result.Info()
	if err != nil {
		result.Close()
		return nil, nil, fmt.Errorf("get object info: %w", err)
	}

	return result, &ObjectInfo{
		Name:        info.Name,
		Size:        int64(info.Size),
		ContentType: getContentType(info.Headers),
		ModTime:     info.ModTime,
	}, nil
}

// Close closes the NATS connection.
func (b *JetStreamBackend) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
