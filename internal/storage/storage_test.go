package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookstore/apiserver/config"
)

type memBackend struct {
	objects map[string][]byte
	closed  bool
}

func (m *memBackend) EnsureBucket(context.Context) error { return nil }

func (m *memBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memBackend) Bucket() string { return "covers" }

func (m *memBackend) Close() error {
	m.closed = true
	return nil
}

func TestStorage_RoundTrip(t *testing.T) {
	backend := &memBackend{objects: map[string][]byte{}}
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "books/1/cover.png", strings.NewReader("png"), 3, "image/png"))

	rc, err := s.Get(ctx, "books/1/cover.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "png", string(data))

	require.NoError(t, s.Delete(ctx, "books/1/cover.png"))
	_, err = s.Get(ctx, "books/1/cover.png")
	require.True(t, errors.Is(err, ErrObjectNotFound))

	require.Equal(t, "covers", s.Bucket())
	require.NoError(t, s.Close())
	require.True(t, backend.closed)
}

func TestStorage_RejectsBadKeys(t *testing.T) {
	s := NewStorage(&memBackend{objects: map[string][]byte{}})
	ctx := context.Background()

	for _, key := range []string{"", "  ", "/books/1", "books/../etc"} {
		require.Error(t, s.Put(ctx, key, strings.NewReader("x"), 1, "image/png"), "key %q", key)
		_, err := s.Get(ctx, key)
		require.Error(t, err, "key %q", key)
		require.Error(t, s.Delete(ctx, key), "key %q", key)
	}
}

func TestNew_Disabled(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: config.StorageNone})
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "ftp"})
	require.ErrorContains(t, err, `unknown backend "ftp"`)
}

func TestNew_MinioRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{
		Backend: config.StorageMinio,
		Minio:   config.MinioConfig{Endpoint: "localhost:9000", Bucket: "covers"},
	})
	require.ErrorContains(t, err, "access key and secret key are required")
}

func TestNewGCSClient_RequiresBucket(t *testing.T) {
	_, err := NewGCSClient(context.Background(), config.GCSConfig{})
	require.ErrorContains(t, err, "gcs bucket is required")
}

func TestMapMinioError(t *testing.T) {
	other := errors.New("connection refused")
	require.Equal(t, other, mapMinioError(other))
}
