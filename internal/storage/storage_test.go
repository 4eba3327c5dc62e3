package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
	deleted      []string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryBackend) EnsureBucket(ctx context.Context) error { return nil }

func (m *memoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBackend) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) Bucket() string { return "test" }

func TestStoreGeneratesUniqueKeys(t *testing.T) {
	backend := newMemoryBackend()
	s := NewStorage(backend)
	ctx := context.Background()

	first, err := s.Store(ctx, []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	second, err := s.Store(ctx, []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "listings/"))
	assert.True(t, strings.HasSuffix(first, ".png"))
	assert.Equal(t, "image/png", backend.contentTypes[first])

	rc, err := s.Open(ctx, first)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestStoreRejectsUnsupportedType(t *testing.T) {
	s := NewStorage(newMemoryBackend())
	_, err := s.Store(context.Background(), []byte("%PDF"), "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
	assert.False(t, SupportedContentType("application/pdf"))
	assert.True(t, SupportedContentType("image/jpeg"))
}

func TestStorePropagatesBackendError(t *testing.T) {
	backend := newMemoryBackend()
	backend.putErr = errors.New("bucket offline")
	_, err := NewStorage(backend).Store(context.Background(), []byte("x"), "image/jpeg")
	assert.EqualError(t, err, "bucket offline")
}

func TestRemoveSkipsEmptyKey(t *testing.T) {
	backend := newMemoryBackend()
	s := NewStorage(backend)

	require.NoError(t, s.Remove(context.Background(), ""))
	assert.Empty(t, backend.deleted)

	require.NoError(t, s.Remove(context.Background(), "listings/a.jpg"))
	assert.Equal(t, []string{"listings/a.jpg"}, backend.deleted)
}
