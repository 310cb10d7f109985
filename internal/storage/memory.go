package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for tests and storage-less dev
// runs. Presigned URLs are fabricated; uploads against them obviously do not
// work, which is fine for exercising the API surface.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string][]byte)}
}

// Bucket returns the configured bucket name.
func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// PresignUpload fabricates a PUT URL for the object.
func (s *MemoryStore) PresignUpload(_ context.Context, objectKey, _ string, _ time.Duration) (string, error) {
	return fmt.Sprintf("http://storage.local/%s/%s?signed=1", s.bucket, objectKey), nil
}

// GetObject returns a stored object's bytes.
func (s *MemoryStore) GetObject(_ context.Context, objectKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("get object %s: not found", objectKey)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// PutObject stores data under objectKey.
func (s *MemoryStore) PutObject(_ context.Context, objectKey string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[objectKey] = cp
	return nil
}

// RemoveObject deletes an object; missing objects are not an error.
func (s *MemoryStore) RemoveObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	return nil
}
