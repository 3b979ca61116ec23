package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/sentinel"
	"marketslip/pkg/requestcontext"
)

type memoryObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// MemoryStore is an in-process object store for local runs and tests.
// Presigned links use the memory:// scheme and are not fetchable.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "slips"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		storedAt:    requestcontext.Now(ctx),
	}
	return key, nil
}

func (m *MemoryStore) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeStorageFailure, "storage unavailable")
	}
	expires := requestcontext.Now(ctx).Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", m.bucket, url.PathEscape(key), expires), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "file not found")
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
