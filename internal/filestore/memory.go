// Package filestore keeps uploaded claim evidence in object storage.
// References returned by Put have the form <scheme>://<bucket>/<key>.
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Object is a stored file held by MemoryStore.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps evidence in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]Object
}

var (
	_ ports.FileStore = (*MemoryStore)(nil)
	_ ports.URLSigner = (*MemoryStore)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "evidence"
	}
	return &MemoryStore{bucket: bucket, objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("failed to read evidence: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: buf.Bytes()}
	m.mu.Unlock()
	return "mem://" + m.bucket + "/" + key, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, ok := m.Get(key); !ok {
		return "", fmt.Errorf("evidence %s: %w", key, ports.ErrNotFound)
	}
	q := url.Values{"expires": {ttl.String()}}
	return "mem://" + m.bucket + "/" + key + "?" + q.Encode(), nil
}
