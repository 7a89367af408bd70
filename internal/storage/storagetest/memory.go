// Package storagetest provides an in-memory object store for tests.
package storagetest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"sync"
	"time"

	"r2-share/internal/storage"
)

type object struct {
	data []byte
	info storage.ObjectInfo
}

// Memory implements the object store contract over a map. Keys are
// listed in byte order. Content types are kept exactly as stored, so an
// empty type stays empty.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned as a *storage.StoreError.
	Fail func(op, key string) error

	// Now stamps LastModified. Defaults to time.Now.
	Now func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object), Now: time.Now}
}

func (m *Memory) fail(op, key string) error {
	if m.Fail == nil {
		return nil
	}
	if err := m.Fail(op, key); err != nil {
		return &storage.StoreError{Op: op, Key: key, Err: err}
	}
	return nil
}

// Ping reports the injected failure, if any.
func (m *Memory) Ping(ctx context.Context) error {
	return m.fail("ping", "")
}

// Put reads r to EOF and stores it under key. size is advisory.
func (m *Memory) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	if err := m.fail("put", key); err != nil {
		return storage.ObjectInfo{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, &storage.BodyError{Err: err}
	}

	sum := md5.Sum(data)
	info := storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: m.Now().UTC().Truncate(time.Second),
		ContentType:  contentType,
		ETag:         hex.EncodeToString(sum[:]),
	}

	m.mu.Lock()
	m.objects[key] = object{data: data, info: info}
	m.mu.Unlock()
	return info, nil
}

// Get returns a copy of the stored bytes.
func (m *Memory) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := m.fail("get", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	o, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		ReadCloser: io.NopCloser(bytes.NewReader(o.data)),
		Info:       o.info,
	}, nil
}

// Stat returns the metadata of key.
func (m *Memory) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if err := m.fail("stat", key); err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return o.info, nil
}

// List returns every object in byte order of key.
func (m *Memory) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if err := m.fail("list", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]storage.ObjectInfo, 0, len(m.objects))
	for _, o := range m.objects {
		out = append(out, o.info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes key, or returns storage.ErrNotFound.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := m.fail("delete", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
