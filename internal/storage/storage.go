// Package storage adapts an S3-compatible object store (Cloudflare R2,
// MinIO) to the small put/get/list/delete contract the file registry
// needs.
package storage

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound reports that the requested key does not exist. It is an
// expected outcome and is never wrapped in a StoreError.
var ErrNotFound = errors.New("object not found")

// ObjectInfo is the metadata the store keeps for one object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// Object is a readable object body. Callers must Close it.
type Object struct {
	io.ReadCloser
	Info ObjectInfo
}

// StoreError wraps a failed call to the object store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call later may succeed.
func (e *StoreError) Temporary() bool {
	return errors.Is(e.Err, ErrCircuitOpen) || isTransient(e.Err)
}

// BodyError reports that reading the caller's upload body failed. The
// store is not at fault, so it is neither retried nor counted by the
// circuit breaker.
type BodyError struct {
	Err error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("read upload body: %v", e.Err)
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

// bodyReader remembers the first read error of the upload body so a
// failed PutObject can be blamed on the right side.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}
