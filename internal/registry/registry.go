// Package registry is the file registry: it validates requests, maps
// stored objects to FileRecords and orders listings. It keeps no state
// of its own; the object store is the system of record.
package registry

import (
	"context"
	"errors"
	"io"
	"time"

	"r2-share/internal/config"
	"r2-share/internal/storage"
)

// DefaultContentType is used when neither the client nor the store
// supplies a MIME type.
const DefaultContentType = "application/octet-stream"

var (
	// ErrNotFound is the store's not-found sentinel, re-exported so callers
	// need not import storage to test for it.
	ErrNotFound = storage.ErrNotFound

	// ErrTooLarge reports an upload above the configured limit.
	ErrTooLarge = errors.New("file too large")
)

// BodyError reports that the upload body could not be read, typically a
// client that disconnected mid-transfer.
type BodyError = storage.BodyError

// ValidationError is a client mistake. Message is safe to show the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ObjectStore is what the registry needs from the object store.
// *storage.Client and *storagetest.Memory satisfy it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Get(ctx context.Context, key string) (*storage.Object, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// FileRecord is the listing entry for one stored file.
type FileRecord struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType"`
	SizeText     string    `json:"sizeText"`
}

// Options tunes a Service.
type Options struct {
	// MaxUploadBytes caps a single upload. Zero means the 1 GiB default.
	MaxUploadBytes int64
}

// Service implements the registry operations over an ObjectStore. It is
// safe for concurrent use when the store is.
type Service struct {
	store    ObjectStore
	maxBytes int64
}

// New returns a Service backed by store.
func New(store ObjectStore, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	return &Service{store: store, maxBytes: opts.MaxUploadBytes}
}

// MaxUploadBytes returns the effective upload limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

// ListFiles returns every stored file, sorted by ComparePaths.
func (s *Service) ListFiles(ctx context.Context) ([]FileRecord, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]FileRecord, 0, len(infos))
	for _, info := range infos {
		records = append(records, toRecord(info))
	}
	SortRecords(records)
	return records, nil
}

// UploadFile stores body under name, replacing any existing file. size
// is -1 when the length is unknown. It returns the stored record once the
// write has completed.
func (s *Service) UploadFile(ctx context.Context, name, mimeType string, body io.Reader, size int64) (FileRecord, error) {
	if err := ValidateName(name); err != nil {
		return FileRecord{}, err
	}
	if body == nil {
		return FileRecord{}, &ValidationError{Message: "missing file"}
	}
	if size > s.maxBytes {
		return FileRecord{}, ErrTooLarge
	}
	if mimeType == "" {
		mimeType = DefaultContentType
	}

	lr := newLimitReader(body, s.maxBytes)
	info, err := s.store.Put(ctx, name, lr, size, mimeType)
	if lr.exceeded() {
		return FileRecord{}, ErrTooLarge
	}
	if err != nil {
		return FileRecord{}, err
	}
	return toRecord(info), nil
}

// DownloadFile opens path for reading. The caller must close the object.
func (s *Service) DownloadFile(ctx context.Context, path string) (*storage.Object, error) {
	if path == "" {
		return nil, &ValidationError{Message: "missing path"}
	}
	obj, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if obj.Info.ContentType == "" {
		obj.Info.ContentType = DefaultContentType
	}
	return obj, nil
}

// DeleteFile removes path.
func (s *Service) DeleteFile(ctx context.Context, path string) error {
	if path == "" {
		return &ValidationError{Message: "missing path"}
	}
	return s.store.Delete(ctx, path)
}

func toRecord(info storage.ObjectInfo) FileRecord {
	ct := info.ContentType
	if ct == "" {
		ct = DefaultContentType
	}
	return FileRecord{
		Path:         info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  ct,
		SizeText:     FormatSize(info.Size),
	}
}
