package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"r2-share/internal/config"
	"r2-share/internal/logging"
)

const (
	defaultOpTimeout       = 30 * time.Second
	defaultTransferTimeout = 10 * time.Minute
	defaultRetryBase       = 100 * time.Millisecond

	// streamPartSize bounds the memory minio-go buffers per part when the
	// upload length is unknown.
	streamPartSize = 16 << 20

	breakerMaxFailures = 5
	breakerTimeout     = 30 * time.Second
)

// Client is an object store adapter backed by minio-go. It is safe for
// concurrent use.
type Client struct {
	mc     *minio.Client
	bucket string

	opTimeout           time.Duration
	transferTimeout     time.Duration
	retries             int
	retryBase           time.Duration
	listStatConcurrency int

	breaker *CircuitBreaker
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://<account>.r2.cloudflarestorage.com".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false, fmt.Errorf("endpoint scheme must be http or https")
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// New builds a client from cfg. Missing or malformed settings fail here
// with a *config.ConfigError; no network call is made. Use Ping to check
// that the bucket is reachable.
func New(cfg config.Store) (*Client, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, config.Missing("R2_ENDPOINT_URL")
	case cfg.AccessKeyID == "":
		return nil, config.Missing("R2_ACCESS_KEY_ID")
	case cfg.SecretAccessKey == "":
		return nil, config.Missing("R2_SECRET_ACCESS_KEY_ID")
	case cfg.Bucket == "":
		return nil, config.Missing("R2_BUCKET_NAME")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, config.Invalid("R2_ENDPOINT_URL", err.Error())
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, config.Invalid("R2_ENDPOINT_URL", err.Error())
	}

	c := &Client{
		mc:                  mc,
		bucket:              cfg.Bucket,
		opTimeout:           cfg.OpTimeout,
		transferTimeout:     cfg.TransferTimeout,
		retries:             cfg.Retries,
		retryBase:           defaultRetryBase,
		listStatConcurrency: cfg.ListStatConcurrency,
		breaker:             NewCircuitBreaker(breakerMaxFailures, breakerTimeout, countsAsFailure),
	}
	if c.opTimeout <= 0 {
		c.opTimeout = defaultOpTimeout
	}
	if c.transferTimeout <= 0 {
		c.transferTimeout = defaultTransferTimeout
	}
	return c, nil
}

// Bucket returns the bucket name the client operates on.
func (c *Client) Bucket() string {
	return c.bucket
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Ping checks that the bucket exists and is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	return c.do(ctx, "ping", "", true, func(ctx context.Context) error {
		exists, err := c.mc.BucketExists(ctx, c.bucket)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("bucket does not exist: %s", c.bucket)
		}
		return nil
	})
}

// Put streams r to key, replacing any existing object. size may be -1
// when the length is unknown. Failed attempts are retried only when r
// can be rewound. A read error from r comes back as a *BodyError.
func (c *Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 {
		opts.PartSize = streamPartSize
	}

	seeker, rewindable := r.(io.Seeker)
	body := &bodyReader{r: r}
	attempt := 0
	var up minio.UploadInfo
	err := c.do(ctx, "put", key, rewindable, func(ctx context.Context) error {
		if attempt > 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return &BodyError{Err: err}
			}
		}
		attempt++
		body.err = nil

		info, err := c.mc.PutObject(ctx, c.bucket, key, body, size, opts)
		if err != nil {
			if body.err != nil {
				return &BodyError{Err: body.err}
			}
			return err
		}
		up = info
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}

	info, err := c.Stat(ctx, key)
	if err != nil {
		logging.Warn("stat_after_put_failed", logging.Fields{"path": key, "err": err.Error()})
		return ObjectInfo{
			Key:          key,
			Size:         up.Size,
			LastModified: time.Now().UTC(),
			ContentType:  contentType,
			ETag:         up.ETag,
		}, nil
	}
	return info, nil
}

// Get opens key for reading. The transfer timeout stays armed until the
// returned object is closed.
func (c *Client) Get(ctx context.Context, key string) (*Object, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)

	var (
		obj  *minio.Object
		stat minio.ObjectInfo
	)
	err := c.do(ctx, "get", key, true, func(ctx context.Context) error {
		o, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		// Force an early error for missing object / auth issues.
		st, err := o.Stat()
		if err != nil {
			_ = o.Close()
			return err
		}
		obj, stat = o, st
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &Object{
		ReadCloser: &cancelOnClose{ReadCloser: obj, cancel: cancel},
		Info:       toObjectInfo(stat),
	}, nil
}

// Stat returns the metadata of key.
func (c *Client) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var stat minio.ObjectInfo
	err := c.do(ctx, "stat", key, true, func(ctx context.Context) error {
		st, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return err
		}
		stat = st
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return toObjectInfo(stat), nil
}

// List returns every object in the bucket in store order. minio-go
// follows continuation tokens, so buckets larger than one page are
// returned in full.
func (c *Client) List(ctx context.Context) ([]ObjectInfo, error) {
	lctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	var out []ObjectInfo
	err := c.do(lctx, "list", "", true, func(ctx context.Context) error {
		out = out[:0]
		for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err != nil {
				return obj.Err
			}
			out = append(out, toObjectInfo(obj))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.listStatConcurrency > 0 {
		c.fillContentTypes(ctx, out)
	}
	return out, nil
}

// fillContentTypes stats objects whose list entry carries no content
// type. Failures leave the entry untouched.
func (c *Client) fillContentTypes(ctx context.Context, infos []ObjectInfo) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.listStatConcurrency)

	for i := range infos {
		if infos[i].ContentType != "" {
			continue
		}
		g.Go(func() error {
			st, err := c.Stat(gctx, infos[i].Key)
			if err != nil {
				logging.Debug("list_stat_failed", logging.Fields{"path": infos[i].Key, "err": err.Error()})
				return nil
			}
			infos[i].ContentType = st.ContentType
			return nil
		})
	}
	_ = g.Wait()
}

// Delete removes key. S3 deletes are silent about missing keys, so the
// key is checked first and ErrNotFound returned when absent.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.Stat(ctx, key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	return c.do(ctx, "delete", key, true, func(ctx context.Context) error {
		return c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	})
}

func toObjectInfo(o minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          o.Key,
		Size:         o.Size,
		LastModified: o.LastModified.UTC(),
		ContentType:  o.ContentType,
		ETag:         o.ETag,
	}
}

// cancelOnClose releases the transfer context once the body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
