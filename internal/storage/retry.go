package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"

	"r2-share/internal/logging"
)

// isNotFound reports whether a raw minio error means the key is absent.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

// isTransient reports whether a raw minio error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
		return true
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	if resp.StatusCode != 0 {
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// countsAsFailure decides what the circuit breaker records.
func countsAsFailure(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

func (c *Client) backoffPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryBase
	eb.MaxInterval = 20 * c.retryBase
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retries)), ctx)
}

// do runs fn through the circuit breaker, retrying transient failures
// when retryable is set. A missing key comes back as ErrNotFound and a
// failed upload body as its *BodyError; every other failure as a
// *StoreError.
func (c *Client) do(ctx context.Context, op, key string, retryable bool, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		var berr *BodyError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &berr):
			return backoff.Permanent(err)
		case isNotFound(err):
			return backoff.Permanent(ErrNotFound)
		case !retryable || !isTransient(err):
			return backoff.Permanent(err)
		}
		logging.Warn("store_retry", logging.Fields{
			"op":      op,
			"path":    key,
			"attempt": attempt,
			"err":     err.Error(),
		})
		return err
	}

	err := c.breaker.Execute(func() error {
		return backoff.Retry(operation, c.backoffPolicy(ctx))
	})
	var berr *BodyError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &berr):
		return berr
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return &StoreError{Op: op, Key: key, Err: err}
	}
}
