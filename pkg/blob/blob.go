// Package blob stores exported artefacts behind a minimal S3-like interface.
// The filesystem driver is the default; the memory driver backs tests and the
// s3 driver talks to AWS S3 or an S3-compatible service such as MinIO.
package blob

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Driver identifies a blob storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

var (
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blob already exists")

	// ErrNotFound is returned by Get and Head for unknown keys.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid blob key")

	// ErrUnsupported is returned when a driver lacks an optional capability.
	ErrUnsupported = errors.New("unsupported blob operation")
)

// PutOptions are optional parameters of Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// SignedURLOptions configure PresignURL.
type SignedURLOptions struct {
	// Method is GET when empty; other methods are not supported
	Method string

	// Expiry defaults to 15 minutes
	Expiry time.Duration
}

// Info describes a stored blob.
type Info struct {
	Key          string            `yaml:"key"`
	Size         int64             `yaml:"size"`
	ContentType  string            `yaml:"contentType,omitempty"`
	ETag         string            `yaml:"etag,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
	LastModified time.Time         `yaml:"lastModified"`
}

// Store is implemented by every driver.
type Store interface {
	// Put stores a new blob at key and fails with ErrExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)

	// Get returns the blob's metadata and contents; the caller closes the reader.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)

	Head(ctx context.Context, key string) (Info, error)

	// Delete removes a blob and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// List returns the blobs whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)

	// PresignURL returns a time-limited download URL for key.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)

	Driver() Driver
}

// Config selects and configures a driver.
type Config struct {
	Driver Driver

	// Root is the base directory of the fs driver
	Root string

	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Root)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	}
	return nil, errors.Errorf("unknown blob driver %q", cfg.Driver)
}

// checkKey rejects keys that could escape a driver's namespace.
func checkKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.Wrap(ErrInvalidKey, "empty key")
	case strings.HasPrefix(key, "/"):
		return errors.Wrapf(ErrInvalidKey, "absolute key %q", key)
	case strings.Contains(key, ".."):
		return errors.Wrapf(ErrInvalidKey, "key %q contains '..'", key)
	}
	return nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
