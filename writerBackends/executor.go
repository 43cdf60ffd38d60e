package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ErrExists is returned by an exclusive write when the key is already taken.
var ErrExists = errors.New("writerbackends: object already exists")

// WriteOptions tune a single write.
type WriteOptions struct {
	ContentType string
	Exclusive   bool // fail with ErrExists instead of overwriting
}

// Backend is a durable object sink addressed by slash separated keys.
type Backend interface {
	Name() string
	Write(ctx context.Context, key string, body io.Reader, opts WriteOptions) error
	// Location renders key the way an operator would look it up.
	Location(key string) string
}

// Open builds the backend named by backendType from its access info. awsCfg
// is only consulted by the s3 backend when no static keys are given.
func Open(ctx context.Context, backendType string, accessInfo map[string]string, awsCfg aws.Config) (Backend, error) {
	switch backendType {
	case "local":
		b, err := NewLocalBackend(accessInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to open local backend: %w", err)
		}
		return b, nil
	case "s3":
		b, err := NewS3Backend(accessInfo, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open S3 backend: %w", err)
		}
		return b, nil
	case "gcs":
		b, err := NewGCSBackend(ctx, accessInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to open GCS backend: %w", err)
		}
		return b, nil
	case "sftp":
		b, err := NewSFTPBackend(accessInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to open SFTP backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// joinKey prefixes key with prefix, if any.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
