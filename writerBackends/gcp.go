package writerbackends

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"clipflow/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSBackend writes objects to one Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend uses the base64 service account JSON in accessInfo when
// present and application default credentials otherwise.
func NewGCSBackend(ctx context.Context, accessInfo map[string]string) (*GCSBackend, error) {
	bucket := accessInfo["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("missing required accessInfo key: bucket")
	}

	var opts []option.ClientOption
	if encoded := accessInfo["credentialsJSON"]; encoded != "" {
		credentialsJSON, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode credentialsJSON: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: accessInfo["prefix"]}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) Location(key string) string {
	return "gs://" + b.bucket + "/" + joinKey(b.prefix, key)
}

func (b *GCSBackend) Write(ctx context.Context, key string, body io.Reader, opts WriteOptions) error {
	objectName := joinKey(b.prefix, key)
	obj := b.client.Bucket(b.bucket).Object(objectName)
	if opts.Exclusive {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	wc := obj.NewWriter(ctx)
	if opts.ContentType != "" {
		wc.ContentType = opts.ContentType
	}
	if _, err := io.Copy(wc, body); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed {
			return ErrExists
		}
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, b.bucket)
	return nil
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
