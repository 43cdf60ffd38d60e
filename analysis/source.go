package analysis

import (
	"fmt"
	"strings"

	"clipflow/models"
)

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs a bucket and key: %s", uri)
	}
	return bucket, key, nil
}

// S3Source resolves an s3:// artifact into a source reference.
func S3Source(artifact string) (models.SourceRef, error) {
	bucket, key, err := ParseS3URI(artifact)
	if err != nil {
		return models.SourceRef{}, err
	}
	return models.SourceRef{Artifact: artifact, Bucket: bucket, Key: key}, nil
}
