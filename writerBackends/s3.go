package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"

	"clipflow/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API is the part of the S3 client the backend uses directly.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader streams bodies of unknown length.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Backend writes objects to one bucket. Exclusive writes use a conditional
// PutObject; plain writes go through the multipart upload manager.
type S3Backend struct {
	client   S3API
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Backend builds the client from static keys in accessInfo when they
// are present, otherwise from the shared AWS config.
func NewS3Backend(accessInfo map[string]string, awsCfg aws.Config) (*S3Backend, error) {
	bucket := accessInfo["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("missing required accessInfo key: bucket")
	}

	var client *s3.Client
	if accessInfo["accessKey"] != "" && accessInfo["secretKey"] != "" {
		region := accessInfo["region"]
		if region == "" {
			region = awsCfg.Region
		}
		client = s3.New(s3.Options{
			Region:      region,
			Credentials: credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], ""),
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}
	return NewS3BackendWithClient(client, manager.NewUploader(client), bucket, accessInfo["prefix"]), nil
}

func NewS3BackendWithClient(client S3API, uploader Uploader, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, uploader: uploader, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Location(key string) string {
	return "s3://" + b.bucket + "/" + joinKey(b.prefix, key)
}

func (b *S3Backend) Write(ctx context.Context, key string, body io.Reader, opts WriteOptions) error {
	objectKey := joinKey(b.prefix, key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	var err error
	if opts.Exclusive {
		input.IfNoneMatch = aws.String("*")
		_, err = b.client.PutObject(ctx, input)
		if isPreconditionFailed(err) {
			return ErrExists
		}
	} else {
		_, err = b.uploader.Upload(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", objectKey, b.bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectKey, b.bucket)
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
