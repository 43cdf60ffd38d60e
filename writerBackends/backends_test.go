package writerbackends

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/sftp"
)

func TestLocalBackendExclusiveWrite(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(context.Background(), "local", map[string]string{"baseDir": dir}, aws.Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	key := "analysis/rekognition/job-1_20240501_120000.000000_results.json"
	if err := b.Write(context.Background(), key, strings.NewReader(`{"a":1}`), WriteOptions{Exclusive: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil || string(data) != `{"a":1}` {
		t.Fatalf("Expected written content, got %q (%v)", data, err)
	}

	err = b.Write(context.Background(), key, strings.NewReader(`{"a":2}`), WriteOptions{Exclusive: true})
	if !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if string(data) != `{"a":1}` {
		t.Errorf("Expected original content to survive, got %q", data)
	}

	if err := b.Write(context.Background(), key, strings.NewReader(`{"a":3}`), WriteOptions{}); err != nil {
		t.Errorf("Expected overwrite without Exclusive, got %v", err)
	}
}

func TestLocalBackendRejectsTraversal(t *testing.T) {
	b, _ := NewLocalBackend(map[string]string{"baseDir": t.TempDir()})
	if err := b.Write(context.Background(), "../escape.json", strings.NewReader("x"), WriteOptions{}); err == nil {
		t.Error("Expected error for traversal key")
	}
	if _, err := NewLocalBackend(map[string]string{}); err == nil {
		t.Error("Expected error without baseDir")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestLocalBackendRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewLocalBackend(map[string]string{"baseDir": dir})
	if err := b.Write(context.Background(), "a/b.json", failingReader{}, WriteOptions{Exclusive: true}); err == nil {
		t.Fatal("Expected write error")
	}
	if _, err := os.Stat(filepath.Join(dir, "a", "b.json")); !os.IsNotExist(err) {
		t.Errorf("Expected partial file to be removed, got %v", err)
	}
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	uploads []*s3.PutObjectInput
	exists  map[string]bool
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" && f.exists[key] {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.exists[key] = true
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.uploads = append(f.uploads, in)
	io.Copy(io.Discard, in.Body)
	return &manager.UploadOutput{}, nil
}

func TestS3BackendConditionalPut(t *testing.T) {
	fake := &fakeS3{exists: map[string]bool{}}
	b := NewS3BackendWithClient(fake, fake, "analysis-bucket", "")

	key := "analysis/transcribe/job-1_x_results.json"
	if err := b.Write(context.Background(), key, strings.NewReader("{}"), WriteOptions{Exclusive: true, ContentType: "application/json"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(fake.puts) != 1 || aws.ToString(fake.puts[0].IfNoneMatch) != "*" {
		t.Fatalf("Expected conditional PutObject, got %d puts", len(fake.puts))
	}
	if aws.ToString(fake.puts[0].ContentType) != "application/json" {
		t.Errorf("Expected content type, got %s", aws.ToString(fake.puts[0].ContentType))
	}
	err := b.Write(context.Background(), key, strings.NewReader("{}"), WriteOptions{Exclusive: true})
	if !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
	if got := b.Location(key); got != "s3://analysis-bucket/"+key {
		t.Errorf("Unexpected location %s", got)
	}
}

func TestS3BackendPlainWriteUsesUploader(t *testing.T) {
	fake := &fakeS3{exists: map[string]bool{}}
	b := NewS3BackendWithClient(fake, fake, "bucket", "prefix")
	if err := b.Write(context.Background(), "subtitles/a.vtt", strings.NewReader("WEBVTT"), WriteOptions{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(fake.uploads) != 1 || len(fake.puts) != 0 {
		t.Fatalf("Expected one managed upload, got %d uploads %d puts", len(fake.uploads), len(fake.puts))
	}
	if aws.ToString(fake.uploads[0].Key) != "prefix/subtitles/a.vtt" {
		t.Errorf("Unexpected key %s", aws.ToString(fake.uploads[0].Key))
	}
}

func TestSFTPWriteExclusive(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()
	defer server.Close()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("Failed to create sftp client: %v", err)
	}
	defer client.Close()

	remote := "/results/analysis/twelvelabs/job-1_x_results.json"
	if err := writeSFTP(client, remote, strings.NewReader("payload"), WriteOptions{Exclusive: true}); err != nil {
		t.Fatalf("writeSFTP failed: %v", err)
	}
	f, err := client.Open(remote)
	if err != nil {
		t.Fatalf("Failed to open remote file: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "payload" {
		t.Errorf("Expected payload, got %q", data)
	}

	err = writeSFTP(client, remote, strings.NewReader("again"), WriteOptions{Exclusive: true})
	if !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), "ftp", nil, aws.Config{}); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := Open(context.Background(), "s3", map[string]string{}, aws.Config{}); err == nil {
		t.Error("Expected error for missing bucket")
	}
	if _, err := Open(context.Background(), "sftp", map[string]string{"host": "h", "user": "u", "basePath": "/r"}, aws.Config{}); err == nil {
		t.Error("Expected error without auth method")
	}
}
