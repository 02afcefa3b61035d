package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by Bucket.Open for a missing key.
var ErrObjectNotFound = errors.New("archive object not found")

// BucketConfig locates an S3-compatible bucket.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// Bucket stores archives in S3-compatible object storage.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewBucket builds a client for cfg. Credentials fall back to the
// MINIO_ROOT_USER/MINIO_ROOT_PASSWORD environment when no keys are given.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object storage bucket is required")
	}

	creds := credentials.NewEnvMinio()
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}

	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key is the object key name is stored under.
func (b *Bucket) Key(name string) string {
	return path.Join(b.prefix, name)
}

// Ensure creates the bucket when it does not exist.
func (b *Bucket) Ensure(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", b.bucket, err)
	}
	return nil
}

// Upload streams whatever write produces to name.
func (b *Bucket) Upload(ctx context.Context, name string, write func(io.Writer) error) error {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := b.client.PutObject(ctx, b.bucket, b.Key(name), pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		_ = pr.CloseWithError(err)
		done <- err
	}()

	if err := write(pw); err != nil {
		_ = pw.CloseWithError(err)
		<-done
		return err
	}
	if err := pw.Close(); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return fmt.Errorf("uploading %s: %w", b.Key(name), err)
	}
	return nil
}

// Open returns a reader for name.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := b.Key(name)
	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	return obj, nil
}

// Remove deletes name. A missing object is not an error.
func (b *Bucket) Remove(ctx context.Context, name string) error {
	err := b.client.RemoveObject(ctx, b.bucket, b.Key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
