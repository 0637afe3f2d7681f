package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// defaultS3Endpoint is used when no custom endpoint is configured.
const defaultS3Endpoint = "s3.amazonaws.com"

// S3 implements Provider over any S3-compatible object store (AWS S3, MinIO,
// LocalStack). Storage keys are used directly as object keys; the minio
// client pools connections, so one S3 value is shared by all requests.
type S3 struct {
	client *minio.Client
	bucket string
}

// S3Options configures the S3 provider.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. "http://minio:9000"
	AccessKey string // optional; empty means ambient credential resolution
	SecretKey string
	UseSSL    bool
}

// NewS3 creates an S3 provider. With no explicit keys, credentials resolve
// through the standard chain (env, shared credentials file, IAM role).
func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket name is required")
	}

	endpoint := opts.Endpoint
	useSSL := opts.UseSSL
	if endpoint == "" {
		endpoint = defaultS3Endpoint
		useSSL = true
	} else if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		useSSL = u.Scheme != "http"
		endpoint = u.Host
	}

	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3{client: client, bucket: opts.Bucket}, nil
}

// Upload streams r to the object store under key and returns the key
// unchanged. size must be the exact byte count.
func (s *S3) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object %q: %v", ErrWriteFailed, key, err)
	}
	return key, nil
}

// DownloadStream opens a streaming get for key. GetObject is lazy, so the
// object is stat-ed first to surface ErrNotFound before any chunk is read.
func (s *S3) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateS3Error("get object", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close() //nolint:errcheck
		return nil, translateS3Error("stat object", key, err)
	}
	return obj, nil
}

// Delete removes the object at key. Remote deletes of absent keys are not
// errors; the object is stat-ed first so the caller learns whether anything
// was actually removed.
func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, translateS3Error("stat object", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, translateS3Error("remove object", key, err)
	}
	return true, nil
}

// Exists performs a metadata-only existence probe for key.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, translateS3Error("stat object", key, err)
	}
	return true, nil
}

// HealthCheck performs a one-key listing against the bucket. Connectivity,
// credential, and authorization failures all degrade to false.
func (s *S3) HealthCheck(ctx context.Context) bool {
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{MaxKeys: 1}) {
		if obj.Err != nil {
			return false
		}
		break
	}
	return ctx.Err() == nil
}

// isS3NotFound reports whether err is the remote's object-absent response.
func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == 404 ||
		resp.Code == "NoSuchKey" ||
		strings.Contains(resp.Code, "NotFound")
}

// translateS3Error maps a minio error into the common taxonomy: object
// absent becomes ErrNotFound, everything else (network, auth, throttling)
// becomes ErrBackend. Callers above this layer never see minio error types.
func translateS3Error(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	if isS3NotFound(err) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return fmt.Errorf("%w: %s %q: %v", ErrBackend, op, key, err)
}
