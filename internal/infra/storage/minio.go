package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
)

// MinIO stores objects in an S3-compatible bucket under the same fan-out
// keys as the filesystem backend, optionally below a key prefix.
type MinIO struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	group      singleflight.Group
	observer   Observer
}

// MinIOOptions configures the bucket backend.
type MinIOOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinIO connects and makes sure the bucket exists.
func NewMinIO(ctx context.Context, opts MinIOOptions, observer Observer) (*MinIO, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, err
		}
	}

	return &MinIO{
		client:     cli,
		bucketName: opts.Bucket,
		region:     opts.Region,
		prefix:     strings.Trim(opts.Prefix, "/"),
		observer:   observerOrNop(observer),
	}, nil
}

func (s *MinIO) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *MinIO) Write(ctx context.Context, data []byte) (objects.Object, error) {
	hash := objects.Address(data)
	obj := objects.Object{Hash: hash, Path: objects.PathFor(hash), Size: int64(len(data))}

	existed, err := sharedWrite(ctx, &s.group, hash, func(ctx context.Context) (bool, error) {
		key := s.key(obj.Path)
		if _, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{}); err == nil {
			return true, nil
		} else if !isNoSuchKey(err) {
			return false, fmt.Errorf("stat object %s: %w", key, err)
		}
		_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), obj.Size, minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{"Content-Sha256": hash},
		})
		if err != nil {
			return false, fmt.Errorf("put object %s: %w", key, err)
		}
		return false, nil
	})
	if err != nil {
		return objects.Object{}, err
	}
	s.observer.ObjectStored("minio", obj.Size, existed)
	return obj, nil
}

func (s *MinIO) open(ctx context.Context, path string) (*minio.Object, error) {
	if _, err := objects.ParsePath(path); err != nil {
		return nil, err
	}
	key := s.key(path)
	// GetObject is lazy; stat first so a missing key maps to ErrNotFound.
	if _, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, custody.NotFound("object", path)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

func (s *MinIO) Read(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, custody.NotFound("object", path)
		}
		return nil, fmt.Errorf("reading object %s: %w", path, err)
	}
	return data, nil
}

func (s *MinIO) Verify(ctx context.Context, path, expectedHash string) (bool, string, error) {
	obj, err := s.open(ctx, path)
	if err != nil {
		return false, "", err
	}
	defer obj.Close()
	actual, err := objects.AddressOf(obj)
	if err != nil {
		return false, "", fmt.Errorf("hashing object %s: %w", path, err)
	}
	ok := actual == normalizeHash(expectedHash)
	s.observer.ObjectVerified("minio", ok)
	return ok, actual, nil
}
