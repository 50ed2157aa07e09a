package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LocalStorage keeps archived media in a single directory.
type LocalStorage struct {
	Dir string
}

func (ls *LocalStorage) SaveFile(_ context.Context, filename string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(ls.Dir, 0755); err != nil {
		return "", err
	}
	fullPath := filepath.Join(ls.Dir, filepath.Base(filename))
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", err
	}
	return fullPath, nil
}

// DeleteFile removes a file previously returned by SaveFile. A missing file
// is not an error.
func (ls *LocalStorage) DeleteFile(_ context.Context, location string) error {
	err := os.Remove(filepath.Join(ls.Dir, filepath.Base(location)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// S3Options describes an S3-compatible bucket for archived media.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// PublicURL is the prefix of the locations SaveFile returns. It defaults
	// to a virtual-host style URL of the bucket.
	PublicURL string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// S3Storage keeps archived media in a bucket. Locations it returns are
// public URLs; DeleteFile accepts them back.
type S3Storage struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Storage connects to the bucket and checks that it exists. Without
// static keys the instance's IAM role is used.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
	if endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("S3 endpoint and bucket are required")
	}

	creds := credentials.NewIAM("")
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	}
	client, err := minio.New(endpoint, &minio.Options{Creds: creds, Secure: opts.UseSSL, Region: opts.Region})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + opts.Bucket + "." + endpoint
	}
	return &S3Storage{
		client:    client,
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

func (s *S3Storage) key(filename string) string {
	name := path.Base(filename)
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3Storage) SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	key := s.key(filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}

// DeleteFile removes the object behind a location returned by SaveFile.
// A bare file name is resolved under the prefix.
func (s *S3Storage) DeleteFile(ctx context.Context, location string) error {
	if strings.TrimSpace(location) == "" {
		return nil
	}
	key := strings.TrimPrefix(location, s.publicURL+"/")
	if key == location {
		key = s.key(location)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
