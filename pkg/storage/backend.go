// Package storage publishes scan artifacts to a local directory or S3.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// BlobStore defines the interface for abstract storage backends.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open returns the store for target: "s3://bucket/prefix" or a local directory.
func Open(cfg aws.Config, target string) (BlobStore, error) {
	rest, ok := strings.CutPrefix(target, "s3://")
	if !ok {
		if target == "" {
			return nil, fmt.Errorf("storage.Open: empty target")
		}
		return openLocal(target)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("storage.Open: s3 target %q: missing bucket", target)
	}
	store := NewS3Store(cfg, bucket)
	store.Prefix = strings.Trim(prefix, "/")
	return store, nil
}
