package storage

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "scans/a.json", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "scans/b.json", []byte(`{"b":2}`)))

	got, err := store.Get(ctx, "scans/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	keys, err := store.List(ctx, "scans")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"scans/a.json", "scans/b.json"}, keys)

	keys, err = store.List(ctx, "scans/")
	require.NoError(t, err)
	assert.Equal(t, []string{"scans/a.json", "scans/b.json"}, keys)

	keys, err = store.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, store.Put(ctx, "ledger.jsonl", []byte("one\n")))
	require.NoError(t, store.Put(ctx, "ledger.jsonl", []byte("one\ntwo\n")))

	got, err := store.Get(ctx, "ledger.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(got))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
	info, err := os.Stat(filepath.Join(root, "ledger.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	_, err := store.Get(ctx, "scans/none.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "storage.Local.Get scans/none.json")

	for _, key := range []string{"", "../escape.json", "scans/../../escape.json", "scans//a.json"} {
		err := store.Put(ctx, key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	_, err = store.List(ctx, "../")
	assert.ErrorIs(t, err, ErrInvalidKey)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Put(cancelled, "a.json", nil), context.Canceled)
}

func TestOpen(t *testing.T) {
	store, err := Open(aws.Config{Region: "us-east-1"}, "s3://reports/team/finops/")
	require.NoError(t, err)
	s3s, ok := store.(*S3Store)
	require.True(t, ok)
	assert.Equal(t, "reports", s3s.Bucket)
	assert.Equal(t, "team/finops", s3s.Prefix)

	dir := filepath.Join(t.TempDir(), "reports", "nightly")
	store, err = Open(aws.Config{}, dir)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
	assert.DirExists(t, dir, "local targets are created on open")

	_, err = Open(aws.Config{}, "s3:///nobucket")
	assert.Error(t, err)
	_, err = Open(aws.Config{}, "")
	assert.Error(t, err)
}

type memS3 struct {
	objects map[string][]byte
}

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(m.objects[*in.Key]))}, nil
}

func (m *memS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k := range m.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func TestS3Store_Prefix(t *testing.T) {
	ctx := context.Background()
	mem := &memS3{objects: map[string][]byte{}}
	store := &S3Store{Client: mem, Bucket: "reports", Prefix: "finops"}

	require.NoError(t, store.Put(ctx, "scan-1/findings.json", []byte("[]")))
	assert.Contains(t, mem.objects, "finops/scan-1/findings.json")

	got, err := store.Get(ctx, "scan-1/findings.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	keys, err := store.List(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-1/findings.json"}, keys)
}
