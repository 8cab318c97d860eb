package blob_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/popc/internal/adapters/outbound/blob"
)

func TestFSPut(t *testing.T) {
	t.Parallel()

	t.Run("writes file and returns base URL", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store, err := blob.NewFS(dir, "https://cdn.example.com/assets/")
		require.NoError(t, err)

		u, err := store.Put(context.Background(), "abc123", []byte("jpeg bytes"), "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/assets/abc123", u)

		got, err := os.ReadFile(filepath.Join(dir, "abc123"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg bytes", string(got))
	})

	t.Run("file URL without base", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store, err := blob.NewFS(dir, "")
		require.NoError(t, err)

		u, err := store.Put(context.Background(), "k", []byte("x"), "")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(u, "file://"))
		assert.True(t, strings.HasSuffix(u, "/k"))
	})

	t.Run("replaces existing blob", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store, err := blob.NewFS(dir, "")
		require.NoError(t, err)

		_, err = store.Put(context.Background(), "k", []byte("one"), "")
		require.NoError(t, err)
		_, err = store.Put(context.Background(), "k", []byte("two"), "")
		require.NoError(t, err)

		got, err := os.ReadFile(filepath.Join(dir, "k"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary files must not remain")
	})

	t.Run("rejects escaping keys", func(t *testing.T) {
		t.Parallel()
		store, err := blob.NewFS(t.TempDir(), "")
		require.NoError(t, err)

		for _, key := range []string{"", "../x", "a/b", `a\b`} {
			_, err := store.Put(context.Background(), key, []byte("x"), "")
			assert.ErrorIs(t, err, blob.ErrInvalidKey, key)
		}
	})
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.amazonaws.com/" + *in.Key + "?X-Amz-Signature=sig"}, nil
}

func TestS3Put(t *testing.T) {
	t.Parallel()

	t.Run("presigned URL", func(t *testing.T) {
		t.Parallel()
		api := &fakeS3{}
		pre := &fakePresigner{}
		store := blob.NewS3WithClient(api, pre, blob.S3Options{Bucket: "media", Prefix: "verified", URLTTL: 15 * time.Minute})

		u, err := store.Put(context.Background(), "abc", []byte("data"), "image/png")
		require.NoError(t, err)
		assert.Equal(t, "https://media.s3.amazonaws.com/verified/abc?X-Amz-Signature=sig", u)
		assert.Equal(t, 15*time.Minute, pre.expires)

		require.Len(t, api.puts, 1)
		assert.Equal(t, "verified/abc", *api.puts[0].Key)
		assert.Equal(t, "image/png", *api.puts[0].ContentType)
		assert.Equal(t, int64(4), *api.puts[0].ContentLength)
		assert.Equal(t, "data", string(api.body))
	})

	t.Run("s3 URL without ttl", func(t *testing.T) {
		t.Parallel()
		store := blob.NewS3WithClient(&fakeS3{}, nil, blob.S3Options{Bucket: "media"})

		u, err := store.Put(context.Background(), "abc", []byte("data"), "")
		require.NoError(t, err)
		assert.Equal(t, "s3://media/abc", u)
	})

	t.Run("upload failure", func(t *testing.T) {
		t.Parallel()
		store := blob.NewS3WithClient(&fakeS3{err: errors.New("throttled")}, nil, blob.S3Options{Bucket: "media"})

		_, err := store.Put(context.Background(), "abc", []byte("data"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})
}
