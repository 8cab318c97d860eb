package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sufield/popc/internal/ports"
)

// ObjectPutter is the part of *s3.Client the store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the part of *s3.PresignClient the store uses.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an S3 store.
type S3Options struct {
	Bucket string
	Region string
	Prefix string
	// URLTTL is the lifetime of presigned GET URLs. Zero returns s3://
	// URLs instead.
	URLTTL time.Duration
}

// S3 stores blobs as objects in one bucket.
type S3 struct {
	client    ObjectPutter
	presigner GetPresigner
	opts      S3Options
}

// NewS3 builds a client from the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3WithClient(client, s3.NewPresignClient(client), opts), nil
}

// NewS3WithClient uses the given clients. presigner may be nil.
func NewS3WithClient(client ObjectPutter, presigner GetPresigner, opts S3Options) *S3 {
	return &S3{client: client, presigner: presigner, opts: opts}
}

// Put uploads data and returns a presigned GET URL when configured.
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	objectKey := path.Join(s.opts.Prefix, key)

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.opts.Bucket, objectKey, err)
	}

	if s.presigner == nil || s.opts.URLTTL <= 0 {
		return "s3://" + s.opts.Bucket + "/" + objectKey, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.opts.URLTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", s.opts.Bucket, objectKey, err)
	}
	return req.URL, nil
}

var _ ports.BlobStore = (*S3)(nil)
