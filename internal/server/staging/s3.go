package staging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/voicemfa/internal/netx"
)

// presignTTL bounds how long a capability server may take to fetch the
// object.
const presignTTL = 5 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		_, err := c.DeleteObject(ctx, in)
		return err
	}
	uploadPresigned = netx.UploadPresigned
)

// S3Options configures the object-store backend. The credentials are static,
// as for a MinIO deployment.
type S3Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

// S3 stages artifacts as objects and hands out presigned GET URLs.
type S3 struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
	http    *http.Client
	now     func() time.Time
}

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 staging: bucket is required")
	}
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		bucket:  opts.Bucket,
		client:  client,
		presign: newS3PresignClient(client),
		http:    &http.Client{Timeout: time.Minute},
		now:     time.Now,
	}, nil
}

func (s *S3) Stage(ctx context.Context, data []byte) (*Artifact, error) {
	digest := Fingerprint(data)
	key := objectKey(s.now(), digest)
	bucket := s.bucket

	put, err := presignPutObject(s.presign, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}
	if err := uploadPresigned(ctx, s.http, put.URL, data, "audio/wav"); err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	a := &Artifact{
		Key:    key,
		Digest: digest,
		release: func(ctx context.Context) error {
			return deleteObject(s.client, ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key})
		},
	}

	get, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		_ = a.Release(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("presign get: %w", err)
	}
	a.Ref = get.URL
	return a, nil
}
