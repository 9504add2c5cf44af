package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	appcfg "picshare/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectPutter is the subset of *s3.Client the store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client for AWS or any S3 compatible endpoint (MinIO,
// R2). Static keys are used when given, the default chain otherwise.
func NewS3Client(ctx context.Context, cfg appcfg.S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3ImageStore uploads images to one bucket under
// <prefix>/<yyyy>/<mm>/<dd>/<uuid>.<ext>.
type S3ImageStore struct {
	client        ObjectPutter
	bucket        string
	publicBaseURL string
	maxBytes      int
	now           func() time.Time
}

// NewS3ImageStore derives the public URL base from cfg: PublicBaseURL when
// set (CDN), the endpoint in path style for S3 compatible servers, the AWS
// virtual-hosted URL otherwise.
func NewS3ImageStore(client ObjectPutter, cfg appcfg.S3Config) *S3ImageStore {
	base := cfg.PublicBaseURL
	switch {
	case base != "":
	case cfg.Endpoint != "":
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3ImageStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		maxBytes:      DefaultMaxImageBytes,
		now:           time.Now,
	}
}

func (s *S3ImageStore) Put(ctx context.Context, prefix, dataURL string) (string, error) {
	img, err := DecodeDataURL(dataURL, s.maxBytes)
	if err != nil {
		return "", err
	}

	key := s.objectKey(prefix, img.Ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.ContentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.publicBaseURL + "/" + key, nil
}

func (s *S3ImageStore) objectKey(prefix, ext string) string {
	now := s.now().UTC()
	return path.Join(
		strings.Trim(prefix, "/"),
		now.Format("2006"), now.Format("01"), now.Format("02"),
		uuid.NewString()+"."+ext,
	)
}
