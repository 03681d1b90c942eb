// Package images stores avatar images in S3-compatible object storage
// (AWS S3, MinIO).
package images

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// objectAPI is the part of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds connection settings for the object store.
type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store uploads avatars under avatars/<yyyy>/<m>/<d>/<uuid> and serves
// them from <endpoint>/<bucket>/<key>.
type S3Store struct {
	api     objectAPI
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewS3Store builds an S3 client with static credentials and path-style
// addressing against cfg.BaseEndpoint.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.User,     // MINIO_ROOT_USER
			cfg.Password, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3Store(client, cfg.Bucket, cfg.BaseEndpoint), nil
}

func newS3Store(api objectAPI, bucket, baseEndpoint string) *S3Store {
	return &S3Store{
		api:     api,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseEndpoint, "/"),
		now:     time.Now,
	}
}

func (s *S3Store) randomKey() string {
	d := s.now()
	return fmt.Sprintf("avatars/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// Upload stores the image read from r. r should be seekable (a temp file)
// so the SDK can sign the payload.
func (s *S3Store) Upload(ctx context.Context, r io.Reader, contentType string) (models.Avatar, error) {
	key := s.randomKey()

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return models.Avatar{}, fmt.Errorf("upload avatar: %w", err)
	}

	return models.Avatar{ID: key, URL: s.baseURL + "/" + s.bucket + "/" + key}, nil
}

// Delete removes the image stored under id. An empty id is a no-op.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	return nil
}
