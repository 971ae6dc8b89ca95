package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// KeyPrefix groups avatar objects in the bucket.
const KeyPrefix = "ContactsApp/"

// MaxUploadBytes bounds a single avatar upload.
const MaxUploadBytes = 5 << 20

// ErrTooLarge is returned for avatars above MaxUploadBytes.
var ErrTooLarge = errors.New("avatar: file too large")

// S3Config configures the object store.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// PutObjectAPI is the subset of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client. A custom endpoint (MinIO and friends) switches
// to path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("avatar: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Uploader stores avatars under a stable per-user key, overwriting earlier uploads.
type S3Uploader struct {
	api        PutObjectAPI
	bucket     string
	publicBase string
}

// NewS3Uploader constructs an uploader. publicBase prefixes returned URLs; when
// empty it is derived from the endpoint and bucket.
func NewS3Uploader(api PutObjectAPI, cfg S3Config) *S3Uploader {
	base := cfg.PublicBaseURL
	if base == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		base = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Uploader{api: api, bucket: cfg.Bucket, publicBase: strings.TrimRight(base, "/")}
}

// Upload writes file as identity's avatar and returns a cache-busting public URL.
func (u *S3Uploader) Upload(ctx context.Context, file io.Reader, identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("avatar: identity is empty")
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("avatar: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	key := KeyPrefix + identity
	out, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(http.DetectContentType(data)),
		CacheControl: aws.String("public, max-age=300"),
	})
	if err != nil {
		return "", fmt.Errorf("avatar: put %s: %w", key, err)
	}
	version := ""
	if out != nil && out.ETag != nil {
		version = strings.Trim(*out.ETag, `"`)
	}
	link := u.publicBase + "/" + KeyPrefix + url.PathEscape(identity)
	if version != "" {
		link += "?v=" + url.QueryEscape(version)
	}
	return link, nil
}
