package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config configures any S3 compatible object store.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
}

// ObjectAPI is the subset of the S3 client used by S3Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

const s3Prefix = "vehicles/"

// S3Store keeps images under vehicles/<uuid>.<ext>.
type S3Store struct {
	api     ObjectAPI
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewS3Store builds an S3 client from static credentials.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	base := cfg.PublicBaseURL
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return NewS3StoreWithAPI(client, cfg.Bucket, base, logger), nil
}

// NewS3StoreWithAPI wires a store around an existing client.
func NewS3StoreWithAPI(api ObjectAPI, bucket, publicBaseURL string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{api: api, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/"), logger: logger}
}

// Upload implements Store.
func (s *S3Store) Upload(ctx context.Context, img Image) (string, error) {
	key := s3Prefix + uuid.NewString() + extensionFor(img)
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.Data),
		ContentType: aws.String(img.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	s.logger.Debug("image stored", slog.String("key", key), slog.Int("bytes", len(img.Data)))
	return s.baseURL + "/" + key, nil
}

// Delete implements Store. URLs outside the public base are ignored.
func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	key, ok := s.key(rawURL)
	if !ok {
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// Owns implements Store.
func (s *S3Store) Owns(rawURL string) bool {
	_, ok := s.key(rawURL)
	return ok
}

// key returns the object key of an image URL issued by Upload.
func (s *S3Store) key(rawURL string) (string, bool) {
	key, ok := strings.CutPrefix(rawURL, s.baseURL+"/")
	if !ok || !strings.HasPrefix(key, s3Prefix) || len(key) == len(s3Prefix) {
		return "", false
	}
	if strings.ContainsAny(key, "?#") || strings.Contains(key, "..") || strings.Count(key, "/") != 1 {
		return "", false
	}
	return key, true
}

func extensionFor(img Image) string {
	switch img.ContentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if i := strings.LastIndexByte(img.Name, '.'); i >= 0 && i < len(img.Name)-1 {
		return strings.ToLower(img.Name[i:])
	}
	return ""
}
