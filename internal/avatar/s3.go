package avatar

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sakif/roomchat/internal/model"
)

// S3Config points the store at a bucket. Endpoint is optional and allows
// S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base browsers load objects from, e.g. a CDN or
	// "http://localhost:9000/avatars". Defaults to endpoint/bucket.
	PublicURL string
}

const s3KeyPrefix = "avatars/"

type objectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads avatars to an S3 bucket.
type S3Store struct {
	client    objectClient
	bucket    string
	publicURL string
}

// NewS3Store loads AWS configuration and creates the client. Static
// credentials are used when an access key is configured, otherwise the
// SDK's default chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("avatar: S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("avatar: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client objectClient, cfg S3Config) *S3Store {
	public := cfg.PublicURL
	if public == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		public = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(public, "/"),
	}
}

func (s *S3Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, contentType, err := newKey(filename)
	if err != nil {
		return "", err
	}
	key := s3KeyPrefix + name

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("avatar: uploading %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Store) URL(ref string) string {
	if ref == "" || ref == model.DefaultAvatar {
		return DefaultURL
	}
	return s.publicURL + "/" + ref
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	if ref == "" || ref == model.DefaultAvatar {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("avatar: deleting %s: %w", ref, err)
	}
	return nil
}
