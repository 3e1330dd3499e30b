// Package artifact publishes final PDF/A documents to their destination
// (local directory or S3). Publication is atomic with respect to job
// visibility: no observer sees a partially written result.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pdfa-converter/internal/config"
)

// Publisher copies a finished artifact to its destination and returns the
// recorded result location.
type Publisher interface {
	Publish(ctx context.Context, key, src string) (string, error)
}

// NewPublisher picks the destination backend: S3 when a bucket is
// configured, the local output directory otherwise.
func NewPublisher(ctx context.Context, cfg config.Config) (Publisher, error) {
	if cfg.S3Bucket != "" {
		return NewS3Publisher(ctx, cfg)
	}
	return &LocalPublisher{BaseDir: cfg.OutputDir}, nil
}

// LocalPublisher writes artifacts under BaseDir via temp file + rename so a
// concurrent reader never observes a partial document.
type LocalPublisher struct {
	BaseDir string
}

func (l *LocalPublisher) Publish(_ context.Context, key, src string) (string, error) {
	dst := filepath.Join(l.BaseDir, sanitizeKey(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return dst, nil
}

// Discard removes a published local artifact; used when a job reached a
// terminal state other than completed after its engine call finished.
func Discard(location string) error {
	if strings.HasPrefix(location, "s3://") {
		// S3 results are cleaned up by bucket lifecycle policy.
		return nil
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// S3Publisher uploads artifacts to a bucket.
type S3Publisher struct {
	client *s3.Client
	bucket string
}

// NewS3Publisher builds the S3 backend, honoring a custom endpoint for
// MinIO-style deployments.
func NewS3Publisher(ctx context.Context, cfg config.Config) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	})
	return &S3Publisher{client: client, bucket: cfg.S3Bucket}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, key, src string) (string, error) {
	key = sanitizeKey(key)
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}
