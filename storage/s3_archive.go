package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dealscout/models"
)

// ObjectPutter is the subset of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the S3 report archive.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Static credentials are optional; the default AWS chain is used otherwise.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archive uploads tick reports as JSON objects.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archive builds an S3 client from the shared AWS config.
func NewS3Archive(ctx context.Context, opts S3Options) (*S3Archive, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewS3ArchiveWithClient(s3.NewFromConfig(cfg), opts.Bucket, opts.Prefix), nil
}

// NewS3ArchiveWithClient wraps an existing client.
func NewS3ArchiveWithClient(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a report: prefix/reports/YYYY/MM/DD/<run id>.json.
func (a *S3Archive) Key(r *models.TickReport) string {
	day := r.StartedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, "reports", day, r.RunID+".json")
}

// Archive uploads the report.
func (a *S3Archive) Archive(ctx context.Context, r *models.TickReport) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("s3: encode report: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(r)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", a.Key(r), err)
	}
	return nil
}
