package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/graaaaa/livekit-webhook-logger/internal/config"
)

// ContentType is the media type of an export.
const ContentType = "application/x-ndjson"

// Destination is a target for exported snapshots.
type Destination interface {
	// Write stores the full JSONL snapshot, replacing any previous one.
	Write(ctx context.Context, data []byte) error
	String() string
}

// FileDestination writes snapshots to a local file.
type FileDestination struct {
	Path string
}

func (d FileDestination) Write(_ context.Context, data []byte) error {
	if err := config.WriteFileAtomic(d.Path, data); err != nil {
		return fmt.Errorf("write %s: %w", d.Path, err)
	}
	return nil
}

func (d FileDestination) String() string { return "file:" + d.Path }

// S3Destination writes snapshots to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination. Credentials come from the
// default AWS chain. If endpoint is non-empty, path-style addressing is
// enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// Write uploads data as the configured object key.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (d *S3Destination) String() string { return "s3://" + d.bucket + "/" + d.key }

// Destinations builds the destinations named in cfg.
func Destinations(ctx context.Context, cfg config.Config) ([]Destination, error) {
	var dests []Destination
	if cfg.ExportPath != "" {
		dests = append(dests, FileDestination{Path: cfg.ExportPath})
	}
	if cfg.ExportS3Bucket != "" {
		s3d, err := NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			return nil, err
		}
		dests = append(dests, s3d)
	}
	return dests, nil
}
