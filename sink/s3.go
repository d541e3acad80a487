package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/sluice/frame"
	"github.com/justapithecus/sluice/types"
)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool

	// PipeID is the partition key for the pipe identifier (required).
	PipeID string
	// Day is the partition key derived from pipe start time (required).
	Day string
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.PipeID == "" {
		return errors.New("S3 sink pipe_id is required")
	}
	if c.Day == "" {
		return errors.New("S3 sink day is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// s3API is the subset of the S3 client the sink uses. Narrowed for test
// injection.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 persists record batches as framed msgpack objects under a
// partitioned key layout:
//
//	<prefix>/partitions/day=<day>/pipe_id=<pipe>/segment-NNNNNN.mpk
//
// Each WriteRecords call produces one object, so a batch is either fully
// durable or absent.
type S3 struct {
	config  S3Config
	client  s3API
	segment int
}

// NewS3 creates an S3 sink using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3{config: cfg, client: s3.NewFromConfig(awsConfig, s3Opts...)}, nil
}

// newS3WithClient wires a pre-built client. Test seam.
func newS3WithClient(cfg S3Config, client s3API) *S3 {
	return &S3{config: cfg, client: client}
}

// WriteRecords uploads the batch as one framed msgpack object.
func (s *S3) WriteRecords(ctx context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf []byte
	for _, rec := range records {
		payload, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record seq=%d: %w", rec.Seq, err)
		}
		buf = frame.AppendFrame(buf, payload)
	}

	key := s.objectKey()
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf),
	}); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.config.Bucket, key, err)
	}

	s.segment++
	return nil
}

// objectKey computes the partitioned key for the next segment.
func (s *S3) objectKey() string {
	key := fmt.Sprintf("partitions/day=%s/pipe_id=%s/segment-%06d.mpk",
		s.config.Day, s.config.PipeID, s.segment)
	if s.config.Prefix != "" {
		return strings.TrimSuffix(s.config.Prefix, "/") + "/" + key
	}
	return key
}

// Close implements Sink. The S3 client holds no per-sink resources.
func (s *S3) Close() error {
	return nil
}

// Verify S3 implements Sink.
var _ Sink = (*S3)(nil)
