// Package objectstore wraps the object-store operations the Archiver and
// the administrative audio endpoints need: put, get, head, list, delete,
// each with custom metadata. Backed by S3 via aws-sdk-go-v2; callers depend
// on the Client interface, not the SDK, so tests substitute an in-memory
// fake.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object describes a blob's metadata without its body, as returned by List
// and Head.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// PutInput describes a blob to store.
type PutInput struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// Client is the object-store abstraction consumed by the Archiver (C7) and
// the administrative audio endpoints.
type Client interface {
	Put(ctx context.Context, in PutInput) error
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// S3Client implements Client against an S3-compatible bucket.
type S3Client struct {
	s3     *s3.Client
	bucket string
}

// NewS3Client loads the default AWS credential chain (env, shared config,
// EC2/ECS role) via aws-sdk-go-v2/config and targets bucket
// (OBJECT_STORE_BUCKET).
func NewS3Client(ctx context.Context, bucket string) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}
	return &S3Client{s3: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// EndpointOptions configures an S3-compatible endpoint that isn't AWS S3
// itself (e.g. a MinIO instance used in local/dev deployments or in
// integration tests), with static credentials in place of the default
// credential chain.
type EndpointOptions struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3ClientWithEndpoint builds a Client against a custom S3-compatible
// endpoint with static credentials, for local development and integration
// tests that run against MinIO rather than AWS S3.
func NewS3ClientWithEndpoint(ctx context.Context, bucket string, opts EndpointOptions) (*S3Client, error) {
	var awsOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Client{s3: client, bucket: bucket}, nil
}

// NewS3ClientFromAPI wraps an already-configured *s3.Client, for tests and
// for callers that need custom endpoints (e.g. a local S3-compatible store).
func NewS3ClientFromAPI(api *s3.Client, bucket string) *S3Client {
	return &S3Client{s3: api, bucket: bucket}
}

func (c *S3Client) Put(ctx context.Context, in PutInput) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(in.Key),
		Body:        bytes.NewReader(in.Body),
		ContentType: aws.String(in.ContentType),
		Metadata:    in.Metadata,
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", in.Key, err)
	}
	return nil
}

func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (c *S3Client) Head(ctx context.Context, key string) (Object, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("objectstore: head %s: %w", key, err)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	var modified time.Time
	if out.LastModified != nil {
		modified = *out.LastModified
	}
	return Object{Key: key, Size: size, LastModified: modified, Metadata: out.Metadata}, nil
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	var token *string
	for {
		out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("objectstore: list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			var modified time.Time
			if obj.LastModified != nil {
				modified = *obj.LastModified
			}
			objects = append(objects, Object{Key: aws.ToString(obj.Key), Size: size, LastModified: modified})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return objects, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}
