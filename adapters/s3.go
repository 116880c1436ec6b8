package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

// deleteBatch is the most keys DeleteObjects accepts per call.
const deleteBatch = 1000

// S3API is the part of *s3.Client the S3 adapter uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3 stores file parts as objects under <prefix><id> in one bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
	ledger ledger
}

// NewS3Client builds an S3 client from the storage config.
func NewS3Client(ctx context.Context, cfg types.S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for S3 storage")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// NewS3 returns an adapter writing to bucket through client.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) ProcessFile(ctx context.Context, file *types.File) (StoredFile, error) {
	// The body is buffered so the request carries a content length; parts
	// are bounded by the file size limit.
	buf, err := io.ReadAll(file.Stream)
	if err != nil {
		return StoredFile{}, fmt.Errorf("read data: %w", err)
	}

	id := tool.GenerateRandomUUID()
	key := s.prefix + id
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		ContentType:   aws.String(file.MimeType),
		Metadata: map[string]string{
			"filename": url.PathEscape(file.Filename),
			"field":    url.PathEscape(file.Name),
		},
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("put object: %w", err)
	}

	if !s.ledger.record(key) {
		if err := s.delete(ctx, []string{key}); err != nil {
			tool.DefaultLogger.Warnf("[S3] Failed to remove late object %s: %v", key, err)
		}
		return StoredFile{}, ErrRolledBack
	}
	tool.DefaultLogger.Debugf("[S3] Stored %s as s3://%s/%s", file.Filename, s.bucket, key)
	return StoredFile{
		ID:        id,
		Field:     file.Name,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Encoding:  file.Encoding,
		Size:      int64(len(buf)),
		Location:  fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Truncated: file.Truncated(),
		StoredAt:  time.Now(),
	}, nil
}

// Rollback deletes every object this adapter put.
func (s *S3) Rollback(ctx context.Context) error {
	keys := s.ledger.drain()
	if len(keys) == 0 {
		return nil
	}
	if err := s.delete(ctx, keys); err != nil {
		return err
	}
	tool.DefaultLogger.Infof("[S3] Rolled back %d object(s) in %s", len(keys), s.bucket)
	return nil
}

func (s *S3) delete(ctx context.Context, keys []string) error {
	var errs []error
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		objects := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete objects: %w", err))
			continue
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}
