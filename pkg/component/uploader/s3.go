package uploader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type S3Config struct {
	Region      string
	Endpoint    string
	ContentType string
}

func NewS3Config() *S3Config {
	return &S3Config{
		Region:      "us-east-1",
		ContentType: "image/jpeg",
	}
}

// S3Store puts payloads to any S3-compatible endpoint. Credentials come
// from the default chain (env, shared config, instance profile).
type S3Store struct {
	cfg *S3Config
	cli *s3.S3
}

func NewS3Store(cfg *S3Config) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		// the sdk retries on its own; the retrier owns that policy here
		MaxRetries: aws.Int(0),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("new aws session failed:%v", err)
	}
	return &S3Store{
		cfg: cfg,
		cli: s3.New(sess),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.cli.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.cfg.ContentType),
	})
	return err
}
