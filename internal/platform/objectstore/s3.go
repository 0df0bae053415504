package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type s3Gateway struct {
	log     *logger.Logger
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
}

func NewS3Gateway(ctx context.Context, log *logger.Logger, cfg Config) (Gateway, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	// Path-style addressing when pointed at LocalStack or another S3-compatible endpoint.
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Info("S3 object store ready", "region", cfg.Region, "endpoint", cfg.Endpoint)
	return &s3Gateway{
		log:     log,
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (g *s3Gateway) Bucket() string { return g.bucket }

func (g *s3Gateway) Upload(ctx context.Context, localPath, key string) bool {
	f, err := os.Open(localPath)
	if err != nil {
		g.log.Error("S3 upload: open local file failed", "path", localPath, "error", err)
		return false
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(g.bucket),
		Key:                  aws.String(key),
		Body:                 f,
		ContentType:          aws.String(contentTypeForKey(key)),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		g.log.Error("S3 upload failed", "key", key, "error", err)
		return false
	}
	g.log.Debug("S3 upload complete", "key", key)
	return true
}

func (g *s3Gateway) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(g.bucket),
		Key:                  aws.String(key),
		Body:                 r,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (g *s3Gateway) Presign(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		g.log.Warn("S3 presign failed", "key", key, "error", err)
		return "", false
	}
	return req.URL, true
}

func (g *s3Gateway) Download(ctx context.Context, key, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return writeFileAtomic(localPath, out.Body)
}

func (g *s3Gateway) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
