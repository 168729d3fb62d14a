// Package storage downloads update packages published in S3 buckets,
// addressed as s3://bucket/key URLs.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/wimtool/wimtool/pkg/errors"
)

// Client provides S3 storage operations.
type Client struct {
	s3Client *s3.Client
}

// NewClient creates an S3 client for anonymous access. Update packages are
// published in public buckets; no credentials are involved.
func NewClient(ctx context.Context, region string) (*Client, error) {
	slog.Info("s3_client_init", "region", region)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// ObjectRef identifies one object in a bucket.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ParseURL splits an s3://bucket/key URL into its bucket and key.
func ParseURL(rawURL string) (ObjectRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ObjectRef{}, errors.Wrap(err, "invalid S3 URL")
	}
	if u.Scheme != "s3" {
		return ObjectRef{}, fmt.Errorf("not an S3 URL: %s", rawURL)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("S3 URL must be s3://bucket/key: %s", rawURL)
	}

	return ObjectRef{Bucket: u.Host, Key: key}, nil
}

// DownloadResult contains download metadata.
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Download downloads an object and computes its SHA256 while streaming.
func (c *Client) Download(ctx context.Context, ref ObjectRef, localPath string) (*DownloadResult, error) {
	slog.Info("s3_download_start", "bucket", ref.Bucket, "key", ref.Key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", ref.Bucket, "key", ref.Key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		slog.Error("local_file_creation_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}
	defer f.Close()

	hash := sha256.New()
	writer := io.MultiWriter(f, hash)

	size, err := io.Copy(writer, result.Body)
	if err != nil {
		slog.Error("s3_download_failed", "bucket", ref.Bucket, "key", ref.Key, "error", err)
		return nil, errors.Wrap(err, "failed to download file")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))

	slog.Info("s3_download_complete",
		"bucket", ref.Bucket,
		"key", ref.Key,
		"size_mb", size/1024/1024,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}
