package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
)

// Client fetches firmware artifacts (loader binaries and system
// images) from a public S3 bucket.
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient creates a new S3 client for anonymous access. Firmware
// buckets are public, so no credentials are required.
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg)

	slog.Info("s3_client_created", "bucket", bucket)

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
	}, nil
}

// DownloadResult contains the metadata of a fetched artifact
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Download fetches a firmware artifact and computes its SHA256. The
// artifact is written to a temporary file first and renamed into place
// only after the full body arrived, so a flashing run never picks up a
// half-downloaded image.
func (c *Client) Download(ctx context.Context, s3Key, localPath string) (*DownloadResult, error) {
	slog.Info("artifact_download_start", "bucket", c.bucket, "s3_key", s3Key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", s3Key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	tmpPath := localPath + ".partial"
	f, err := os.Create(tmpPath)
	if err != nil {
		slog.Error("local_file_creation_failed", "path", tmpPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}

	hash := sha256.New()
	writer := io.MultiWriter(f, hash)

	size, err := io.Copy(writer, result.Body)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		slog.Error("artifact_download_failed", "s3_key", s3Key, "error", err)
		return nil, errors.Wrap(err, "failed to download artifact")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(err, "failed to close local file")
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		slog.Error("artifact_rename_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to move artifact into place")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))

	slog.Info("artifact_download_complete",
		"s3_key", s3Key,
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

// ListObjects lists the firmware artifacts available under a prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(keys))

	return keys, nil
}

// Exists checks whether an artifact is present in the bucket
func (c *Client) Exists(ctx context.Context, s3Key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3Key),
	})

	if err != nil {
		if err.Error() == "NotFound" {
			slog.Info("s3_object_not_found", "s3_key", s3Key)
			return false, nil
		}
		slog.Error("s3_head_object_failed", "s3_key", s3Key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}

	slog.Info("s3_object_exists", "s3_key", s3Key)
	return true, nil
}
