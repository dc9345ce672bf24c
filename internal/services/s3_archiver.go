package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/errors"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// ObjectPutter is the subset of the S3 client used for archiving
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes expired snapshots to S3 as newline-delimited JSON,
// one object per cleanup run and monitor.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *logger.Logger
}

// archivedSnapshot keeps the stored encoding so an archive can be restored
// without recompressing.
type archivedSnapshot struct {
	ID               string    `json:"id"`
	MonitorID        string    `json:"monitor_id"`
	Timestamp        time.Time `json:"timestamp"`
	Compressed       bool      `json:"compressed"`
	CompressionRatio float64   `json:"compression_ratio"`
	OriginalSize     int       `json:"original_size"`
	Data             []byte    `json:"data"`
}

// NewS3Archiver loads the default AWS credential chain for the configured region
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.ConfigurationError("Archive bucket is not configured", nil)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3ArchiverWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string, log *logger.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: log,
	}
}

// Archive uploads the snapshots in a single object
func (a *S3Archiver) Archive(ctx context.Context, monitorID string, snapshots []*snapshot.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, s := range snapshots {
		rec := archivedSnapshot{
			ID:               s.ID,
			MonitorID:        s.MonitorID,
			Timestamp:        s.Timestamp,
			Compressed:       s.Compressed,
			CompressionRatio: s.CompressionRatio,
			OriginalSize:     s.OriginalSize,
			Data:             s.Data,
		}
		if err := enc.Encode(rec); err != nil {
			return errors.StorageError("Failed to encode archive", err)
		}
	}

	key := a.objectKey(monitorID, snapshots)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return errors.StorageError("Failed to upload archive", err)
	}

	a.logger.WithFields(map[string]interface{}{
		"monitor_id": monitorID,
		"bucket":     a.bucket,
		"key":        key,
		"count":      len(snapshots),
	}).Info("Archived expired snapshots")
	return nil
}

// objectKey names the object after the covered time range
func (a *S3Archiver) objectKey(monitorID string, snapshots []*snapshot.Snapshot) string {
	first := snapshots[0].Timestamp.UTC().Format("20060102T150405Z")
	last := snapshots[len(snapshots)-1].Timestamp.UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s%s/%s_%s.jsonl", a.prefix, monitorID, first, last)
}
