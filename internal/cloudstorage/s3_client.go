// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// S3Config configures the S3 client. Empty fields fall back to the default
// AWS credential and region chain.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	// RoleARN is assumed through STS when set.
	RoleARN string `mapstructure:"role_arn"`
}

// S3Client uploads to S3 or an S3 compatible endpoint.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	tracer   trace.Tracer
}

// NewS3Client loads the default AWS configuration and applies cfg on top.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "lakewriter"
		})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		tracer:   otel.Tracer("github.com/cardinalhq/lakewriter/internal/cloudstorage"),
	}, nil
}

// UploadObject uploads a parquet file to S3
func (c *S3Client) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	file, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("failed to open temporary file %s: %w", sourceFilename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "cloudstorage.uploadS3Object",
		trace.WithAttributes(
			attribute.String("bucketID", bucket),
			attribute.String("objectID", key),
		),
	)
	defer span.End()

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/vnd.apache.parquet"),
		Metadata: map[string]string{
			"writer": "lakewriter-go",
		},
	})
	if err != nil {
		recordUploadError(ctx, ProviderAWS, bucket)
		return fmt.Errorf("failed to upload S3 object: %w", err)
	}

	recordUpload(ctx, ProviderAWS, bucket, stat.Size())
	return nil
}

// DeleteObject deletes an object from S3
func (c *S3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	ctx, span := c.tracer.Start(ctx, "cloudstorage.deleteS3Object",
		trace.WithAttributes(
			attribute.String("bucketID", bucket),
		),
	)
	defer span.End()

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return nil
}

// isNoSuchKey reports whether err is an S3 "key not found" API error.
// Some S3-compatible stores return it from DeleteObject instead of 204.
func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// DeleteObjects deletes multiple objects from S3 in batch requests
func (c *S3Client) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "cloudstorage.deleteS3Objects",
		trace.WithAttributes(
			attribute.String("bucketID", bucket),
			attribute.Int("object_count", len(keys)),
		),
	)
	defer span.End()

	// S3 batch delete supports up to 1000 objects per request
	const maxBatchSize = 1000
	var allFailed []string

	for i := 0; i < len(keys); i += maxBatchSize {
		batch := keys[i:min(i+maxBatchSize, len(keys))]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		result, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			allFailed = append(allFailed, batch...)
			continue
		}
		for _, failed := range result.Errors {
			if failed.Key != nil {
				allFailed = append(allFailed, *failed.Key)
			}
		}
	}

	return allFailed, nil
}

// URL returns the s3:// URL for bucket/key.
func (c *S3Client) URL(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
