// Package reliability holds the operational safety nets: off-site database
// backups to S3-compatible object storage and their rotation.
package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// ObjectStore wraps an S3-compatible bucket for backup archives.
// Works against AWS S3 and S3-compatible endpoints (R2, MinIO).
type ObjectStore struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewObjectStore creates an object store client. Endpoint may be empty for
// plain AWS S3.
func NewObjectStore(endpoint, accessKey, secretKey, bucket string, log zerolog.Logger) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &ObjectStore{
		client: client,
		bucket: bucket,
		log:    log.With().Str("component", "object_store").Logger(),
	}, nil
}

// Upload streams an object into the bucket using multipart upload.
func (o *ObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	uploader := manager.NewUploader(o.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	o.log.Info().Str("key", key).Msg("Object uploaded")
	return nil
}

// List returns all objects whose keys start with prefix.
func (o *ObjectStore) List(ctx context.Context, prefix string) ([]types.Object, error) {
	var objects []types.Object

	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		objects = append(objects, page.Contents...)
	}

	return objects, nil
}

// Delete removes one object.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
