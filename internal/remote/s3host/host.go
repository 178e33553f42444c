// Package s3host implements remote.ImageHost on S3. Uploaded objects get a
// uuid key under images/ and the returned URL is the public object address.
package s3host

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Host uploads images to a single bucket.
type Host struct {
	client *s3.Client
	bucket string
	region string
}

// New creates a host over an existing S3 client.
func New(client *s3.Client, bucket, region string) *Host {
	return &Host{client: client, bucket: bucket, region: region}
}

// NewClient loads the default AWS configuration for the region and builds an
// S3 client.
func NewClient(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Upload stores the image bytes and returns the object URL.
func (h *Host) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	key := "images/" + uuid.New().String()
	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.bucket, h.region, key), nil
}
