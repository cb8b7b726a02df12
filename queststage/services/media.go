package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MediaService stores message images and character portraits in a
// Spaces bucket and hands back public URLs for payloads to reference.
type MediaService struct {
	client    *s3.Client
	bucket    string
	region    string
	MediaRoot string
}

func NewMediaService(spacesKey, spacesSecret, region, bucket, mediaRoot string) *MediaService {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	client := s3.NewFromConfig(cfg)

	return &MediaService{
		client:    client,
		bucket:    bucket,
		region:    region,
		MediaRoot: strings.TrimPrefix(mediaRoot, "/"),
	}
}

func (s *MediaService) UploadImage(ctx context.Context, threadKey, filename string, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", s.MediaRoot, threadKey, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image %s: %w", key, err)
	}

	return s.ImageURL(key), nil
}

func (s *MediaService) DeleteImage(ctx context.Context, threadKey, filename string) error {
	key := fmt.Sprintf("%s/%s/%s", s.MediaRoot, threadKey, filename)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", key, err)
	}

	return nil
}

func (s *MediaService) ImageURL(key string) string {
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.bucket, s.region, key)
}

func (s *MediaService) GetBucket() string {
	return s.bucket
}

func (s *MediaService) GetRegion() string {
	return s.region
}
