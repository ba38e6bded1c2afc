// services/s3.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

const maxImageSize = 10 * 1024 * 1024 // 10MB

// ImageStorage stores item cover images.
type ImageStorage interface {
	UploadImage(ctx context.Context, prefix string, body io.Reader, filename, contentType string, size int64) (*UploadResult, error)
	DeleteImage(ctx context.Context, key string) error
}

type S3Service struct {
	client     s3iface.S3API
	bucketName string
	region     string
}

func NewS3Service(region, bucketName string, accessKey, secretKey string) *S3Service {
	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
		Credentials: credentials.NewStaticCredentials(
			accessKey,
			secretKey,
			"",
		),
	}))

	return &S3Service{
		client:     s3.New(sess),
		bucketName: bucketName,
		region:     region,
	}
}

type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// UploadImage stores an image under catalog/<prefix>/<date>/<uuid><ext>.
func (s *S3Service) UploadImage(ctx context.Context, prefix string, body io.Reader, filename, contentType string, size int64) (*UploadResult, error) {
	if contentType == "" {
		contentType = contentTypeFromExtension(filename)
	}
	if !isValidImageType(contentType) {
		return nil, fmt.Errorf("%w: invalid file type: %s", ErrInvalidInput, contentType)
	}
	if size > maxImageSize {
		return nil, fmt.Errorf("%w: file size too large: %d bytes (max: %d bytes)", ErrInvalidInput, size, maxImageSize)
	}

	key := imageKey(prefix, filename, time.Now())

	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, io.LimitReader(body, maxImageSize+1)); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if buffer.Len() > maxImageSize {
		return nil, fmt.Errorf("%w: file size too large", ErrInvalidInput)
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucketName),
		Key:          aws.String(key),
		Body:         bytes.NewReader(buffer.Bytes()),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=31536000"), // 1 year cache
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		Key:         key,
		URL:         fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key),
		FileName:    filename,
		ContentType: contentType,
		Size:        int64(buffer.Len()),
	}, nil
}

func (s *S3Service) DeleteImage(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	return err
}

func imageKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("catalog/%s/%s/%s%s", prefix, now.Format("2006/01/02"), uuid.NewString(), ext)
}

func isValidImageType(contentType string) bool {
	validTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
	}
	for _, validType := range validTypes {
		if strings.EqualFold(contentType, validType) {
			return true
		}
	}
	return false
}

func contentTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
