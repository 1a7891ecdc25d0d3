// Package media stores story and profile images in S3-compatible object
// storage and hands back public URLs for content documents to reference.
package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("media file too large")
)

// MaxUploadBytes caps a single attachment.
const MaxUploadBytes = 8 << 20

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Uploader writes attachments to one bucket.
type Uploader struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Uploader{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Upload validates and stores one attachment, returning its public URL.
func (u *Uploader) Upload(ctx context.Context, producerID, contentType string, size int64, reader io.Reader) (string, error) {
	key, err := objectKey(producerID, contentType, size)
	if err != nil {
		return "", err
	}

	_, err = u.client.PutObject(ctx, u.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store media object: %w", err)
	}

	return u.publicBase + "/" + u.bucket + "/" + key, nil
}

func objectKey(producerID, contentType string, size int64) (string, error) {
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if size <= 0 || size > MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	if strings.TrimSpace(producerID) == "" {
		producerID = "anonymous"
	}

	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "media/" + producerID + "/" + hex.EncodeToString(buf) + ext, nil
}
