package poster

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader публикует постеры в S3-совместимое хранилище.
type Uploader struct {
	client *minio.Client
	bucket string
}

type UploaderConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewUploader создаёт клиент и бакет, если его ещё нет.
func NewUploader(ctx context.Context, cfg UploaderConfig) (*Uploader, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("poster: minio client: %w", err)
	}
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("poster: bucket check: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("poster: make bucket: %w", err)
		}
	}
	return &Uploader{client: cli, bucket: cfg.Bucket}, nil
}

// Upload кладёт PNG под ключом key и возвращает URL объекта
// (публичный, если бакет публичный).
func (u *Uploader) Upload(ctx context.Context, key string, pngData []byte) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(pngData), int64(len(pngData)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", fmt.Errorf("poster: upload %s: %w", key, err)
	}
	ep := u.client.EndpointURL()
	return (&url.URL{Scheme: ep.Scheme, Host: ep.Host, Path: "/" + u.bucket + "/" + key}).String(), nil
}

// ObjectKey: ключ постера для записи истории.
func ObjectKey(scope, entryID string) string {
	if scope == "" {
		scope = "default"
	}
	return "posters/" + url.PathEscape(scope) + "/" + entryID + ".png"
}
