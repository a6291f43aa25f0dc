package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/config"
)

// OSSArchiver keeps answer photos in an Aliyun OSS bucket.
type OSSArchiver struct {
	bucket     *oss.Bucket
	endpoint   string
	bucketName string
	publicBase string
	prefix     string
	normalizer Normalizer
	log        zerolog.Logger
}

// NewOSSArchiver connects to the configured bucket.
func NewOSSArchiver(cfg config.OSSConfig, normalizer Normalizer, log zerolog.Logger) (*OSSArchiver, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("missing ALI_OSS_ENDPOINT, ALI_OSS_ACCESS_KEY, ALI_OSS_SECRET_KEY or ALI_OSS_BUCKET")
	}

	var (
		client *oss.Client
		err    error
	)
	if cfg.SecurityToken != "" {
		client, err = oss.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, oss.SecurityToken(cfg.SecurityToken))
	} else {
		client, err = oss.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	}
	if err != nil {
		return nil, fmt.Errorf("oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss bucket: %w", err)
	}

	return &OSSArchiver{
		bucket:     bucket,
		endpoint:   cfg.Endpoint,
		bucketName: cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		prefix:     strings.Trim(cfg.Prefix, "/"),
		normalizer: normalizer,
		log:        log.With().Str("component", "oss_archiver").Logger(),
	}, nil
}

// Store uploads the photo and returns its public URL.
func (a *OSSArchiver) Store(ctx context.Context, data []byte, mimeType, folder string) (string, error) {
	data, mimeType = normalizeOrKeep(a.normalizer, data, mimeType, a.log)
	key := objectKey(a.prefix, folder, uuid.New().String()+extensionFor(mimeType))

	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(mimeType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	if err := a.bucket.PutObject(key, bytes.NewReader(data), opts...); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return publicURL(a.publicBase, a.bucketName, a.endpoint, key), nil
}

func objectKey(prefix, folder, name string) string {
	return strings.TrimPrefix(path.Join(prefix, folder, name), "/")
}

func publicURL(publicBase, bucket, endpoint, key string) string {
	if publicBase != "" {
		return publicBase + "/" + key
	}
	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", bucket, host, key)
}
