package storage

import (
	"errors"
	"fmt"
	"strings"

	"interior/internal/config"
)

// r2Endpoint 优先使用显式 endpoint，否则由账户 ID 拼出 S3 兼容地址。
func r2Endpoint(cfg config.Config) (string, error) {
	if endpoint := strings.TrimSpace(cfg.StorageR2Endpoint); endpoint != "" {
		return endpoint, nil
	}
	if account := strings.TrimSpace(cfg.StorageR2AccountID); account != "" {
		return "https://" + account + ".r2.cloudflarestorage.com", nil
	}
	return "", errors.New("storage: missing R2 endpoint or account id")
}

// NewR2Storage 通过 S3 兼容接口写入 Cloudflare R2。
// R2 的 S3 端点不可匿名读取，STORAGE_PUBLIC_BASE_URL 必须是 r2.dev 或自定义域名的绝对地址。
func NewR2Storage(cfg config.Config) (Storage, error) {
	bucket := strings.TrimSpace(cfg.StorageR2Bucket)
	if bucket == "" {
		return nil, errors.New("storage: missing R2 bucket")
	}
	publicBase := absolutePublicBase(cfg.StoragePublicBaseURL, "")
	if publicBase == "" {
		return nil, errors.New("storage: R2 requires an absolute STORAGE_PUBLIC_BASE_URL")
	}
	endpoint, err := r2Endpoint(cfg)
	if err != nil {
		return nil, err
	}
	region := strings.TrimSpace(cfg.StorageR2Region)
	if region == "" {
		region = "auto"
	}

	client, err := newS3Client(s3ClientOptions{
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     cfg.StorageR2AccessKeyID,
		SecretAccessKey: cfg.StorageR2SecretAccessKey,
		ForcePathStyle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create R2 client: %w", err)
	}
	return &remoteS3Storage{
		client:     client,
		bucket:     bucket,
		keys:       newObjectKeys(cfg.StorageR2Prefix),
		publicBase: publicBase,
	}, nil
}
