package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"interior/internal/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type ossStorage struct {
	bucket     *oss.Bucket
	keys       objectKeys
	publicBase string
}

// ossPublicBase 返回 https://<bucket>.<endpoint host> 形式的默认访问域名。
func ossPublicBase(endpoint, bucket string) string {
	host := endpoint
	for _, scheme := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	return "https://" + bucket + "." + strings.TrimRight(host, "/")
}

func NewOSSStorage(cfg config.Config) (Storage, error) {
	endpoint := strings.TrimSpace(cfg.StorageOSSEndpoint)
	bucketName := strings.TrimSpace(cfg.StorageOSSBucket)
	accessKey := strings.TrimSpace(cfg.StorageOSSAccessKeyID)
	secretKey := strings.TrimSpace(cfg.StorageOSSAccessKeySecret)
	switch {
	case endpoint == "":
		return nil, errors.New("storage: missing OSS endpoint")
	case bucketName == "":
		return nil, errors.New("storage: missing OSS bucket")
	case accessKey == "" || secretKey == "":
		return nil, errors.New("storage: missing OSS credentials")
	}

	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storage: open OSS bucket: %w", err)
	}
	return &ossStorage{
		bucket:     bucket,
		keys:       newObjectKeys(cfg.StorageOSSPrefix),
		publicBase: absolutePublicBase(cfg.StoragePublicBaseURL, ossPublicBase(endpoint, bucketName)),
	}, nil
}

func (s *ossStorage) Save(ctx context.Context, data []byte, opts SaveOptions) (string, error) {
	if err := checkSave(ctx, data); err != nil {
		return "", err
	}
	key := s.keys.For(opts)

	if opts.SkipIfExists {
		switch exists, err := s.bucket.IsObjectExist(key, oss.WithContext(ctx)); {
		case err != nil:
			return "", fmt.Errorf("check object: %w", err)
		case exists:
			return key, nil
		}
	}

	err := s.bucket.PutObject(key, bytes.NewReader(data),
		oss.WithContext(ctx),
		oss.ContentType(contentTypeFor(opts)),
		oss.ContentLength(int64(len(data))),
	)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *ossStorage) PublicURL(key string) string {
	return joinURL(s.publicBase, key)
}

var _ Storage = (*ossStorage)(nil)
