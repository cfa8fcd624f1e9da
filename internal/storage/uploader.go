package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"interior/internal/utils"

	"github.com/sirupsen/logrus"
)

// UploadOptions 描述一次上传：Bucket 作为对象目录，FileName 可带扩展名。
type UploadOptions struct {
	Bucket      string
	FileName    string
	ContentType string
}

// UploadResult 为上传后的公开地址和对象 key。
type UploadResult struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

// Uploader 把 base64 / data URL / 远程图片转存到 Storage。
type Uploader struct {
	store    Storage
	client   *http.Client
	maxBytes int64
}

func NewUploader(store Storage, client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{store: store, client: client, maxBytes: utils.DefaultMaxImageBytes}
}

// UploadFromBase64 接收 data URL 或裸 base64 图片。
func (u *Uploader) UploadFromBase64(ctx context.Context, payload string, opts UploadOptions) (*UploadResult, error) {
	data, mimeType, ext, err := utils.DecodeImagePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", u.maxBytes)
	}
	return u.save(ctx, data, mimeType, ext, opts)
}

// UploadFromURL 下载远程图片后再保存。
func (u *Uploader) UploadFromURL(ctx context.Context, rawURL string, opts UploadOptions) (*UploadResult, error) {
	if !utils.IsRemoteURL(rawURL) {
		return nil, errors.New("upload from url: only http(s) urls are supported")
	}
	data, declared, err := utils.DownloadImage(ctx, u.client, rawURL, u.maxBytes)
	if err != nil {
		return nil, err
	}
	mimeType, ext, err := utils.ClassifyImage(data, declared)
	if err != nil {
		return nil, err
	}
	return u.save(ctx, data, mimeType, ext, opts)
}

// Upload 按输入形态分派：http(s) 走下载，其余视为 base64。
func (u *Uploader) Upload(ctx context.Context, payload string, opts UploadOptions) (*UploadResult, error) {
	if utils.IsRemoteURL(payload) {
		return u.UploadFromURL(ctx, payload, opts)
	}
	return u.UploadFromBase64(ctx, payload, opts)
}

func (u *Uploader) save(ctx context.Context, data []byte, mimeType, ext string, opts UploadOptions) (*UploadResult, error) {
	baseName, nameExt := splitFileName(opts.FileName)
	if ext == "" {
		ext = nameExt
	}
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = mimeType
	}

	key, err := u.store.Save(ctx, data, SaveOptions{
		Category:    opts.Bucket,
		BaseName:    baseName,
		Extension:   ext,
		ContentType: contentType,
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"bucket": opts.Bucket,
			"size":   len(data),
		}).Error("failed to save image")
		return nil, fmt.Errorf("save image: %w", err)
	}

	return &UploadResult{URL: u.store.PublicURL(key), Path: key, ContentType: contentType}, nil
}

func splitFileName(name string) (string, string) {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return "", ""
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, ".")
}
