package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"interior/internal/config"
)

const (
	// TypeLocal 表示本地文件系统存储。
	TypeLocal = "local"
	// TypeS3 表示 Amazon S3 或兼容的存储后端。
	TypeS3 = "s3"
	// TypeOSS 表示阿里云 OSS 存储。
	TypeOSS = "oss"
	// TypeCOS 表示腾讯云 COS 存储。
	TypeCOS = "cos"
	// TypeR2 表示 Cloudflare R2 存储。
	TypeR2 = "r2"
)

// SaveOptions 控制存储后端如何持久化文件。
//
// Category 用于组织对象（上传图、生成结果等），Extension 为不含前导点的扩展名。
// ContentType 为空时按扩展名推断。
type SaveOptions struct {
	Category     string
	Extension    string
	BaseName     string
	ContentType  string
	SkipIfExists bool
}

// Storage 持久化二进制数据，返回对象 key，并能把 key 转换为可访问的 URL。
type Storage interface {
	Save(ctx context.Context, data []byte, opts SaveOptions) (string, error)
	PublicURL(key string) string
}

// LocalBaseDirProvider 由暴露可通过 HTTP 直接提供服务的本地目录的存储驱动实现。
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

type constructor func(cfg config.Config) (Storage, error)

var backends = map[string]constructor{
	TypeLocal: func(cfg config.Config) (Storage, error) {
		return NewLocalStorage(cfg.StorageLocalDir, cfg.StoragePublicBaseURL)
	},
	TypeS3:  NewS3Storage,
	TypeOSS: NewOSSStorage,
	TypeCOS: NewCOSStorage,
	TypeR2:  NewR2Storage,
}

// SupportedTypes 返回可用的 STORAGE_TYPE 取值，按字母序。
func SupportedTypes() []string {
	types := make([]string, 0, len(backends))
	for name := range backends {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// NewStorage 按 STORAGE_TYPE 创建存储后端，空值视为 local。
func NewStorage(cfg config.Config) (Storage, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	if name == "" {
		name = TypeLocal
	}
	build, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unsupported storage type %q (want one of %s)", cfg.StorageType, strings.Join(SupportedTypes(), ", "))
	}
	return build(cfg)
}

// absolutePublicBase returns the configured public base when it is an
// absolute URL, otherwise fallback.
func absolutePublicBase(configured, fallback string) string {
	configured = strings.TrimRight(strings.TrimSpace(configured), "/")
	if strings.HasPrefix(configured, "http://") || strings.HasPrefix(configured, "https://") {
		return configured
	}
	return strings.TrimRight(fallback, "/")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
