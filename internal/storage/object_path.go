package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"
)

var errEmptyPayload = errors.New("empty payload")

// objectKeys 生成 <prefix>/<category>/<yyyy>/<mm>/<dd>/<name>.<ext> 形式的对象键。
type objectKeys struct {
	prefix string
	now    func() time.Time
}

func newObjectKeys(prefix string) objectKeys {
	return objectKeys{
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (k objectKeys) For(opts SaveOptions) string {
	now := k.now()
	category := slug(opts.Category)
	if category == "" {
		category = "misc"
	}
	name := strings.Trim(slug(strings.ReplaceAll(strings.TrimSpace(opts.BaseName), " ", "-")), "-_")
	if name == "" {
		name = strconv.FormatInt(now.UnixNano(), 10)
	}
	key := path.Join(category, now.Format("2006/01/02"), name+"."+extensionOf(opts.Extension))
	if k.prefix == "" {
		return key
	}
	return k.prefix + "/" + key
}

// slug 只保留小写字母、数字、'-' 和 '_'
func slug(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, strings.TrimSpace(value))
}

func extensionOf(ext string) string {
	ext = slug(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "bin"
	}
	return ext
}

// contentTypeFor 优先使用显式的 ContentType，否则按扩展名推断。
func contentTypeFor(opts SaveOptions) string {
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		return ct
	}
	if guessed := mime.TypeByExtension("." + extensionOf(opts.Extension)); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

// checkSave 拒绝空内容和已取消的上下文，各后端写入前统一调用。
func checkSave(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return errEmptyPayload
	}
	return ctx.Err()
}
