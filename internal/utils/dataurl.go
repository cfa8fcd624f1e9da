package utils

import "strings"

const defaultDataURLMime = "image/jpeg"

// EnsureDataURL 把裸 base64 包装成 data URL，已经是 data URL 的原样返回。
func EnsureDataURL(value, mimeType string) string {
	if strings.HasPrefix(value, "data:") {
		return value
	}
	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = defaultDataURLMime
	}
	return "data:" + mimeType + ";base64," + value
}

// SplitDataURL 拆出 data URL 的 mime 和 base64 部分。
// 非 data URL 时 mime 为空、payload 为原值；缺少 ";base64," 的 data URL 两者都为空。
func SplitDataURL(value string) (mimeType, payload string) {
	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return "", value
	}
	mimeType, payload, ok = strings.Cut(rest, ";base64,")
	if !ok {
		return "", ""
	}
	return mimeType, payload
}

// IsRemoteURL 判断是否为 http(s) 地址，大小写不敏感。
func IsRemoteURL(value string) bool {
	scheme, _, ok := strings.Cut(strings.TrimSpace(value), "://")
	if !ok {
		return false
	}
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}
