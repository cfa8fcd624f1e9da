package utils

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// DecodeImagePayload decodes an inline base64 or data URL image and returns
// the raw bytes together with its detected mime type and file extension.
func DecodeImagePayload(payload string) ([]byte, string, string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, "", "", fmt.Errorf("empty image payload")
	}

	mimeType, base64Payload := SplitDataURL(trimmed)
	base64Payload = strings.TrimSpace(base64Payload)
	if base64Payload == "" {
		return nil, "", "", fmt.Errorf("empty base64 payload")
	}

	data, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("decode base64: %w", err)
	}

	mimeType, ext, err := ClassifyImage(data, mimeType)
	if err != nil {
		return nil, "", "", err
	}
	return data, mimeType, ext, nil
}

// ClassifyImage sniffs data and falls back to the declared mime type. Non
// image payloads are rejected.
func ClassifyImage(data []byte, declared string) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty image payload")
	}
	sniffed := http.DetectContentType(data)
	if ext := ExtensionFromMime(sniffed); ext != "" {
		return normalizeMime(sniffed), ext, nil
	}
	if ext := ExtensionFromMime(declared); ext != "" {
		return normalizeMime(declared), ext, nil
	}
	return "", "", fmt.Errorf("unsupported image type %q", sniffed)
}

func normalizeMime(mimeType string) string {
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// ExtensionFromMime maps supported image mime types to a file extension.
func ExtensionFromMime(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	switch normalizeMime(mimeType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/heic":
		return "heic"
	case "image/heif":
		return "heif"
	default:
		return ""
	}
}
