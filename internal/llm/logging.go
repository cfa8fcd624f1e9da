package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

const snippetRunes = 120

// providerLogger 带上 provider/model/request_id 字段，request_id 未知时省略。
func providerLogger(ctx context.Context, model, requestID string) *logrus.Entry {
	entry := logrus.WithContext(ctx).WithField("provider", "fal")
	if model = strings.TrimSpace(model); model != "" {
		entry = entry.WithField("model", model)
	}
	if requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}

// logSnippet 把多行响应体压成一行并截断，供日志和错误信息使用。
func logSnippet(value string) string {
	flat := strings.Join(strings.Fields(value), " ")
	if runes := []rune(flat); len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "..."
	}
	return flat
}
