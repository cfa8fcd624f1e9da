package service

import (
	"errors"
	"fmt"

	"interior/internal/ledger"

	"gorm.io/gorm"
)

var (
	ErrGenerationNotFound = errors.New("generation not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAccountDisabled    = errors.New("account disabled")
	// ErrPaymentNotVerified 支付未完成或元数据与生成记录不匹配
	ErrPaymentNotVerified = errors.New("payment could not be verified")
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
	ErrGenerationNotReady = errors.New("generation is not completed")
)

// ValidationError 请求参数不合法，在触碰任何资源之前返回。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientCreditsError 余额不足，Current 为检查时的余额。
type InsufficientCreditsError struct {
	Current  int64
	Required int64
	err      error
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Current, e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	return ledger.ErrInsufficientBalance
}

// ImageGenerationError 图片存储或提交服务商失败。
type ImageGenerationError struct {
	Stage        string
	GenerationID uint
	Err          error
}

func (e *ImageGenerationError) Error() string {
	if e.GenerationID > 0 {
		return fmt.Sprintf("image generation failed at %s (generation %d): %v", e.Stage, e.GenerationID, e.Err)
	}
	return fmt.Sprintf("image generation failed at %s: %v", e.Stage, e.Err)
}

func (e *ImageGenerationError) Unwrap() error {
	return e.Err
}

const (
	StageUpload = "upload"
	StageSubmit = "submit"
)

func mapNotFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func mapLedgerError(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	return err
}
