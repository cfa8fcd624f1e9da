package entity

import "time"

// GenerationStatus 生成任务状态。pending 同时表示"已提交，等待服务商"。
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// DbGeneration stores one requested room transformation and its lifecycle.
type DbGeneration struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint    `gorm:"column:user_id;not null;index" json:"user_id"`
	User   *DbUser `gorm:"foreignKey:UserID" json:"-"`

	StyleSlug      string  `gorm:"column:style_slug;type:varchar(64);not null" json:"style_slug"`
	RoomType       string  `gorm:"column:room_type;type:varchar(64);not null" json:"room_type"`
	InputImageURL  string  `gorm:"column:input_image_url;type:text" json:"input_image_url"`
	InputImagePath string  `gorm:"column:input_image_path;type:varchar(512)" json:"-"`
	OutputImageURL *string `gorm:"column:output_image_url;type:text" json:"output_image_url"`
	Prompt         string  `gorm:"column:prompt;type:text" json:"prompt"`

	Status            GenerationStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	ProviderRequestID *string          `gorm:"column:provider_request_id;type:varchar(191);index" json:"provider_request_id"`
	ErrorMessage      string           `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	HDUnlocked  bool   `gorm:"column:hd_unlocked;not null;default:false" json:"hd_unlocked"`
	HDSessionID string `gorm:"column:hd_session_id;type:varchar(191)" json:"-"`
}

// TableName 指定表名
func (DbGeneration) TableName() string {
	return "generations"
}

// AwaitingProvider reports whether the job was accepted by the provider and
// has not reached a terminal state yet.
func (g *DbGeneration) AwaitingProvider() bool {
	if g == nil || g.ProviderRequestID == nil || *g.ProviderRequestID == "" {
		return false
	}
	return !g.Status.IsTerminal()
}

// GenerationQuery 生成记录分页查询
type GenerationQuery struct {
	BaseParams
	UserID uint   `json:"-" form:"-"`
	Status string `json:"status" form:"status" query:"status"`
}

// GenerateDesignRequest 提交生成请求
type GenerateDesignRequest struct {
	StyleSlug string `json:"style_slug" binding:"required"`
	RoomType  string `json:"room_type" binding:"required"`
	// Image 为 base64 / data URL 或可下载的 http(s) 地址
	Image  string `json:"image" binding:"required"`
	Prompt string `json:"prompt"`
}

// GenerateDesignResponse 提交成功的返回
type GenerateDesignResponse struct {
	GenerationID      uint             `json:"generationId"`
	ProviderRequestID string           `json:"providerRequestId"`
	Status            GenerationStatus `json:"status"`
}

// GenerationStatusResponse 轮询返回
type GenerationStatusResponse struct {
	Status   GenerationStatus `json:"status"`
	ImageURL string           `json:"imageUrl,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// GenerationListResponse 生成记录列表
type GenerationListResponse struct {
	Generations []DbGeneration `json:"generations"`
	Meta        *Meta          `json:"meta"`
}

// UnlockHDRequest HD 解锁请求
type UnlockHDRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// TrialGenerateRequest 匿名试用，不落库、不扣费
type TrialGenerateRequest struct {
	StyleSlug string `json:"style_slug" binding:"required"`
	RoomType  string `json:"room_type" binding:"required"`
	// Image 必须是 data URL / base64 或 http(s) 地址
	Image  string `json:"image" binding:"required"`
	Prompt string `json:"prompt"`
}

// TrialGenerateResponse 试用提交结果
type TrialGenerateResponse struct {
	RequestID string           `json:"requestId"`
	Status    GenerationStatus `json:"status"`
}
