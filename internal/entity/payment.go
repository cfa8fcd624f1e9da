package entity

import "time"

// DbPaymentEvent journals verified payment-provider webhooks. The unique
// (provider, provider_event_id) pair turns a replayed delivery into an insert
// conflict.
type DbPaymentEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"column:provider;type:varchar(20);not null;uniqueIndex:ux_payment_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"column:provider_event_id;type:varchar(191);not null;uniqueIndex:ux_payment_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"column:event_type;type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"column:payload_json;type:text;not null" json:"payload_json"`
	Metadata        JSONMap    `gorm:"column:metadata;type:text" json:"metadata,omitempty"`
	ProcessedAt     *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"column:processing_error;type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (DbPaymentEvent) TableName() string {
	return "payment_events"
}

// CreditsCheckoutRequest 购买积分
type CreditsCheckoutRequest struct {
	PriceID string `json:"price_id" binding:"required"`
}

// CheckoutResponse 支付页地址
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// WebhookAck webhook 处理结果
type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}
