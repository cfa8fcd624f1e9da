package entity

// GenerationUpdates 生成记录更新字段
type GenerationUpdates struct {
	Status            *GenerationStatus
	ProviderRequestID *string
	OutputImageURL    *string
	ErrorMessage      *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u GenerationUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = string(*u.Status)
	}
	if u.ProviderRequestID != nil {
		updates["provider_request_id"] = *u.ProviderRequestID
	}
	if u.OutputImageURL != nil {
		updates["output_image_url"] = *u.OutputImageURL
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u GenerationUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
