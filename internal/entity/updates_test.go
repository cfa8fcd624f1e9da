package entity

import "testing"

func TestGenerationUpdatesToMap(t *testing.T) {
	status := GenerationStatusCompleted
	url := "https://cdn.example.com/out.png"

	updates := GenerationUpdates{Status: &status, OutputImageURL: &url}
	m := updates.ToMap()

	if m["status"] != "completed" {
		t.Errorf("expected status completed, got %v", m["status"])
	}
	if m["output_image_url"] != url {
		t.Errorf("expected output url %s, got %v", url, m["output_image_url"])
	}
	if _, ok := m["provider_request_id"]; ok {
		t.Error("unset fields must not appear in the update map")
	}
	if updates.IsEmpty() {
		t.Error("expected non-empty updates")
	}
	if !(GenerationUpdates{}).IsEmpty() {
		t.Error("expected zero value to be empty")
	}
}

func TestGenerationAwaitingProvider(t *testing.T) {
	reqID := "req-1"
	empty := ""

	tests := []struct {
		name string
		gen  *DbGeneration
		want bool
	}{
		{name: "nil", gen: nil, want: false},
		{name: "未提交", gen: &DbGeneration{Status: GenerationStatusProcessing}, want: false},
		{name: "空请求ID", gen: &DbGeneration{Status: GenerationStatusPending, ProviderRequestID: &empty}, want: false},
		{name: "等待服务商", gen: &DbGeneration{Status: GenerationStatusPending, ProviderRequestID: &reqID}, want: true},
		{name: "已完成", gen: &DbGeneration{Status: GenerationStatusCompleted, ProviderRequestID: &reqID}, want: false},
		{name: "已失败", gen: &DbGeneration{Status: GenerationStatusFailed, ProviderRequestID: &reqID}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gen.AwaitingProvider(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCreditTransactionTypeValid(t *testing.T) {
	for _, typ := range []CreditTransactionType{CreditTypeUsage, CreditTypePurchase, CreditTypeRefund, CreditTypeBonus, CreditTypeReferral} {
		if !typ.Valid() {
			t.Errorf("expected %s to be valid", typ)
		}
	}
	if CreditTransactionType("gift").Valid() {
		t.Error("unexpected valid type")
	}
}
