package entity

import "time"

// CreditTransactionType 积分流水类型
type CreditTransactionType string

const (
	CreditTypeUsage    CreditTransactionType = "usage"
	CreditTypePurchase CreditTransactionType = "purchase"
	CreditTypeRefund   CreditTransactionType = "refund"
	CreditTypeBonus    CreditTransactionType = "bonus"
	CreditTypeReferral CreditTransactionType = "referral"
)

// Valid reports whether the type is one of the known ledger reasons.
func (t CreditTransactionType) Valid() bool {
	switch t {
	case CreditTypeUsage, CreditTypePurchase, CreditTypeRefund, CreditTypeBonus, CreditTypeReferral:
		return true
	default:
		return false
	}
}

// DbCreditTransaction is an immutable ledger row. Amount is signed: negative
// rows are debits, positive rows are credits.
type DbCreditTransaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	UserID          uint                  `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount          int64                 `gorm:"column:amount;not null" json:"amount"`
	Type            CreditTransactionType `gorm:"column:type;type:varchar(32);not null;index:idx_credit_tx_related,priority:1" json:"type"`
	Reason          string                `gorm:"column:reason;type:varchar(255)" json:"reason"`
	RelatedEntityID string                `gorm:"column:related_entity_id;type:varchar(191);index:idx_credit_tx_related,priority:2" json:"related_entity_id,omitempty"`
	// IdempotencyKey 为空时不参与唯一约束；购买和退款写入 "<type>:<related>"
	IdempotencyKey *string `gorm:"column:idempotency_key;type:varchar(191);uniqueIndex" json:"-"`
}

// TableName 指定表名
func (DbCreditTransaction) TableName() string {
	return "credit_transactions"
}

// CreditTransactionQuery 积分流水分页查询
type CreditTransactionQuery struct {
	BaseParams
	UserID uint   `json:"-" form:"-"`
	Type   string `json:"type" form:"type" query:"type"`
}

// CreditSummaryResponse 余额和最近流水
type CreditSummaryResponse struct {
	Balance      int64                 `json:"balance"`
	Transactions []DbCreditTransaction `json:"transactions"`
	Meta         *Meta                 `json:"meta"`
}
