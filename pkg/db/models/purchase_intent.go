package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgermart/pkg/enums"
)

// PurchaseIntent is the journal row for one purchase attempt.
type PurchaseIntent struct {
	ID                   uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	ItemID               int64                        `gorm:"column:item_id;not null"`
	Buyer                string                       `gorm:"column:buyer;not null"`
	Amount               decimal.Decimal              `gorm:"column:amount;type:numeric(78,0);not null"`
	Phase                enums.PurchasePhase          `gorm:"column:phase;not null"`
	Status               *enums.PurchaseStatus        `gorm:"column:status"`
	FailureReason        *enums.PurchaseFailureReason `gorm:"column:failure_reason"`
	AllowanceTx          *string                      `gorm:"column:allowance_tx"`
	PurchaseTx           *string                      `gorm:"column:purchase_tx"`
	AllowanceOutstanding bool                         `gorm:"column:allowance_outstanding;not null;default:false"`
	CreatedAt            time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt          *time.Time                   `gorm:"column:completed_at"`
}
