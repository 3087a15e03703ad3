package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/pkg/enums"
)

// PurchaseEvent records an immutable phase transition of a purchase intent.
type PurchaseEvent struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	IntentID  uuid.UUID           `gorm:"column:intent_id;type:uuid;not null"`
	Phase     enums.PurchasePhase `gorm:"column:phase;not null"`
	Seq       int                 `gorm:"column:seq;not null"`
	TxHash    *string             `gorm:"column:tx_hash"`
	Detail    *string             `gorm:"column:detail"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}
