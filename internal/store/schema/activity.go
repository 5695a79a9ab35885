package schema

import (
	"time"

	"github.com/universalnft/marketplace-indexer/internal/domain"
)

// Activity represents one immutable marketplace event. Rows are insert-only;
// duplicate txids are silently ignored so re-imports are safe.
type Activity struct {
	TxID       string              `gorm:"column:txid;primaryKey;type:text"`
	Time       time.Time           `gorm:"column:time;not null;index"`
	From       string              `gorm:"column:from_address;not null;type:text;index"`
	To         *string             `gorm:"column:to_address;type:text"`
	Amount     *int64              `gorm:"column:amount"`
	Type       domain.ActivityType `gorm:"column:type;not null;type:text;index"`
	NFTAddress string              `gorm:"column:nft_address;not null;type:text;index"`
}

// TableName specifies the table name for the Activity model
func (Activity) TableName() string {
	return "activities"
}
