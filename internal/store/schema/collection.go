package schema

import "time"

// Collection maps a tracked collection address to the marketplace-assigned
// collection ID. Resolved once and cached here.
type Collection struct {
	Address   string    `gorm:"column:address;primaryKey;type:text"`
	ID        string    `gorm:"column:id;not null;uniqueIndex;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for the Collection model
func (Collection) TableName() string {
	return "collections"
}
