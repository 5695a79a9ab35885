package schema

// User holds cumulative per-address marketplace statistics. Counters are only
// ever moved by deltas (insert-or-add), never overwritten wholesale, so that
// concurrent updates from the importer and the live stream commute.
type User struct {
	Address          string `gorm:"column:address;primaryKey;type:text"`
	Cards            int    `gorm:"column:cards;not null;default:0"`
	Level            int    `gorm:"column:level;not null;default:0"`
	TotalListed      int    `gorm:"column:total_listed;not null;default:0"`
	TotalSold        int    `gorm:"column:total_sold;not null;default:0"`
	TotalSoldValue   int64  `gorm:"column:total_sold_value;not null;default:0"`
	TotalBought      int    `gorm:"column:total_bought;not null;default:0"`
	TotalBoughtValue int64  `gorm:"column:total_bought_value;not null;default:0"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
