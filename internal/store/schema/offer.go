package schema

import "time"

// Offer represents a standing bid on an NFT. Offers are replaced
// delete-then-recreate on divergence, never diffed field by field.
type Offer struct {
	// Address is the on-chain address of the bid state account
	Address    string    `gorm:"column:address;primaryKey;type:text"`
	NFTAddress string    `gorm:"column:nft_address;not null;type:text;index"`
	Bidder     string    `gorm:"column:bidder;not null;type:text;index"`
	BidAmount  int64     `gorm:"column:bid_amount;not null"`
	Expiry     time.Time `gorm:"column:expiry"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for the Offer model
func (Offer) TableName() string {
	return "offers"
}
