package schema

import (
	"time"

	"gorm.io/datatypes"
)

// NFT represents the nfts table - one row per tracked marketplace NFT.
// Price is nil whenever the NFT is not listed; a burned row is retained for
// history but excluded from active queries.
type NFT struct {
	// Address is the NFT's on-chain address (mint)
	Address string `gorm:"column:address;primaryKey;type:text"`
	// Owner is the current owner (the seller while listed)
	Owner string `gorm:"column:owner;not null;type:text;index"`
	// Name is the display name reported by the marketplace
	Name string `gorm:"column:name;not null;type:text"`
	// Image is the resolved image URI
	Image string `gorm:"column:image;not null;default:'';type:text"`
	// Price is the current listing price in smallest units, nil when unlisted
	Price *int64 `gorm:"column:price"`
	// Listed indicates an active marketplace listing
	Listed bool `gorm:"column:listed;not null;default:false;index"`
	// LastSale is the gross amount of the most recent sale, 0 if never sold
	LastSale int64 `gorm:"column:last_sale;not null;default:0"`
	// Burned soft-deletes the record when it disappears from the full snapshot
	Burned bool `gorm:"column:burned;not null;default:false;index"`
	// Properties is the free-form properties blob from the token metadata
	Properties datatypes.JSON `gorm:"column:properties"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Associations
	Metadata []MetadataEntry `gorm:"foreignKey:NFTAddress;references:Address;constraint:OnDelete:CASCADE"`
	Offers   []Offer         `gorm:"foreignKey:NFTAddress;references:Address;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the NFT model
func (NFT) TableName() string {
	return "nfts"
}
