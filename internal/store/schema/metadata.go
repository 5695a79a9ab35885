package schema

// MetadataEntry represents one key/value attribute of an NFT. The key is
// unique per NFT; the full set is replaced wholesale whenever it diverges
// from the marketplace snapshot, never patched per entry.
type MetadataEntry struct {
	ID         string `gorm:"column:id;primaryKey;type:uuid"`
	NFTAddress string `gorm:"column:nft_address;not null;type:text;uniqueIndex:idx_metadata_nft_key,priority:1"`
	Key        string `gorm:"column:key;not null;type:text;uniqueIndex:idx_metadata_nft_key,priority:2"`
	Value      string `gorm:"column:value;not null;type:text"`
}

// TableName specifies the table name for the MetadataEntry model
func (MetadataEntry) TableName() string {
	return "metadata_entries"
}
