package marketplace

import "time"

// Attribute is one trait on a marketplace item.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// ListingInfo describes the active listing on a snapshot item.
type ListingInfo struct {
	Price  string `json:"price"`
	TxID   string `json:"txId"`
	TxAt   string `json:"txAt"`
	Seller string `json:"seller"`
	Source string `json:"source"`
}

// LastSaleInfo describes the most recent sale of a snapshot item.
type LastSaleInfo struct {
	Price  string `json:"price"`
	TxID   string `json:"txId"`
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
}

// SnapshotItem is one item of a collection snapshot page.
type SnapshotItem struct {
	Mint        string        `json:"mint"`
	Name        string        `json:"name"`
	ImageURI    string        `json:"imageUri"`
	MetadataURI string        `json:"metadataUri"`
	Owner       string        `json:"owner"`
	Attributes  []Attribute   `json:"attributes"`
	Listing     *ListingInfo  `json:"listing"`
	LastSale    *LastSaleInfo `json:"lastSale"`
}

// SnapshotPage is one page of a collection snapshot.
type SnapshotPage struct {
	Items      []SnapshotItem
	NextCursor string
	HasMore    bool
}

// Bid is one standing bid on an item.
type Bid struct {
	Address   string `json:"address"`
	Bidder    string `json:"bidder"`
	Price     string `json:"price"`
	Expiry    string `json:"expiry"`
	ValidFrom string `json:"validFrom"`
}

// MintBids groups all bids on one item.
type MintBids struct {
	Mint string `json:"mint"`
	Bids []Bid  `json:"bids"`
}

// TxRecord is the transaction part of a history or live event.
type TxRecord struct {
	TxKey       string    `json:"txKey"`
	TxType      string    `json:"txType"`
	GrossAmount string    `json:"grossAmount"`
	SellerID    string    `json:"sellerId"`
	BuyerID     *string   `json:"buyerId"`
	BidAddress  string    `json:"bidAddress"`
	TxAt        time.Time `json:"txAt"`
}

// TxMint identifies the item a transaction touched.
type TxMint struct {
	OnchainID   string      `json:"onchainId"`
	Name        string      `json:"name"`
	ImageURI    string      `json:"imageUri"`
	MetadataURI string      `json:"metadataUri"`
	Owner       string      `json:"owner"`
	Attributes  []Attribute `json:"attributes"`
}

// HistoryTx is one entry of a transaction-history page.
type HistoryTx struct {
	Tx   TxRecord `json:"tx"`
	Mint TxMint   `json:"mint"`
}

// ActivityPage is one page of a collection's transaction history,
// ordered newest first.
type ActivityPage struct {
	Txs        []HistoryTx
	NextCursor string
	HasMore    bool
}

type pageInfo struct {
	HasMore   bool   `json:"hasMore"`
	EndCursor string `json:"endCursor"`
	Cursor    string `json:"cursor"`
}

type snapshotResponse struct {
	Mints []SnapshotItem `json:"mints"`
	Page  pageInfo       `json:"page"`
}

type historyResponse struct {
	Txs  []HistoryTx `json:"txs"`
	Page pageInfo    `json:"page"`
}

type findCollectionResponse struct {
	CollID string `json:"collId"`
}
