package domain

// ActivityType classifies a marketplace activity row.
type ActivityType string

const (
	// ActivityList records an NFT being put up for sale
	ActivityList ActivityType = "LIST"
	// ActivityDelist records a listing being withdrawn
	ActivityDelist ActivityType = "DELIST"
	// ActivityBuy records an instant purchase of a listed NFT
	ActivityBuy ActivityType = "BUY"
	// ActivitySell records an NFT sold into a pool/swap
	ActivitySell ActivityType = "SELL"
	// ActivityAcceptBid records a seller accepting a standing bid
	ActivityAcceptBid ActivityType = "ACCEPT_BID"
	// ActivityPlaceBid records a new bid on an NFT
	ActivityPlaceBid ActivityType = "PLACE_BID"
	// ActivityCancelBid records a bid being cancelled
	ActivityCancelBid ActivityType = "CANCEL_BID"
	// ActivityUpdate records any other mutation (price adjustment, unknown types)
	ActivityUpdate ActivityType = "UPDATE"
)

// Marketplace transaction types as reported by the upstream feed.
// They are mapped to ActivityType by MapTransactionType.
const (
	TxTypeList        = "LIST"
	TxTypeDelist      = "DELIST"
	TxTypeSaleBuyNow  = "SALE_BUY_NOW"
	TxTypeSaleAccept  = "SALE_ACCEPT_BID"
	TxTypePlaceBid    = "PLACE_BID"
	TxTypeCancelBid   = "CANCEL_BID"
	TxTypeRejectBid   = "REJECT_BID"
	TxTypeAdjustPrice = "ADJUST_PRICE"
	TxTypeSwapBuy     = "SWAP_BUY_NFT"
	TxTypeSwapSell    = "SWAP_SELL_NFT"
	TxTypeSwapDeposit = "SWAP_DEPOSIT_NFT"
	TxTypeSwapRelease = "SWAP_WITHDRAW_NFT"
)

// MapTransactionType maps an upstream transaction type onto an ActivityType.
// Unrecognized types fall back to ActivityUpdate; the second return value
// reports whether the type was recognized so callers can log the fallback.
func MapTransactionType(txType string) (ActivityType, bool) {
	switch txType {
	case TxTypeList, TxTypeSwapDeposit:
		return ActivityList, true
	case TxTypeDelist, TxTypeSwapRelease:
		return ActivityDelist, true
	case TxTypeSaleBuyNow, TxTypeSwapBuy:
		return ActivityBuy, true
	case TxTypeSwapSell:
		return ActivitySell, true
	case TxTypeSaleAccept:
		return ActivityAcceptBid, true
	case TxTypePlaceBid:
		return ActivityPlaceBid, true
	case TxTypeCancelBid, TxTypeRejectBid:
		return ActivityCancelBid, true
	case TxTypeAdjustPrice:
		return ActivityUpdate, true
	default:
		return ActivityUpdate, false
	}
}

// MutationKind classifies a store mutation published to downstream consumers.
type MutationKind string

const (
	MutationListed     MutationKind = "listed"
	MutationDelisted   MutationKind = "delisted"
	MutationSold       MutationKind = "sold"
	MutationBidPlaced  MutationKind = "bid_placed"
	MutationBidRemoved MutationKind = "bid_removed"
)

// MutationEvent is the envelope published to the message broker after the
// live handler applies a mutation to the store.
type MutationEvent struct {
	Kind       MutationKind `json:"kind"`
	NFTAddress string       `json:"nft_address"`
	TxID       string       `json:"tx_id,omitempty"`
	From       string       `json:"from,omitempty"`
	To         string       `json:"to,omitempty"`
	Amount     *int64       `json:"amount,omitempty"`
}
