package store

import (
	"context"

	"gorm.io/datatypes"

	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// NFTCoreUpdate carries the core fields of one NFT for a parameterized batch
// update during reconciliation. Applying it always clears the burned flag.
type NFTCoreUpdate struct {
	Address    string
	Owner      string
	Name       string
	Image      string
	Price      *int64
	Listed     bool
	LastSale   int64
	Properties datatypes.JSON
}

// SaleInput describes a completed sale applied as one store transaction:
// the listing is cleared, ownership moves to the buyer, all standing offers
// are dropped and a duplicate-safe activity row is appended.
type SaleInput struct {
	NFTAddress string
	Buyer      string
	Seller     string
	Gross      int64
	TxID       string
	Activity   schema.Activity
}

// Store defines the interface for database operations (the store gateway).
// All mutations are idempotent: replaying the same logical mutation is a
// no-op, which lets the live stream and the periodic sweep race safely.
type Store interface {
	// GetCollections returns all tracked collections with resolved IDs
	GetCollections(ctx context.Context) ([]schema.Collection, error)
	// GetCollectionByAddress returns a collection by address, nil when unknown
	GetCollectionByAddress(ctx context.Context, address string) (*schema.Collection, error)
	// CreateCollection persists a resolved collection; duplicates are ignored
	CreateCollection(ctx context.Context, collection schema.Collection) error

	// GetNFTByAddress returns one NFT with metadata and offers preloaded,
	// nil when unknown
	GetNFTByAddress(ctx context.Context, address string) (*schema.NFT, error)
	// GetAllNFTs returns the full local snapshot, burned records included,
	// with metadata and offers preloaded
	GetAllNFTs(ctx context.Context) ([]schema.NFT, error)
	// GetListedNFTs returns active listings (listed and not burned)
	GetListedNFTs(ctx context.Context) ([]schema.NFT, error)
	// GetNFTsByOwner returns unburned NFTs held by an address
	GetNFTsByOwner(ctx context.Context, owner string) ([]schema.NFT, error)
	// CreateNFTs bulk-inserts new records with their metadata and offers;
	// address conflicts are ignored
	CreateNFTs(ctx context.Context, nfts []schema.NFT) error
	// UpdateNFTCores applies core-field updates in parameterized batches,
	// clearing the burned flag on every touched record
	UpdateNFTCores(ctx context.Context, updates []NFTCoreUpdate) error
	// MarkBurned soft-deletes the given addresses
	MarkBurned(ctx context.Context, addresses []string) (int64, error)

	// ReplaceMetadata replaces the full metadata set of each given NFT
	ReplaceMetadata(ctx context.Context, sets map[string][]schema.MetadataEntry) error
	// ReplaceOffers replaces the full offer set of each given NFT
	ReplaceOffers(ctx context.Context, sets map[string][]schema.Offer) error
	// GetOffersForNFTs returns all offers on the given NFTs
	GetOffersForNFTs(ctx context.Context, addresses []string) ([]schema.Offer, error)
	// GetOffersByBidder returns all offers placed by an address
	GetOffersByBidder(ctx context.Context, bidder string) ([]schema.Offer, error)

	// ApplyListing marks an NFT listed at the given price by the seller
	ApplyListing(ctx context.Context, address string, price int64, seller string) error
	// ApplyDelisting clears an NFT's listing
	ApplyDelisting(ctx context.Context, address string, seller string) error
	// ApplySale applies a completed sale as one transaction
	ApplySale(ctx context.Context, sale SaleInput) error
	// AddOffer appends an offer; offer-address conflicts are ignored
	AddOffer(ctx context.Context, offer schema.Offer) error
	// RemoveOffer deletes an offer by its address; unknown offers are a no-op
	RemoveOffer(ctx context.Context, offerAddress string) error

	// CreateActivities bulk-inserts activity rows, silently skipping
	// duplicate txids, and reports how many rows were actually inserted
	CreateActivities(ctx context.Context, activities []schema.Activity) (int64, error)
	// GetRecentSales returns the most recent BUY/ACCEPT_BID activities
	GetRecentSales(ctx context.Context, limit int) ([]schema.Activity, error)
	// GetActivitiesByUser returns the most recent activities involving an address
	GetActivitiesByUser(ctx context.Context, address string, limit int) ([]schema.Activity, error)

	// ApplyUserDeltas upserts user rows additively: insert when absent,
	// otherwise add every counter to the stored value
	ApplyUserDeltas(ctx context.Context, deltas []schema.User) error
	// GetUser returns a user's stats, nil when the address has none yet
	GetUser(ctx context.Context, address string) (*schema.User, error)
	// GetLeaderboard returns users ordered by total bought value
	GetLeaderboard(ctx context.Context, limit int) ([]schema.User, error)
}

// AllModels lists every schema model for migration
func AllModels() []interface{} {
	return []interface{}{
		&schema.NFT{},
		&schema.MetadataEntry{},
		&schema.Offer{},
		&schema.Activity{},
		&schema.Collection{},
		&schema.User{},
		&schema.KeyValueStore{},
	}
}
