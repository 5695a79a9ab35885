package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func buildTestNFT(address, owner string, price *int64) schema.NFT {
	return schema.NFT{
		Address: address,
		Owner:   owner,
		Name:    "Asset " + address,
		Image:   "https://img.test/" + address + ".png",
		Price:   price,
		Listed:  price != nil,
		Metadata: []schema.MetadataEntry{
			{ID: uuid.NewString(), NFTAddress: address, Key: "Background", Value: "Gold"},
		},
	}
}

func buildTestActivity(txid string, at time.Time, typ domain.ActivityType, from string, to *string, amount int64) schema.Activity {
	return schema.Activity{
		TxID:       txid,
		Time:       at,
		From:       from,
		To:         to,
		Amount:     &amount,
		Type:       typ,
		NFTAddress: "MintA",
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

// =============================================================================
// Suite
// =============================================================================

// RunStoreTests runs every store test against a fresh database handle
func RunStoreTests(t *testing.T, initDB func(t *testing.T) *gorm.DB) {
	tests := []struct {
		name string
		fn   func(*testing.T, *gorm.DB)
	}{
		{"Collections", testCollections},
		{"CreateAndGetNFTs", testCreateAndGetNFTs},
		{"ListedNFTs", testListedNFTs},
		{"NFTsByOwner", testNFTsByOwner},
		{"UpdateNFTCores", testUpdateNFTCores},
		{"MarkBurned", testMarkBurned},
		{"ReplaceMetadata", testReplaceMetadata},
		{"ReplaceOffers", testReplaceOffers},
		{"ListingLifecycle", testListingLifecycle},
		{"ApplySale", testApplySale},
		{"AddRemoveOffer", testAddRemoveOffer},
		{"Activities", testActivities},
		{"UserDeltas", testUserDeltas},
		{"Watermarks", testWatermarks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, initDB(t))
		})
	}
}

func testCollections(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.CreateCollection(ctx, schema.Collection{Address: "CollAddr", ID: "coll-1"}))
	// duplicate address is ignored
	require.NoError(t, st.CreateCollection(ctx, schema.Collection{Address: "CollAddr", ID: "coll-other"}))

	coll, err := st.GetCollectionByAddress(ctx, "CollAddr")
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, "coll-1", coll.ID)

	unknown, err := st.GetCollectionByAddress(ctx, "Nope")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	all, err := st.GetCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testCreateAndGetNFTs(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	nft := buildTestNFT("MintA", "OwnerA", int64Ptr(1000))
	nft.Offers = []schema.Offer{
		{Address: "Bid1", NFTAddress: "MintA", Bidder: "BidderY", BidAmount: 700},
	}
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{nft}))

	// re-creating the same address is ignored, not an error
	dup := buildTestNFT("MintA", "SomeoneElse", nil)
	dup.Metadata = nil
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{dup}))

	got, err := st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "OwnerA", got.Owner)
	require.Len(t, got.Metadata, 1)
	assert.Equal(t, "Background", got.Metadata[0].Key)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, int64(700), got.Offers[0].BidAmount)

	missing, err := st.GetNFTByAddress(ctx, "Unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testListedNFTs(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	cheap := buildTestNFT("MintCheap", "OwnerA", int64Ptr(100))
	pricey := buildTestNFT("MintPricey", "OwnerB", int64Ptr(9000))
	unlisted := buildTestNFT("MintIdle", "OwnerC", nil)
	burned := buildTestNFT("MintGone", "OwnerD", int64Ptr(50))
	burned.Burned = true
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{pricey, cheap, unlisted, burned}))

	listed, err := st.GetListedNFTs(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "MintCheap", listed[0].Address)
	assert.Equal(t, "MintPricey", listed[1].Address)
}

func testNFTsByOwner(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	a := buildTestNFT("MintA", "HolderX", nil)
	b := buildTestNFT("MintB", "HolderX", nil)
	b.Burned = true
	c := buildTestNFT("MintC", "HolderY", nil)
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{a, b, c}))

	held, err := st.GetNFTsByOwner(ctx, "HolderX")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "MintA", held[0].Address)
}

func testUpdateNFTCores(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	nft := buildTestNFT("MintA", "OwnerA", nil)
	nft.Burned = true
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{nft}))

	require.NoError(t, st.UpdateNFTCores(ctx, []NFTCoreUpdate{{
		Address:    "MintA",
		Owner:      "OwnerB",
		Name:       "Renamed",
		Image:      "https://img.test/new.png",
		Price:      int64Ptr(1500),
		Listed:     true,
		LastSale:   900,
		Properties: datatypes.JSON(`{"category":"image"}`),
	}}))

	got, err := st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "OwnerB", got.Owner)
	assert.Equal(t, "Renamed", got.Name)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(1500), *got.Price)
	assert.True(t, got.Listed)
	assert.Equal(t, int64(900), got.LastSale)
	// a core update always resurrects the record
	assert.False(t, got.Burned)
	assert.JSONEq(t, `{"category":"image"}`, string(got.Properties))
}

func testMarkBurned(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{
		buildTestNFT("MintA", "OwnerA", nil),
		buildTestNFT("MintB", "OwnerB", nil),
	}))

	n, err := st.MarkBurned(ctx, []string{"MintA", "MintB", "MintUnknown"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// already-burned rows are not counted again
	n, err = st.MarkBurned(ctx, []string{"MintA"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testReplaceMetadata(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{buildTestNFT("MintA", "OwnerA", nil)}))

	require.NoError(t, st.ReplaceMetadata(ctx, map[string][]schema.MetadataEntry{
		"MintA": {
			{ID: uuid.NewString(), NFTAddress: "MintA", Key: "Background", Value: "Silver"},
			{ID: uuid.NewString(), NFTAddress: "MintA", Key: "Rarity", Value: "Epic"},
		},
	}))

	got, err := st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, got.Metadata, 2)
	values := map[string]string{}
	for _, entry := range got.Metadata {
		values[entry.Key] = entry.Value
	}
	// the old Gold entry is gone, the set was replaced wholesale
	assert.Equal(t, map[string]string{"Background": "Silver", "Rarity": "Epic"}, values)
}

func testReplaceOffers(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	nft := buildTestNFT("MintA", "OwnerA", nil)
	nft.Offers = []schema.Offer{{Address: "BidOld", NFTAddress: "MintA", Bidder: "BidderOld", BidAmount: 100}}
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{nft}))

	require.NoError(t, st.ReplaceOffers(ctx, map[string][]schema.Offer{
		"MintA": {
			{Address: "BidLow", NFTAddress: "MintA", Bidder: "BidderY", BidAmount: 500},
			{Address: "BidHigh", NFTAddress: "MintA", Bidder: "BidderZ", BidAmount: 800},
		},
	}))

	offers, err := st.GetOffersForNFTs(ctx, []string{"MintA"})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	// highest bid first
	assert.Equal(t, "BidHigh", offers[0].Address)
	assert.Equal(t, "BidLow", offers[1].Address)

	mine, err := st.GetOffersByBidder(ctx, "BidderZ")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "BidHigh", mine[0].Address)
}

func testListingLifecycle(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{buildTestNFT("MintA", "OwnerA", nil)}))

	require.NoError(t, st.ApplyListing(ctx, "MintA", 2500, "OwnerA"))
	got, err := st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	assert.True(t, got.Listed)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(2500), *got.Price)

	require.NoError(t, st.ApplyDelisting(ctx, "MintA", "OwnerA"))
	got, err = st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	assert.False(t, got.Listed)
	assert.Nil(t, got.Price)
}

func testApplySale(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	nft := buildTestNFT("MintA", "SellerA", int64Ptr(1000))
	nft.Offers = []schema.Offer{{Address: "Bid1", NFTAddress: "MintA", Bidder: "BidderY", BidAmount: 700}}
	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{nft}))

	sale := SaleInput{
		NFTAddress: "MintA",
		Buyer:      "BuyerA",
		Seller:     "SellerA",
		Gross:      1000,
		TxID:       "tx-sale-1",
		Activity: schema.Activity{
			TxID:       "tx-sale-1",
			Time:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			From:       "SellerA",
			To:         strPtr("BuyerA"),
			Amount:     int64Ptr(1000),
			Type:       domain.ActivityBuy,
			NFTAddress: "MintA",
		},
	}
	require.NoError(t, st.ApplySale(ctx, sale))

	got, err := st.GetNFTByAddress(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, "BuyerA", got.Owner)
	assert.False(t, got.Listed)
	assert.Nil(t, got.Price)
	assert.Equal(t, int64(1000), got.LastSale)
	assert.Empty(t, got.Offers)

	// replaying the same sale leaves a single activity row
	require.NoError(t, st.ApplySale(ctx, sale))
	sales, err := st.GetRecentSales(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func testAddRemoveOffer(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.CreateNFTs(ctx, []schema.NFT{buildTestNFT("MintA", "OwnerA", nil)}))

	offer := schema.Offer{Address: "Bid1", NFTAddress: "MintA", Bidder: "BidderY", BidAmount: 600}
	require.NoError(t, st.AddOffer(ctx, offer))
	// replaying the same bid is ignored
	offer.BidAmount = 999
	require.NoError(t, st.AddOffer(ctx, offer))

	offers, err := st.GetOffersForNFTs(ctx, []string{"MintA"})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, int64(600), offers[0].BidAmount)

	require.NoError(t, st.RemoveOffer(ctx, "Bid1"))
	require.NoError(t, st.RemoveOffer(ctx, "BidUnknown"))

	offers, err = st.GetOffersForNFTs(ctx, []string{"MintA"})
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func testActivities(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	batch := []schema.Activity{
		buildTestActivity("tx-1", t0, domain.ActivityBuy, "SellerA", strPtr("BuyerA"), 1000),
		buildTestActivity("tx-2", t0.Add(time.Minute), domain.ActivityList, "SellerB", nil, 500),
		buildTestActivity("tx-3", t0.Add(2*time.Minute), domain.ActivityAcceptBid, "SellerC", strPtr("BuyerB"), 800),
	}
	inserted, err := st.CreateActivities(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inserted)

	// overlapping re-import only counts the new row
	batch = append(batch, buildTestActivity("tx-4", t0.Add(3*time.Minute), domain.ActivityDelist, "SellerB", nil, 0))
	inserted, err = st.CreateActivities(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	sales, err := st.GetRecentSales(ctx, 10)
	require.NoError(t, err)
	// only BUY and ACCEPT_BID qualify, newest first
	require.Len(t, sales, 2)
	assert.Equal(t, "tx-3", sales[0].TxID)
	assert.Equal(t, "tx-1", sales[1].TxID)

	mine, err := st.GetActivitiesByUser(ctx, "BuyerA", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "tx-1", mine[0].TxID)

	theirs, err := st.GetActivitiesByUser(ctx, "SellerB", 10)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)
}

func testUserDeltas(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	st := NewPGStore(db)

	require.NoError(t, st.ApplyUserDeltas(ctx, []schema.User{
		{Address: "BuyerA", TotalBought: 1, TotalBoughtValue: 1000, Cards: 1},
		{Address: "SellerB", TotalSold: 1, TotalSoldValue: 1000, Cards: -1, TotalListed: 2},
	}))
	// the second application adds, it does not overwrite
	require.NoError(t, st.ApplyUserDeltas(ctx, []schema.User{
		{Address: "BuyerA", TotalBought: 2, TotalBoughtValue: 3500, Cards: 2},
	}))

	buyer, err := st.GetUser(ctx, "BuyerA")
	require.NoError(t, err)
	require.NotNil(t, buyer)
	assert.Equal(t, 3, buyer.TotalBought)
	assert.Equal(t, int64(4500), buyer.TotalBoughtValue)
	assert.Equal(t, 3, buyer.Cards)

	seller, err := st.GetUser(ctx, "SellerB")
	require.NoError(t, err)
	require.NotNil(t, seller)
	assert.Equal(t, -1, seller.Cards)
	assert.Equal(t, 2, seller.TotalListed)

	nobody, err := st.GetUser(ctx, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, nobody)

	board, err := st.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "BuyerA", board[0].Address)
}

func testWatermarks(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	wm := NewWatermarkStore(db)

	value, err := wm.GetWatermark(ctx, "coll-1")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, wm.SetWatermark(ctx, "coll-1", "tx-100"))
	value, err = wm.GetWatermark(ctx, "coll-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-100", value)

	// advancing overwrites in place
	require.NoError(t, wm.SetWatermark(ctx, "coll-1", "tx-200"))
	value, err = wm.GetWatermark(ctx, "coll-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-200", value)

	// watermarks are per collection
	other, err := wm.GetWatermark(ctx, "coll-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
