package live

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
	"github.com/universalnft/marketplace-indexer/internal/store/storetest"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type fakeResolver struct {
	asset *assets.Asset
	err   error
	calls int
}

func (f *fakeResolver) GetAsset(ctx context.Context, address string) (*assets.Asset, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.asset, nil
}

func (f *fakeResolver) LatestBlockhash(ctx context.Context) (string, error) {
	return "FakeBlockhash1111111111111111111111111111111", nil
}

type fakeMetadataClient struct {
	blob []byte
	err  error
}

func (f *fakeMetadataClient) FetchMetadataBlob(ctx context.Context, uri string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blob, nil
}

func (f *fakeMetadataClient) ResolveCollectionID(ctx context.Context, address string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeMetadataClient) FetchSnapshotPage(ctx context.Context, collID string, cursor string) (*marketplace.SnapshotPage, error) {
	return nil, errors.New("not used")
}

func (f *fakeMetadataClient) FetchAllOffers(ctx context.Context, mints []string) ([]marketplace.MintBids, error) {
	return nil, errors.New("not used")
}

func (f *fakeMetadataClient) FetchActivityPage(ctx context.Context, collID string, cursor string) (*marketplace.ActivityPage, error) {
	return nil, errors.New("not used")
}

func (f *fakeMetadataClient) BuildTransaction(ctx context.Context, kind string, params url.Values) ([]byte, error) {
	return nil, errors.New("not used")
}

type fakePublisher struct {
	events []*domain.MutationEvent
	err    error
}

func (f *fakePublisher) PublishMutation(ctx context.Context, event *domain.MutationEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) Close() {}

func knownNFTStore() *storetest.FakeStore {
	st := storetest.New()
	price := int64(1000)
	st.NFTs["MintA"] = &schema.NFT{
		Address: "MintA",
		Owner:   "SellerA",
		Listed:  true,
		Price:   &price,
		Offers: []schema.Offer{
			{Address: "Bid1", NFTAddress: "MintA", Bidder: "BidderX", BidAmount: 900},
		},
	}
	return st
}

func buyTx() (marketplace.TxRecord, marketplace.TxMint) {
	buyer := "BuyerA"
	return marketplace.TxRecord{
		TxKey:       "tx-buy-1",
		TxType:      domain.TxTypeSaleBuyNow,
		GrossAmount: "1000",
		SellerID:    "SellerA",
		BuyerID:     &buyer,
		TxAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, marketplace.TxMint{OnchainID: "MintA"}
}

func TestHandler_Buy(t *testing.T) {
	st := knownNFTStore()
	pub := &fakePublisher{}
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, pub)

	tx, mint := buyTx()
	require.NoError(t, h.HandleTransaction(context.Background(), tx, mint))

	nft := st.NFTs["MintA"]
	assert.False(t, nft.Listed)
	assert.Nil(t, nft.Price)
	assert.Equal(t, "BuyerA", nft.Owner)
	assert.Equal(t, int64(1000), nft.LastSale)
	assert.Empty(t, nft.Offers)

	// SALE_BUY_NOW records a BUY activity
	require.Contains(t, st.Activities, "tx-buy-1")
	activity := st.Activities["tx-buy-1"]
	assert.Equal(t, domain.ActivityBuy, activity.Type)
	assert.Equal(t, "SellerA", activity.From)
	require.NotNil(t, activity.To)
	assert.Equal(t, "BuyerA", *activity.To)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.MutationSold, pub.events[0].Kind)
}

func TestHandler_Buy_Replay(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx, mint := buyTx()
	require.NoError(t, h.HandleTransaction(context.Background(), tx, mint))
	require.NoError(t, h.HandleTransaction(context.Background(), tx, mint))

	// the duplicate left state and activity untouched
	assert.Len(t, st.Activities, 1)
	assert.Equal(t, "BuyerA", st.NFTs["MintA"].Owner)
}

func TestHandler_AcceptBid(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx, mint := buyTx()
	tx.TxKey = "tx-accept-1"
	tx.TxType = domain.TxTypeSaleAccept
	require.NoError(t, h.HandleTransaction(context.Background(), tx, mint))

	require.Contains(t, st.Activities, "tx-accept-1")
	assert.Equal(t, domain.ActivityAcceptBid, st.Activities["tx-accept-1"].Type)
}

func TestHandler_List(t *testing.T) {
	st := knownNFTStore()
	st.NFTs["MintA"].Listed = false
	st.NFTs["MintA"].Price = nil
	pub := &fakePublisher{}
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, pub)

	tx := marketplace.TxRecord{
		TxKey:       "tx-list-1",
		TxType:      domain.TxTypeList,
		GrossAmount: "2000",
		SellerID:    "SellerA",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	nft := st.NFTs["MintA"]
	assert.True(t, nft.Listed)
	require.NotNil(t, nft.Price)
	assert.Equal(t, int64(2000), *nft.Price)
	assert.Equal(t, "SellerA", nft.Owner)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.MutationListed, pub.events[0].Kind)
}

func TestHandler_Delist(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx := marketplace.TxRecord{
		TxKey:    "tx-delist-1",
		TxType:   domain.TxTypeDelist,
		SellerID: "SellerA",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	nft := st.NFTs["MintA"]
	assert.False(t, nft.Listed)
	assert.Nil(t, nft.Price)
}

func TestHandler_FetchOrCreate_NewTrackedAsset(t *testing.T) {
	st := storetest.New()
	st.Collections["CollAddr"] = schema.Collection{Address: "CollAddr", ID: "coll-1"}

	resolver := &fakeResolver{asset: &assets.Asset{
		Address:     "MintNew",
		Name:        "Fresh Asset",
		Owner:       "HolderZ",
		MetadataURI: "https://metadata.test/new.json",
		Collection:  "CollAddr",
	}}
	client := &fakeMetadataClient{blob: []byte(`{
		"image": "https://img.test/new.png",
		"properties": {"category": "image"},
		"attributes": [{"trait_type": "Background", "value": "Gold"}]
	}`)}
	h := NewHandler(st, resolver, client, &fakePublisher{})

	tx := marketplace.TxRecord{
		TxKey:       "tx-list-2",
		TxType:      domain.TxTypeList,
		GrossAmount: "3000",
		SellerID:    "SellerZ",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintNew"}))

	nft := st.NFTs["MintNew"]
	require.NotNil(t, nft)
	assert.Equal(t, "Fresh Asset", nft.Name)
	assert.Equal(t, "https://img.test/new.png", nft.Image)
	assert.JSONEq(t, `{"category":"image"}`, string(nft.Properties))
	require.Len(t, nft.Metadata, 1)
	assert.Equal(t, "Background", nft.Metadata[0].Key)
	assert.True(t, nft.Listed)
	require.NotNil(t, nft.Price)
	assert.Equal(t, int64(3000), *nft.Price)
}

func TestHandler_FetchOrCreate_UntrackedCollectionNoOps(t *testing.T) {
	st := storetest.New()
	resolver := &fakeResolver{asset: &assets.Asset{
		Address:    "MintForeign",
		Collection: "SomeOtherCollection",
	}}
	pub := &fakePublisher{}
	h := NewHandler(st, resolver, &fakeMetadataClient{}, pub)

	tx := marketplace.TxRecord{
		TxKey:       "tx-list-3",
		TxType:      domain.TxTypeList,
		GrossAmount: "3000",
		SellerID:    "SellerZ",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintForeign"}))

	assert.Empty(t, st.NFTs)
	assert.Empty(t, pub.events)
}

func TestHandler_PlaceBid(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx := marketplace.TxRecord{
		TxKey:       "tx-bid-1",
		TxType:      domain.TxTypePlaceBid,
		GrossAmount: "950",
		SellerID:    "BidderY",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	offers := st.NFTs["MintA"].Offers
	require.Len(t, offers, 2)
	// bid address falls back to the txid when the event carries none
	assert.Equal(t, "tx-bid-1", offers[1].Address)
	assert.Equal(t, "BidderY", offers[1].Bidder)
	assert.Equal(t, int64(950), offers[1].BidAmount)
}

func TestHandler_CancelBid(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx := marketplace.TxRecord{
		TxKey:      "tx-cancel-1",
		TxType:     domain.TxTypeCancelBid,
		BidAddress: "Bid1",
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	assert.Empty(t, st.NFTs["MintA"].Offers)
}

func TestHandler_CancelBid_WithoutBidAddress(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx := marketplace.TxRecord{
		TxKey:  "tx-cancel-2",
		TxType: domain.TxTypeCancelBid,
	}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	// left for the next reconciliation pass
	assert.Len(t, st.NFTs["MintA"].Offers, 1)
}

func TestHandler_PublishFailureNotPropagated(t *testing.T) {
	st := knownNFTStore()
	pub := &fakePublisher{err: errors.New("nats down")}
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, pub)

	tx, mint := buyTx()
	assert.NoError(t, h.HandleTransaction(context.Background(), tx, mint))
}

func TestHandler_UnknownTypeIgnored(t *testing.T) {
	st := knownNFTStore()
	h := NewHandler(st, &fakeResolver{}, &fakeMetadataClient{}, &fakePublisher{})

	tx := marketplace.TxRecord{TxKey: "tx-x", TxType: "SOMETHING_ELSE"}
	require.NoError(t, h.HandleTransaction(context.Background(), tx, marketplace.TxMint{OnchainID: "MintA"}))

	assert.Empty(t, st.MutationCalls)
}
