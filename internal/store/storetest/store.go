// Package storetest provides an in-memory Store implementation for tests.
// It mirrors the semantics of the PostgreSQL store: conflict-ignoring
// inserts, additive user upserts and wholesale set replacement.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/store"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// FakeStore is an in-memory store.Store and store.WatermarkStore. Setting
// Err makes every call fail with it.
type FakeStore struct {
	mu sync.Mutex

	Collections map[string]schema.Collection
	NFTs        map[string]*schema.NFT
	Activities  map[string]schema.Activity
	Users       map[string]schema.User
	Watermarks  map[string]string

	// MutationCalls records every mutation that carried actual work, in
	// order, so tests can assert that a pass wrote nothing.
	MutationCalls []string

	Err error
}

func (f *FakeStore) recordMutation(name string) {
	f.MutationCalls = append(f.MutationCalls, name)
}

// New creates an empty fake store
func New() *FakeStore {
	return &FakeStore{
		Collections: make(map[string]schema.Collection),
		NFTs:        make(map[string]*schema.NFT),
		Activities:  make(map[string]schema.Activity),
		Users:       make(map[string]schema.User),
		Watermarks:  make(map[string]string),
	}
}

var _ store.Store = (*FakeStore)(nil)
var _ store.WatermarkStore = (*FakeStore)(nil)

func (f *FakeStore) GetCollections(ctx context.Context) ([]schema.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]schema.Collection, 0, len(f.Collections))
	for _, c := range f.Collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (f *FakeStore) GetCollectionByAddress(ctx context.Context, address string) (*schema.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c, ok := f.Collections[address]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *FakeStore) CreateCollection(ctx context.Context, collection schema.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.Collections[collection.Address]; !ok {
		f.Collections[collection.Address] = collection
	}
	return nil
}

func (f *FakeStore) GetNFTByAddress(ctx context.Context, address string) (*schema.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	nft, ok := f.NFTs[address]
	if !ok {
		return nil, nil
	}
	copied := *nft
	return &copied, nil
}

func (f *FakeStore) GetAllNFTs(ctx context.Context) ([]schema.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]schema.NFT, 0, len(f.NFTs))
	for _, nft := range f.NFTs {
		out = append(out, *nft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (f *FakeStore) GetListedNFTs(ctx context.Context) ([]schema.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.NFT
	for _, nft := range f.NFTs {
		if nft.Listed && !nft.Burned {
			out = append(out, *nft)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := int64(0), int64(0)
		if out[i].Price != nil {
			pi = *out[i].Price
		}
		if out[j].Price != nil {
			pj = *out[j].Price
		}
		return pi < pj
	})
	return out, nil
}

func (f *FakeStore) GetNFTsByOwner(ctx context.Context, owner string) ([]schema.NFT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.NFT
	for _, nft := range f.NFTs {
		if nft.Owner == owner && !nft.Burned {
			out = append(out, *nft)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (f *FakeStore) CreateNFTs(ctx context.Context, nfts []schema.NFT) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if len(nfts) > 0 {
		f.recordMutation("CreateNFTs")
	}
	for _, nft := range nfts {
		if _, ok := f.NFTs[nft.Address]; ok {
			continue
		}
		copied := nft
		f.NFTs[nft.Address] = &copied
	}
	return nil
}

func (f *FakeStore) UpdateNFTCores(ctx context.Context, updates []store.NFTCoreUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if len(updates) > 0 {
		f.recordMutation("UpdateNFTCores")
	}
	for _, u := range updates {
		nft, ok := f.NFTs[u.Address]
		if !ok {
			continue
		}
		nft.Owner = u.Owner
		nft.Name = u.Name
		nft.Image = u.Image
		nft.Price = u.Price
		nft.Listed = u.Listed
		nft.LastSale = u.LastSale
		nft.Properties = u.Properties
		nft.Burned = false
	}
	return nil
}

func (f *FakeStore) MarkBurned(ctx context.Context, addresses []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if len(addresses) > 0 {
		f.recordMutation("MarkBurned")
	}
	var n int64
	for _, address := range addresses {
		if nft, ok := f.NFTs[address]; ok && !nft.Burned {
			nft.Burned = true
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) ReplaceMetadata(ctx context.Context, sets map[string][]schema.MetadataEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if len(sets) > 0 {
		f.recordMutation("ReplaceMetadata")
	}
	for address, set := range sets {
		if nft, ok := f.NFTs[address]; ok {
			nft.Metadata = append([]schema.MetadataEntry(nil), set...)
		}
	}
	return nil
}

func (f *FakeStore) ReplaceOffers(ctx context.Context, sets map[string][]schema.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if len(sets) > 0 {
		f.recordMutation("ReplaceOffers")
	}
	for address, set := range sets {
		if nft, ok := f.NFTs[address]; ok {
			nft.Offers = append([]schema.Offer(nil), set...)
		}
	}
	return nil
}

func (f *FakeStore) GetOffersForNFTs(ctx context.Context, addresses []string) ([]schema.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.Offer
	for _, address := range addresses {
		if nft, ok := f.NFTs[address]; ok {
			out = append(out, nft.Offers...)
		}
	}
	return out, nil
}

func (f *FakeStore) GetOffersByBidder(ctx context.Context, bidder string) ([]schema.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.Offer
	for _, nft := range f.NFTs {
		for _, offer := range nft.Offers {
			if offer.Bidder == bidder {
				out = append(out, offer)
			}
		}
	}
	return out, nil
}

func (f *FakeStore) ApplyListing(ctx context.Context, address string, price int64, seller string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("ApplyListing")
	if nft, ok := f.NFTs[address]; ok {
		nft.Price = &price
		nft.Listed = true
		nft.Owner = seller
	}
	return nil
}

func (f *FakeStore) ApplyDelisting(ctx context.Context, address string, seller string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("ApplyDelisting")
	if nft, ok := f.NFTs[address]; ok {
		nft.Price = nil
		nft.Listed = false
		nft.Owner = seller
	}
	return nil
}

func (f *FakeStore) ApplySale(ctx context.Context, sale store.SaleInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("ApplySale")
	if nft, ok := f.NFTs[sale.NFTAddress]; ok {
		nft.Price = nil
		nft.Listed = false
		nft.LastSale = sale.Gross
		nft.Owner = sale.Buyer
		nft.Offers = nil
	}
	if _, ok := f.Activities[sale.Activity.TxID]; !ok {
		f.Activities[sale.Activity.TxID] = sale.Activity
	}
	return nil
}

func (f *FakeStore) AddOffer(ctx context.Context, offer schema.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("AddOffer")
	nft, ok := f.NFTs[offer.NFTAddress]
	if !ok {
		return nil
	}
	for _, existing := range nft.Offers {
		if existing.Address == offer.Address {
			return nil
		}
	}
	nft.Offers = append(nft.Offers, offer)
	return nil
}

func (f *FakeStore) RemoveOffer(ctx context.Context, offerAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("RemoveOffer")
	for _, nft := range f.NFTs {
		for i, offer := range nft.Offers {
			if offer.Address == offerAddress {
				nft.Offers = append(nft.Offers[:i], nft.Offers[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (f *FakeStore) CreateActivities(ctx context.Context, activities []schema.Activity) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if len(activities) > 0 {
		f.recordMutation("CreateActivities")
	}
	var n int64
	for _, activity := range activities {
		if _, ok := f.Activities[activity.TxID]; ok {
			continue
		}
		f.Activities[activity.TxID] = activity
		n++
	}
	return n, nil
}

func (f *FakeStore) GetRecentSales(ctx context.Context, limit int) ([]schema.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.Activity
	for _, activity := range f.Activities {
		if activity.Type == domain.ActivityBuy || activity.Type == domain.ActivityAcceptBid {
			out = append(out, activity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeStore) GetActivitiesByUser(ctx context.Context, address string, limit int) ([]schema.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []schema.Activity
	for _, activity := range f.Activities {
		if activity.From == address || (activity.To != nil && *activity.To == address) {
			out = append(out, activity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeStore) ApplyUserDeltas(ctx context.Context, deltas []schema.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if len(deltas) > 0 {
		f.recordMutation("ApplyUserDeltas")
	}
	for _, delta := range deltas {
		user := f.Users[delta.Address]
		user.Address = delta.Address
		user.Cards += delta.Cards
		user.Level += delta.Level
		user.TotalListed += delta.TotalListed
		user.TotalSold += delta.TotalSold
		user.TotalSoldValue += delta.TotalSoldValue
		user.TotalBought += delta.TotalBought
		user.TotalBoughtValue += delta.TotalBoughtValue
		f.Users[delta.Address] = user
	}
	return nil
}

func (f *FakeStore) GetUser(ctx context.Context, address string) (*schema.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	user, ok := f.Users[address]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (f *FakeStore) GetLeaderboard(ctx context.Context, limit int) ([]schema.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]schema.User, 0, len(f.Users))
	for _, user := range f.Users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalBoughtValue > out[j].TotalBoughtValue })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeStore) GetWatermark(ctx context.Context, collectionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	return f.Watermarks[collectionID], nil
}

func (f *FakeStore) SetWatermark(ctx context.Context, collectionID string, txid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.recordMutation("SetWatermark")
	f.Watermarks[collectionID] = txid
	return nil
}
