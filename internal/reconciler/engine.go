package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

const defaultMetadataWorkers = 16

// Engine runs one full snapshot reconciliation pass: it pulls the complete
// remote state of every tracked collection, diffs it against the local
// snapshot and applies the minimal set of idempotent store mutations.
type Engine struct {
	store       store.Store
	client      marketplace.Client
	collections []string
	workers     int
	log         *zap.Logger
}

// NewEngine creates a reconciliation engine for the given collection addresses
func NewEngine(st store.Store, client marketplace.Client, collections []string, metadataWorkers int) *Engine {
	if metadataWorkers <= 0 {
		metadataWorkers = defaultMetadataWorkers
	}
	return &Engine{
		store:       st,
		client:      client,
		collections: collections,
		workers:     metadataWorkers,
		log:         logger.Default(),
	}
}

// Run executes one reconciliation pass. Any error aborts the pass; the
// scheduler retries on a short interval.
func (e *Engine) Run(ctx context.Context) error {
	collections, err := e.ensureCollections(ctx)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		e.log.Warn("no resolved collections, skipping reconciliation")
		return nil
	}

	var items []marketplace.SnapshotItem
	for _, coll := range collections {
		collItems, err := e.fetchSnapshot(ctx, coll.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch snapshot for collection %s: %w", coll.ID, err)
		}
		items = append(items, collItems...)
	}

	mints := make([]string, len(items))
	for i, item := range items {
		mints[i] = item.Mint
	}

	bids, err := e.client.FetchAllOffers(ctx, mints)
	if err != nil {
		return fmt.Errorf("failed to fetch offers: %w", err)
	}
	bidsByMint := make(map[string][]marketplace.Bid, len(bids))
	for _, mb := range bids {
		bidsByMint[mb.Mint] = mb.Bids
	}

	properties := e.fetchProperties(ctx, items)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	remote := e.assemble(items, bidsByMint, properties)

	local, err := e.store.GetAllNFTs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load local snapshot: %w", err)
	}

	return e.apply(ctx, remote, local)
}

// ensureCollections resolves every configured collection address to its
// marketplace ID, caching resolutions in the store. An unknown address is
// terminal for that collection and only logged.
func (e *Engine) ensureCollections(ctx context.Context) ([]schema.Collection, error) {
	var collections []schema.Collection
	for _, address := range e.collections {
		existing, err := e.store.GetCollectionByAddress(ctx, address)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			collections = append(collections, *existing)
			continue
		}

		id, err := e.client.ResolveCollectionID(ctx, address)
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				e.log.Error("collection not known to marketplace, skipping",
					zap.String("address", address))
				continue
			}
			return nil, err
		}

		coll := schema.Collection{Address: address, ID: id}
		if err := e.store.CreateCollection(ctx, coll); err != nil {
			return nil, err
		}
		e.log.Info("resolved collection",
			zap.String("address", address),
			zap.String("id", id))
		collections = append(collections, coll)
	}
	return collections, nil
}

func (e *Engine) fetchSnapshot(ctx context.Context, collID string) ([]marketplace.SnapshotItem, error) {
	var items []marketplace.SnapshotItem
	cursor := ""
	for {
		page, err := e.client.FetchSnapshotPage(ctx, collID, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if !page.HasMore {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

// fetchProperties pulls the token metadata blob of every item through a
// bounded worker pool and extracts its properties object. Failures are
// logged and the item simply keeps no properties this pass.
func (e *Engine) fetchProperties(ctx context.Context, items []marketplace.SnapshotItem) map[string]datatypes.JSON {
	result := make(map[string]datatypes.JSON, len(items))
	var mu sync.Mutex

	pool := pond.NewPool(e.workers, pond.WithContext(ctx))
	for _, item := range items {
		if item.MetadataURI == "" {
			continue
		}
		pool.Submit(func() {
			blob, err := e.client.FetchMetadataBlob(ctx, item.MetadataURI)
			if err != nil {
				e.log.Warn("failed to fetch token metadata, skipping",
					zap.String("mint", item.Mint),
					zap.Error(err))
				return
			}

			var parsed struct {
				Properties json.RawMessage `json:"properties"`
			}
			if err := json.Unmarshal(blob, &parsed); err != nil {
				e.log.Warn("malformed token metadata, skipping",
					zap.String("mint", item.Mint),
					zap.Error(err))
				return
			}
			if len(parsed.Properties) == 0 || string(parsed.Properties) == "null" {
				return
			}

			mu.Lock()
			result[item.Mint] = datatypes.JSON(parsed.Properties)
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	return result
}

// assemble builds the canonical remote records from the snapshot items,
// their bids and their metadata properties.
func (e *Engine) assemble(items []marketplace.SnapshotItem, bidsByMint map[string][]marketplace.Bid, properties map[string]datatypes.JSON) []schema.NFT {
	remote := make([]schema.NFT, 0, len(items))
	for _, item := range items {
		nft := schema.NFT{
			Address:    item.Mint,
			Owner:      item.Owner,
			Name:       item.Name,
			Image:      item.ImageURI,
			Properties: properties[item.Mint],
		}

		if item.Listing != nil {
			nft.Listed = true
			nft.Price = parseAmount(item.Listing.Price)
			if item.Listing.Seller != "" {
				nft.Owner = item.Listing.Seller
			}
		}
		if item.LastSale != nil {
			if amount := parseAmount(item.LastSale.Price); amount != nil {
				nft.LastSale = *amount
			}
		}

		for _, attr := range item.Attributes {
			nft.Metadata = append(nft.Metadata, schema.MetadataEntry{
				ID:         uuid.NewString(),
				NFTAddress: item.Mint,
				Key:        attr.TraitType,
				Value:      attr.Value,
			})
		}

		for _, bid := range bidsByMint[item.Mint] {
			offer := schema.Offer{
				Address:    bid.Address,
				NFTAddress: item.Mint,
				Bidder:     bid.Bidder,
				Expiry:     parseTimestamp(bid.Expiry),
				UpdatedAt:  parseTimestamp(bid.ValidFrom),
			}
			if amount := parseAmount(bid.Price); amount != nil {
				offer.BidAmount = *amount
			}
			nft.Offers = append(nft.Offers, offer)
		}

		remote = append(remote, nft)
	}
	return remote
}

// apply classifies every remote record against the local snapshot and
// executes the resulting mutations.
func (e *Engine) apply(ctx context.Context, remote []schema.NFT, local []schema.NFT) error {
	localByAddress := make(map[string]*schema.NFT, len(local))
	for i := range local {
		localByAddress[local[i].Address] = &local[i]
	}

	var inserts []schema.NFT
	var coreUpdates []store.NFTCoreUpdate
	metadataSets := make(map[string][]schema.MetadataEntry)
	offerSets := make(map[string][]schema.Offer)

	remoteAddresses := make(map[string]struct{}, len(remote))
	for i := range remote {
		r := &remote[i]
		remoteAddresses[r.Address] = struct{}{}

		l, known := localByAddress[r.Address]
		if !known {
			inserts = append(inserts, *r)
			continue
		}

		if coreChanged(r, l) {
			coreUpdates = append(coreUpdates, store.NFTCoreUpdate{
				Address:    r.Address,
				Owner:      r.Owner,
				Name:       r.Name,
				Image:      r.Image,
				Price:      r.Price,
				Listed:     r.Listed,
				LastSale:   r.LastSale,
				Properties: r.Properties,
			})
		} else if l.Burned {
			// reappeared without core divergence, still needs unburning
			coreUpdates = append(coreUpdates, store.NFTCoreUpdate{
				Address:    r.Address,
				Owner:      r.Owner,
				Name:       r.Name,
				Image:      r.Image,
				Price:      r.Price,
				Listed:     r.Listed,
				LastSale:   r.LastSale,
				Properties: r.Properties,
			})
		}
		if metadataChanged(r.Metadata, l.Metadata) {
			metadataSets[r.Address] = r.Metadata
		}
		if offersChanged(r.Offers, l.Offers) {
			offerSets[r.Address] = r.Offers
		}
	}

	var absent []string
	for address, l := range localByAddress {
		if _, ok := remoteAddresses[address]; !ok && !l.Burned {
			absent = append(absent, address)
		}
	}

	if err := e.store.CreateNFTs(ctx, inserts); err != nil {
		return fmt.Errorf("failed to insert nfts: %w", err)
	}
	if err := e.store.UpdateNFTCores(ctx, coreUpdates); err != nil {
		return fmt.Errorf("failed to update nfts: %w", err)
	}
	if err := e.store.ReplaceMetadata(ctx, metadataSets); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	if err := e.store.ReplaceOffers(ctx, offerSets); err != nil {
		return fmt.Errorf("failed to replace offers: %w", err)
	}
	burned, err := e.store.MarkBurned(ctx, absent)
	if err != nil {
		return fmt.Errorf("failed to mark burned: %w", err)
	}

	e.log.Info("reconciliation pass complete",
		zap.Int("remote", len(remote)),
		zap.Int("inserted", len(inserts)),
		zap.Int("updated", len(coreUpdates)),
		zap.Int("metadata_replaced", len(metadataSets)),
		zap.Int("offers_replaced", len(offerSets)),
		zap.Int64("burned", burned))
	return nil
}

func parseAmount(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseTimestamp accepts RFC3339 strings and unix epoch seconds, returning
// the zero time for anything else.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}
