package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/messaging"
	"github.com/universalnft/marketplace-indexer/internal/store"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// Handler applies one live marketplace transaction to the store. Every event
// kind maps to a single idempotent store mutation; after a successful
// mutation the corresponding event is published for downstream consumers.
type Handler struct {
	store     store.Store
	resolver  assets.Resolver
	client    marketplace.Client
	publisher messaging.Publisher
	log       *zap.Logger
}

// NewHandler creates a live transaction handler
func NewHandler(st store.Store, resolver assets.Resolver, client marketplace.Client, publisher messaging.Publisher) *Handler {
	return &Handler{
		store:     st,
		resolver:  resolver,
		client:    client,
		publisher: publisher,
		log:       logger.Default(),
	}
}

// HandleTransaction dispatches one live transaction by its type. Events for
// untracked assets are a silent no-op.
func (h *Handler) HandleTransaction(ctx context.Context, tx marketplace.TxRecord, mint marketplace.TxMint) error {
	activityType, recognized := domain.MapTransactionType(tx.TxType)
	if !recognized {
		h.log.Warn("unrecognized live transaction type, ignoring",
			zap.String("tx_type", tx.TxType),
			zap.String("txid", tx.TxKey))
		return nil
	}

	address := mint.OnchainID
	if address == "" {
		return fmt.Errorf("live transaction %s carries no mint address", tx.TxKey)
	}

	var err error
	switch activityType {
	case domain.ActivityList:
		err = h.onList(ctx, tx, address)
	case domain.ActivityDelist:
		err = h.onDelist(ctx, tx, address)
	case domain.ActivityBuy, domain.ActivityAcceptBid:
		err = h.onSale(ctx, tx, address, activityType)
	case domain.ActivityPlaceBid:
		err = h.onPlaceBid(ctx, tx, address)
	case domain.ActivityCancelBid:
		err = h.onCancelBid(ctx, tx, address)
	default:
		// price adjustments and the like are picked up by the next
		// reconciliation pass
		return nil
	}

	if errors.Is(err, domain.ErrNotTracked) {
		h.log.Debug("event for untracked asset, ignoring",
			zap.String("address", address),
			zap.String("txid", tx.TxKey))
		return nil
	}
	return err
}

func (h *Handler) onList(ctx context.Context, tx marketplace.TxRecord, address string) error {
	price := parseGross(tx.GrossAmount)
	if _, err := h.fetchOrCreate(ctx, address, tx.SellerID, true); err != nil {
		return err
	}
	if err := h.store.ApplyListing(ctx, address, price, tx.SellerID); err != nil {
		return err
	}

	h.log.Info("nft listed",
		zap.String("address", address),
		zap.String("seller", tx.SellerID),
		zap.Int64("price", price))
	h.publish(ctx, &domain.MutationEvent{
		Kind:       domain.MutationListed,
		NFTAddress: address,
		TxID:       tx.TxKey,
		From:       tx.SellerID,
		Amount:     &price,
	})
	return nil
}

func (h *Handler) onDelist(ctx context.Context, tx marketplace.TxRecord, address string) error {
	if _, err := h.fetchOrCreate(ctx, address, tx.SellerID, false); err != nil {
		return err
	}
	if err := h.store.ApplyDelisting(ctx, address, tx.SellerID); err != nil {
		return err
	}

	h.log.Info("nft delisted",
		zap.String("address", address),
		zap.String("seller", tx.SellerID))
	h.publish(ctx, &domain.MutationEvent{
		Kind:       domain.MutationDelisted,
		NFTAddress: address,
		TxID:       tx.TxKey,
		From:       tx.SellerID,
	})
	return nil
}

func (h *Handler) onSale(ctx context.Context, tx marketplace.TxRecord, address string, activityType domain.ActivityType) error {
	buyer := ""
	if tx.BuyerID != nil {
		buyer = *tx.BuyerID
	}
	gross := parseGross(tx.GrossAmount)

	if _, err := h.fetchOrCreate(ctx, address, buyer, false); err != nil {
		return err
	}

	err := h.store.ApplySale(ctx, store.SaleInput{
		NFTAddress: address,
		Buyer:      buyer,
		Seller:     tx.SellerID,
		Gross:      gross,
		TxID:       tx.TxKey,
		Activity: schema.Activity{
			TxID:       tx.TxKey,
			Time:       tx.TxAt,
			From:       tx.SellerID,
			To:         tx.BuyerID,
			Amount:     &gross,
			Type:       activityType,
			NFTAddress: address,
		},
	})
	if err != nil {
		return err
	}

	h.log.Info("nft sold",
		zap.String("address", address),
		zap.String("seller", tx.SellerID),
		zap.String("buyer", buyer),
		zap.Int64("gross", gross))
	h.publish(ctx, &domain.MutationEvent{
		Kind:       domain.MutationSold,
		NFTAddress: address,
		TxID:       tx.TxKey,
		From:       tx.SellerID,
		To:         buyer,
		Amount:     &gross,
	})
	return nil
}

func (h *Handler) onPlaceBid(ctx context.Context, tx marketplace.TxRecord, address string) error {
	bidder := tx.SellerID
	if bidder == "" && tx.BuyerID != nil {
		bidder = *tx.BuyerID
	}
	amount := parseGross(tx.GrossAmount)

	// the bid state address is not always carried on the event; the txid is
	// a stable fallback, and the next reconciliation pass replaces the set
	// with canonical addresses anyway
	offerAddress := tx.BidAddress
	if offerAddress == "" {
		offerAddress = tx.TxKey
	}

	if _, err := h.fetchOrCreate(ctx, address, "", false); err != nil {
		return err
	}
	err := h.store.AddOffer(ctx, schema.Offer{
		Address:    offerAddress,
		NFTAddress: address,
		Bidder:     bidder,
		BidAmount:  amount,
		UpdatedAt:  tx.TxAt,
	})
	if err != nil {
		return err
	}

	h.publish(ctx, &domain.MutationEvent{
		Kind:       domain.MutationBidPlaced,
		NFTAddress: address,
		TxID:       tx.TxKey,
		From:       bidder,
		Amount:     &amount,
	})
	return nil
}

func (h *Handler) onCancelBid(ctx context.Context, tx marketplace.TxRecord, address string) error {
	if tx.BidAddress == "" {
		h.log.Warn("bid cancellation without bid address, leaving offer to reconciliation",
			zap.String("address", address),
			zap.String("txid", tx.TxKey))
		return nil
	}
	if err := h.store.RemoveOffer(ctx, tx.BidAddress); err != nil {
		return err
	}

	h.publish(ctx, &domain.MutationEvent{
		Kind:       domain.MutationBidRemoved,
		NFTAddress: address,
		TxID:       tx.TxKey,
	})
	return nil
}

// fetchOrCreate returns the local record for an address, creating a baseline
// record from the on-chain asset when the store has none. Assets with a
// verified collection outside the tracked set return domain.ErrNotTracked.
func (h *Handler) fetchOrCreate(ctx context.Context, address string, owner string, listed bool) (*schema.NFT, error) {
	existing, err := h.store.GetNFTByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	asset, err := h.resolver.GetAsset(ctx, address)
	if err != nil {
		return nil, err
	}

	if asset.Collection != "" {
		coll, err := h.store.GetCollectionByAddress(ctx, asset.Collection)
		if err != nil {
			return nil, err
		}
		if coll == nil {
			return nil, domain.ErrNotTracked
		}
	}

	nft := schema.NFT{
		Address: address,
		Owner:   asset.Owner,
		Name:    asset.Name,
		Image:   asset.Image,
		Listed:  listed,
	}
	if owner != "" {
		nft.Owner = owner
	}

	if asset.MetadataURI != "" {
		blob, err := h.client.FetchMetadataBlob(ctx, asset.MetadataURI)
		if err != nil {
			h.log.Warn("failed to fetch metadata for new asset",
				zap.String("address", address),
				zap.Error(err))
		} else {
			var parsed struct {
				Image      string          `json:"image"`
				Properties json.RawMessage `json:"properties"`
				Attributes []struct {
					TraitType string `json:"trait_type"`
					Value     string `json:"value"`
				} `json:"attributes"`
			}
			if err := json.Unmarshal(blob, &parsed); err == nil {
				if parsed.Image != "" {
					nft.Image = parsed.Image
				}
				if len(parsed.Properties) > 0 && string(parsed.Properties) != "null" {
					nft.Properties = datatypes.JSON(parsed.Properties)
				}
				for _, attr := range parsed.Attributes {
					nft.Metadata = append(nft.Metadata, schema.MetadataEntry{
						ID:         uuid.NewString(),
						NFTAddress: address,
						Key:        attr.TraitType,
						Value:      attr.Value,
					})
				}
			}
		}
	}

	if err := h.store.CreateNFTs(ctx, []schema.NFT{nft}); err != nil {
		return nil, err
	}
	h.log.Info("created baseline record for new asset", zap.String("address", address))
	return &nft, nil
}

// publish sends a mutation event; failures are logged, never propagated.
func (h *Handler) publish(ctx context.Context, event *domain.MutationEvent) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishMutation(ctx, event); err != nil {
		h.log.Warn("failed to publish mutation event",
			zap.String("kind", string(event.Kind)),
			zap.String("address", event.NFTAddress),
			zap.Error(err))
	}
}

func parseGross(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
