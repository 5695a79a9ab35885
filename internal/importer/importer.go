package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// Importer walks the transaction history of every tracked collection,
// newest first, bounded by a persisted per-collection watermark, and turns
// new transactions into activity rows and per-user counter deltas.
type Importer struct {
	store      store.Store
	watermarks store.WatermarkStore
	client     marketplace.Client
	log        *zap.Logger
}

// NewImporter creates an activity importer
func NewImporter(st store.Store, watermarks store.WatermarkStore, client marketplace.Client) *Importer {
	return &Importer{
		store:      st,
		watermarks: watermarks,
		client:     client,
		log:        logger.Default(),
	}
}

// Run executes one import pass over every tracked collection.
func (i *Importer) Run(ctx context.Context) error {
	collections, err := i.store.GetCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to load collections: %w", err)
	}

	var all []schema.Activity
	for _, coll := range collections {
		activities, err := i.importCollection(ctx, coll.ID)
		if err != nil {
			return fmt.Errorf("failed to import activity for collection %s: %w", coll.ID, err)
		}
		all = append(all, activities...)
	}

	if err := i.store.ApplyUserDeltas(ctx, FoldUserDeltas(all)); err != nil {
		return fmt.Errorf("failed to apply user deltas: %w", err)
	}
	return nil
}

// importCollection walks one collection's history until it reaches the
// stored watermark, inserts the new rows and advances the watermark to the
// first (newest) txid seen. The walk relies on the feed being strictly
// time-ordered descending; a violation aborts the collection without
// touching the watermark.
func (i *Importer) importCollection(ctx context.Context, collID string) ([]schema.Activity, error) {
	watermark, err := i.watermarks.GetWatermark(ctx, collID)
	if err != nil {
		return nil, err
	}

	var activities []schema.Activity
	var newWatermark string
	var prevAt time.Time
	cursor := ""

walk:
	for {
		page, err := i.client.FetchActivityPage(ctx, collID, cursor)
		if err != nil {
			return nil, err
		}

		for _, entry := range page.Txs {
			if newWatermark == "" {
				newWatermark = entry.Tx.TxKey
			}

			if !prevAt.IsZero() && entry.Tx.TxAt.After(prevAt) {
				i.log.Error("activity feed violated descending time order, aborting collection walk",
					zap.String("collection", collID),
					zap.String("txid", entry.Tx.TxKey),
					zap.Time("tx_at", entry.Tx.TxAt),
					zap.Time("prev_at", prevAt))
				return nil, nil
			}
			prevAt = entry.Tx.TxAt

			if watermark != "" && entry.Tx.TxKey == watermark {
				break walk
			}

			activities = append(activities, i.toActivity(collID, entry))
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(activities) > 0 {
		inserted, err := i.store.CreateActivities(ctx, activities)
		if err != nil {
			return nil, err
		}
		i.log.Info("imported activity",
			zap.String("collection", collID),
			zap.Int("fetched", len(activities)),
			zap.Int64("inserted", inserted))
	}

	// persisted even when zero rows were new, to avoid re-scanning
	if newWatermark != "" && newWatermark != watermark {
		if err := i.watermarks.SetWatermark(ctx, collID, newWatermark); err != nil {
			return nil, err
		}
	}

	return activities, nil
}

func (i *Importer) toActivity(collID string, entry marketplace.HistoryTx) schema.Activity {
	activityType, recognized := domain.MapTransactionType(entry.Tx.TxType)
	if !recognized {
		i.log.Warn("unrecognized transaction type",
			zap.String("collection", collID),
			zap.String("tx_type", entry.Tx.TxType),
			zap.String("txid", entry.Tx.TxKey))
	}

	from := entry.Tx.SellerID
	if from == "" && entry.Tx.BuyerID != nil {
		from = *entry.Tx.BuyerID
	}

	activity := schema.Activity{
		TxID:       entry.Tx.TxKey,
		Time:       entry.Tx.TxAt,
		From:       from,
		To:         entry.Tx.BuyerID,
		Type:       activityType,
		NFTAddress: entry.Mint.OnchainID,
	}
	if entry.Tx.GrossAmount != "" {
		if amount, err := strconv.ParseInt(entry.Tx.GrossAmount, 10, 64); err == nil {
			activity.Amount = &amount
		}
	}
	return activity
}
