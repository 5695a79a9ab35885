package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// WatermarkStore persists the most recently imported transaction ID per
// collection, bounding incremental history pulls.
type WatermarkStore interface {
	// GetWatermark retrieves the last imported txid for a collection,
	// empty string when no import has happened yet
	GetWatermark(ctx context.Context, collectionID string) (string, error)
	// SetWatermark stores the last imported txid for a collection
	SetWatermark(ctx context.Context, collectionID string, txid string) error
}

type watermarkStore struct {
	db *gorm.DB
}

// NewWatermarkStore creates a new watermark store
func NewWatermarkStore(db *gorm.DB) WatermarkStore {
	return &watermarkStore{db: db}
}

func watermarkKey(collectionID string) string {
	return fmt.Sprintf("firstActivity:%s", collectionID)
}

func (s *watermarkStore) GetWatermark(ctx context.Context, collectionID string) (string, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", watermarkKey(collectionID)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get watermark: %w", err)
	}
	return kv.Value, nil
}

func (s *watermarkStore) SetWatermark(ctx context.Context, collectionID string, txid string) error {
	kv := schema.KeyValueStore{
		Key:   watermarkKey(collectionID),
		Value: txid,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
