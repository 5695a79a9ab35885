package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// safeBatchSize computes a bulk-insert batch size that stays under
// PostgreSQL's 65535-parameter limit for the extended protocol.
func safeBatchSize(fieldsPerRecord int) int {
	const maxParams = 65535
	const headroom = 1000
	return (maxParams - headroom) / fieldsPerRecord
}

// ---------------------------------------------------------------------------
// Collections

func (s *pgStore) GetCollections(ctx context.Context) ([]schema.Collection, error) {
	var collections []schema.Collection
	if err := s.db.WithContext(ctx).Find(&collections).Error; err != nil {
		return nil, fmt.Errorf("failed to get collections: %w", err)
	}
	return collections, nil
}

func (s *pgStore) GetCollectionByAddress(ctx context.Context, address string) (*schema.Collection, error) {
	var collection schema.Collection
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&collection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &collection, nil
}

func (s *pgStore) CreateCollection(ctx context.Context, collection schema.Collection) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&collection).Error
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// NFTs

func (s *pgStore) GetNFTByAddress(ctx context.Context, address string) (*schema.NFT, error) {
	var nft schema.NFT
	err := s.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Offers").
		Where("address = ?", address).
		First(&nft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nft: %w", err)
	}
	return &nft, nil
}

func (s *pgStore) GetAllNFTs(ctx context.Context) ([]schema.NFT, error) {
	var nfts []schema.NFT
	err := s.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Offers").
		Find(&nfts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get nfts: %w", err)
	}
	return nfts, nil
}

func (s *pgStore) GetListedNFTs(ctx context.Context) ([]schema.NFT, error) {
	var nfts []schema.NFT
	err := s.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Offers").
		Where("listed = ? AND burned = ?", true, false).
		Order("price ASC").
		Find(&nfts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get listed nfts: %w", err)
	}
	return nfts, nil
}

func (s *pgStore) GetNFTsByOwner(ctx context.Context, owner string) ([]schema.NFT, error) {
	var nfts []schema.NFT
	err := s.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Offers").
		Where("owner = ? AND burned = ?", owner, false).
		Find(&nfts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get nfts by owner: %w", err)
	}
	return nfts, nil
}

func (s *pgStore) CreateNFTs(ctx context.Context, nfts []schema.NFT) error {
	if len(nfts) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(nfts, safeBatchSize(12)).Error
	if err != nil {
		return fmt.Errorf("failed to create nfts: %w", err)
	}
	return nil
}

func (s *pgStore) UpdateNFTCores(ctx context.Context, updates []NFTCoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&schema.NFT{}).
				Where("address = ?", u.Address).
				Updates(map[string]interface{}{
					"owner":      u.Owner,
					"name":       u.Name,
					"image":      u.Image,
					"price":      u.Price,
					"listed":     u.Listed,
					"last_sale":  u.LastSale,
					"properties": u.Properties,
					"burned":     false,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update nft %s: %w", u.Address, err)
			}
		}
		return nil
	})
}

func (s *pgStore) MarkBurned(ctx context.Context, addresses []string) (int64, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	var total int64
	batch := safeBatchSize(1)
	for i := 0; i < len(addresses); i += batch {
		end := min(i+batch, len(addresses))
		res := s.db.WithContext(ctx).Model(&schema.NFT{}).
			Where("address IN ? AND burned = ?", addresses[i:end], false).
			Update("burned", true)
		if res.Error != nil {
			return total, fmt.Errorf("failed to mark nfts burned: %w", res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Metadata / offers (set-replace semantics)

func (s *pgStore) ReplaceMetadata(ctx context.Context, sets map[string][]schema.MetadataEntry) error {
	if len(sets) == 0 {
		return nil
	}

	addresses := make([]string, 0, len(sets))
	var entries []schema.MetadataEntry
	for address, set := range sets {
		addresses = append(addresses, address)
		entries = append(entries, set...)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("nft_address IN ?", addresses).Delete(&schema.MetadataEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete metadata: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, safeBatchSize(4)).Error; err != nil {
			return fmt.Errorf("failed to create metadata: %w", err)
		}
		return nil
	})
}

func (s *pgStore) ReplaceOffers(ctx context.Context, sets map[string][]schema.Offer) error {
	if len(sets) == 0 {
		return nil
	}

	addresses := make([]string, 0, len(sets))
	var offers []schema.Offer
	for address, set := range sets {
		addresses = append(addresses, address)
		offers = append(offers, set...)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("nft_address IN ?", addresses).Delete(&schema.Offer{}).Error; err != nil {
			return fmt.Errorf("failed to delete offers: %w", err)
		}
		if len(offers) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(offers, safeBatchSize(6)).Error; err != nil {
			return fmt.Errorf("failed to create offers: %w", err)
		}
		return nil
	})
}

func (s *pgStore) GetOffersForNFTs(ctx context.Context, addresses []string) ([]schema.Offer, error) {
	if len(addresses) == 0 {
		return []schema.Offer{}, nil
	}

	var offers []schema.Offer
	err := s.db.WithContext(ctx).
		Where("nft_address IN ?", addresses).
		Order("bid_amount DESC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get offers: %w", err)
	}
	return offers, nil
}

func (s *pgStore) GetOffersByBidder(ctx context.Context, bidder string) ([]schema.Offer, error) {
	var offers []schema.Offer
	err := s.db.WithContext(ctx).
		Where("bidder = ?", bidder).
		Order("updated_at DESC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get offers by bidder: %w", err)
	}
	return offers, nil
}

// ---------------------------------------------------------------------------
// Live-event mutations

func (s *pgStore) ApplyListing(ctx context.Context, address string, price int64, seller string) error {
	err := s.db.WithContext(ctx).Model(&schema.NFT{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"price":  price,
			"listed": true,
			"owner":  seller,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to apply listing: %w", err)
	}
	return nil
}

func (s *pgStore) ApplyDelisting(ctx context.Context, address string, seller string) error {
	err := s.db.WithContext(ctx).Model(&schema.NFT{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"price":  nil,
			"listed": false,
			"owner":  seller,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to apply delisting: %w", err)
	}
	return nil
}

func (s *pgStore) ApplySale(ctx context.Context, sale SaleInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&schema.NFT{}).
			Where("address = ?", sale.NFTAddress).
			Updates(map[string]interface{}{
				"price":     nil,
				"listed":    false,
				"last_sale": sale.Gross,
				"owner":     sale.Buyer,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update nft for sale: %w", err)
		}

		if err := tx.Where("nft_address = ?", sale.NFTAddress).Delete(&schema.Offer{}).Error; err != nil {
			return fmt.Errorf("failed to delete offers for sale: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "txid"}},
			DoNothing: true,
		}).Create(&sale.Activity).Error
		if err != nil {
			return fmt.Errorf("failed to create sale activity: %w", err)
		}

		return nil
	})
}

func (s *pgStore) AddOffer(ctx context.Context, offer schema.Offer) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&offer).Error
	if err != nil {
		return fmt.Errorf("failed to add offer: %w", err)
	}
	return nil
}

func (s *pgStore) RemoveOffer(ctx context.Context, offerAddress string) error {
	err := s.db.WithContext(ctx).
		Where("address = ?", offerAddress).
		Delete(&schema.Offer{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove offer: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Activity

func (s *pgStore) CreateActivities(ctx context.Context, activities []schema.Activity) (int64, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "txid"}},
		DoNothing: true,
	}).CreateInBatches(activities, safeBatchSize(7))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to create activities: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *pgStore) GetRecentSales(ctx context.Context, limit int) ([]schema.Activity, error) {
	var activities []schema.Activity
	err := s.db.WithContext(ctx).
		Where("type IN ?", []domain.ActivityType{domain.ActivityBuy, domain.ActivityAcceptBid}).
		Order("time DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent sales: %w", err)
	}
	return activities, nil
}

func (s *pgStore) GetActivitiesByUser(ctx context.Context, address string, limit int) ([]schema.Activity, error) {
	var activities []schema.Activity
	err := s.db.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", address, address).
		Order("time DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get activities by user: %w", err)
	}
	return activities, nil
}

// ---------------------------------------------------------------------------
// Users

func (s *pgStore) ApplyUserDeltas(ctx context.Context, deltas []schema.User) error {
	if len(deltas) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"cards":              gorm.Expr("users.cards + EXCLUDED.cards"),
			"level":              gorm.Expr("users.level + EXCLUDED.level"),
			"total_listed":       gorm.Expr("users.total_listed + EXCLUDED.total_listed"),
			"total_sold":         gorm.Expr("users.total_sold + EXCLUDED.total_sold"),
			"total_sold_value":   gorm.Expr("users.total_sold_value + EXCLUDED.total_sold_value"),
			"total_bought":       gorm.Expr("users.total_bought + EXCLUDED.total_bought"),
			"total_bought_value": gorm.Expr("users.total_bought_value + EXCLUDED.total_bought_value"),
		}),
	}).CreateInBatches(deltas, safeBatchSize(8)).Error
	if err != nil {
		return fmt.Errorf("failed to apply user deltas: %w", err)
	}
	return nil
}

func (s *pgStore) GetUser(ctx context.Context, address string) (*schema.User, error) {
	var user schema.User
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *pgStore) GetLeaderboard(ctx context.Context, limit int) ([]schema.User, error) {
	var users []schema.User
	err := s.db.WithContext(ctx).
		Order("total_bought_value DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return users, nil
}
