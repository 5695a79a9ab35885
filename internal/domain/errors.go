package domain

import "errors"

var (
	// ErrCollectionNotFound is returned when the marketplace cannot resolve a
	// collection address to a collection ID. Terminal for that collection.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrAssetNotFound is returned when the digital-asset resolver has no
	// record of the requested asset.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrNotTracked is returned when an event references an NFT outside the
	// tracked collections. The caller should treat it as a no-op.
	ErrNotTracked = errors.New("nft does not belong to a tracked collection")

	// ErrMetadataUnavailable is returned when a metadata blob could not be
	// fetched after all retry attempts. Downgraded to a logged skip.
	ErrMetadataUnavailable = errors.New("metadata blob unavailable")
)
