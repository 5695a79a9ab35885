package reconciler

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// coreChanged reports whether the remote record diverges from the local one
// on any core field: listing state, price, last sale, owner or properties.
func coreChanged(remote, local *schema.NFT) bool {
	return remote.Listed != local.Listed ||
		!int64PtrEqual(remote.Price, local.Price) ||
		remote.LastSale != local.LastSale ||
		remote.Owner != local.Owner ||
		!propertiesEqual(remote.Properties, local.Properties)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// propertiesEqual compares two properties blobs structurally so that key
// order and whitespace differences do not register as divergence.
func propertiesEqual(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	if bytes.Equal(a, b) {
		return true
	}

	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// metadataChanged reports whether two metadata sets differ, comparing by
// key in both directions. Order never matters.
func metadataChanged(remote, local []schema.MetadataEntry) bool {
	if len(remote) != len(local) {
		return true
	}
	byKey := make(map[string]string, len(local))
	for _, entry := range local {
		byKey[entry.Key] = entry.Value
	}
	for _, entry := range remote {
		value, ok := byKey[entry.Key]
		if !ok || value != entry.Value {
			return true
		}
	}
	return false
}

// offersChanged reports whether two offer sets differ, comparing by offer
// address and bid amount in both directions. Order never matters.
func offersChanged(remote, local []schema.Offer) bool {
	if len(remote) != len(local) {
		return true
	}
	byAddress := make(map[string]int64, len(local))
	for _, offer := range local {
		byAddress[offer.Address] = offer.BidAmount
	}
	for _, offer := range remote {
		amount, ok := byAddress[offer.Address]
		if !ok || amount != offer.BidAmount {
			return true
		}
	}
	return false
}
