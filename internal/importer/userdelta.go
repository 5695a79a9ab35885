package importer

import (
	"github.com/universalnft/marketplace-indexer/internal/domain"
	"github.com/universalnft/marketplace-indexer/internal/store/schema"
)

// FoldUserDeltas folds a batch of activities into per-user counter deltas.
// Each activity moves the counters of the acting user: the buyer on a BUY,
// the seller on a SELL or ACCEPT_BID, the lister on LIST/DELIST. Bids and
// UPDATE activities move nothing. The result is applied as additive upserts,
// so folding the same batch in any grouping yields the same totals.
func FoldUserDeltas(activities []schema.Activity) []schema.User {
	deltas := make(map[string]*schema.User)

	get := func(address string) *schema.User {
		if address == "" {
			return nil
		}
		user, ok := deltas[address]
		if !ok {
			user = &schema.User{Address: address}
			deltas[address] = user
		}
		return user
	}

	for _, activity := range activities {
		amount := int64(0)
		if activity.Amount != nil {
			amount = *activity.Amount
		}

		switch activity.Type {
		case domain.ActivityBuy:
			buyer := activity.From
			if activity.To != nil && *activity.To != "" {
				buyer = *activity.To
			}
			if user := get(buyer); user != nil {
				user.TotalBought++
				user.TotalBoughtValue += amount
				user.Cards++
			}
		case domain.ActivitySell, domain.ActivityAcceptBid:
			if user := get(activity.From); user != nil {
				user.TotalSold++
				user.TotalSoldValue += amount
				user.Cards--
			}
		case domain.ActivityList:
			if user := get(activity.From); user != nil {
				user.TotalListed++
			}
		case domain.ActivityDelist:
			if user := get(activity.From); user != nil {
				user.TotalListed--
			}
		}
	}

	out := make([]schema.User, 0, len(deltas))
	for _, user := range deltas {
		out = append(out, *user)
	}
	return out
}
