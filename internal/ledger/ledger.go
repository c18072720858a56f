// Package ledger holds the pure ranking functions over a product's bids.
//
// Nothing here touches storage: callers load the bids inside a transaction
// and hand them in, which keeps re-ranking deterministic and testable.
package ledger

import (
	"slices"

	"auction-engine/internal/models"
)

// outranks reports whether a beats b: higher amount first, then earlier timestamp,
// then lower bid id so the order is total.
func outranks(a, b models.Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.BidID < b.BidID
}

// SortByAmountDesc returns a copy of bids ordered from strongest to weakest
func SortByAmountDesc(bids []models.Bid) []models.Bid {
	sorted := slices.Clone(bids)
	slices.SortStableFunc(sorted, func(a, b models.Bid) int {
		switch {
		case outranks(a, b):
			return -1
		case outranks(b, a):
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// Leader returns the winning bid of an unordered ledger
func Leader(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	winning := bids[0]
	for _, b := range bids[1:] {
		if outranks(b, winning) {
			winning = b
		}
	}
	return winning, true
}

// NextLeader scans bids, already ordered by amount descending, and returns the
// first one not placed by excludedUserID. Every bid of the excluded user is
// skipped, not only the top one.
func NextLeader(ordered []models.Bid, excludedUserID string) (models.Bid, bool) {
	for _, b := range ordered {
		if b.UserID != excludedUserID {
			return b, true
		}
	}
	return models.Bid{}, false
}

// Without returns the bids whose id differs from bidID, preserving order
func Without(bids []models.Bid, bidID string) []models.Bid {
	out := make([]models.Bid, 0, len(bids))
	for _, b := range bids {
		if b.BidID != bidID {
			out = append(out, b)
		}
	}
	return out
}
