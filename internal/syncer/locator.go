// Package syncer walks the feed's ID space backwards in resumable, chunked runs.
package syncer

import (
	"context"

	"github.com/aparm539/nwHacks2026/internal/hn"
)

// ItemFetcher fetches a single feed item, returning nil when it is unavailable.
type ItemFetcher interface {
	FetchItem(ctx context.Context, id int64) *hn.Item
}

// FindIDAtOrBefore binary-searches [minID, maxID] for the highest ID whose
// timestamp is at or before target, then steps back by margin IDs (clamped to
// minID) to cover local inversions between ID order and time order.
// Missing or timestamp-less probes are treated as later than target.
// Returns minID when no probe qualifies.
func FindIDAtOrBefore(ctx context.Context, f ItemFetcher, target, maxID, minID, margin int64) int64 {
	if minID < 1 {
		minID = 1
	}
	if maxID < minID {
		return minID
	}

	lo, hi := minID, maxID
	best := int64(0)
	for lo <= hi {
		if ctx.Err() != nil {
			break
		}
		mid := lo + (hi-lo)/2
		it := f.FetchItem(ctx, mid)
		if it != nil && it.Time > 0 && it.Time <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best == 0 {
		return minID
	}
	if margin < 0 {
		margin = 0
	}
	result := best - margin
	if result < minID {
		result = minID
	}
	return result
}
