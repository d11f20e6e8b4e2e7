package tierprice

import (
	"github.com/merchstack/tierprice-service/pkg/db/models"
)

// Match scans candidates in input order and returns the row id of the first
// persisted row denoting the same logical price as the skeleton. No caller
// supplied row identifier exists on the wire, so the dimensional key plus a
// non-zero/non-null price value is the only way to tell "update this row"
// apart from "insert a new one".
//
// Candidate order is the tie-break: the first satisfying row wins, even when
// several rows share the dimensional key transiently during a batch.
func Match(skeleton models.TierPrice, candidates []models.TierPrice) (int64, bool) {
	for _, cand := range candidates {
		if cand.AllGroups != skeleton.AllGroups {
			continue
		}
		if cand.CustomerGroupID != skeleton.CustomerGroupID {
			continue
		}
		if !cand.Qty.Equal(skeleton.Qty) {
			continue
		}
		if cand.LinkFieldValue != skeleton.LinkFieldValue {
			continue
		}
		if !priceValueMatches(cand, skeleton) {
			continue
		}
		return cand.RowID, true
	}
	return 0, false
}

// priceValueMatches corroborates the dimensional key with the price value. A
// candidate carrying a zero fixed value and no percentage can never match.
func priceValueMatches(cand, skeleton models.TierPrice) bool {
	if !cand.Value.IsZero() && cand.Value.Equal(skeleton.Value) {
		return true
	}
	if cand.PercentageValue != nil && skeleton.PercentageValue != nil &&
		cand.PercentageValue.Equal(*skeleton.PercentageValue) {
		return true
	}
	return false
}
