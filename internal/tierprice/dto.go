package tierprice

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

// AllGroupsID is the customer group sentinel stored alongside AllGroups=true.
const AllGroupsID int64 = 0

// PriceRecord is the SKU-addressed wire representation of a tier price. It is
// built per call and never persisted directly; persistence works on expanded
// models.TierPrice rows.
type PriceRecord struct {
	SKU             string           `json:"sku"`
	CustomerGroupID int64            `json:"customer_group_id"`
	AllGroups       bool             `json:"all_groups"`
	Qty             decimal.Decimal  `json:"qty"`
	Value           decimal.Decimal  `json:"value"`
	PercentageValue *decimal.Decimal `json:"percentage_value,omitempty"`
	PriceList       string           `json:"price_list,omitempty"`
}

// RejectedRecord reports a record dropped from a batch together with the
// reason. Accepted records produce no acknowledgment beyond the absence of a
// rejection entry.
type RejectedRecord struct {
	Record     PriceRecord    `json:"record"`
	ReasonCode pkgerrors.Code `json:"reason_code"`
	Message    string         `json:"message"`
}

// Rejection is the verdict payload for a single failed record index.
type Rejection struct {
	Code    pkgerrors.Code
	Message string
}

// Verdict is the outcome of validating a batch, keyed by original record
// index so filtering can stay order-preserving.
type Verdict struct {
	failed map[int]Rejection
}

// Failed reports whether the record at the given original index was rejected.
func (v Verdict) Failed(index int) bool {
	_, ok := v.failed[index]
	return ok
}

// FailedCount returns the number of rejected records.
func (v Verdict) FailedCount() int {
	return len(v.failed)
}

// Rejections pairs each failed index with its originating record.
func (v Verdict) Rejections(records []PriceRecord) []RejectedRecord {
	if len(v.failed) == 0 {
		return nil
	}
	out := make([]RejectedRecord, 0, len(v.failed))
	for i, record := range records {
		if rej, ok := v.failed[i]; ok {
			out = append(out, RejectedRecord{
				Record:     record,
				ReasonCode: rej.Code,
				Message:    rej.Message,
			})
		}
	}
	return out
}

// filterRecords drops the failed indices while preserving the relative order
// of the survivors. Downstream formatting depends on that order.
func filterRecords(records []PriceRecord, verdict Verdict) []PriceRecord {
	if verdict.FailedCount() == 0 {
		return records
	}
	kept := make([]PriceRecord, 0, len(records)-verdict.FailedCount())
	for i, record := range records {
		if !verdict.Failed(i) {
			kept = append(kept, record)
		}
	}
	return kept
}

func dedupeSKUs(records []PriceRecord) []string {
	seen := make(map[string]struct{}, len(records))
	skus := make([]string, 0, len(records))
	for _, record := range records {
		if _, ok := seen[record.SKU]; ok {
			continue
		}
		seen[record.SKU] = struct{}{}
		skus = append(skus, record.SKU)
	}
	return skus
}
