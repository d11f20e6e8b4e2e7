package tierprice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

var percentageCeiling = decimal.NewFromInt(100)

// Validator produces per-record pass/fail verdicts. Field format checking is
// its whole job; it never touches persistence, so the orchestrator decides
// what to do with the verdict.
type Validator struct {
	allowedPriceLists map[string]struct{}
}

// NewValidator builds a validator accepting the configured price list scopes.
// An empty list disables the scope check.
func NewValidator(priceLists []string) *Validator {
	allowed := make(map[string]struct{}, len(priceLists))
	for _, name := range priceLists {
		name = strings.TrimSpace(name)
		if name != "" {
			allowed[name] = struct{}{}
		}
	}
	return &Validator{allowedPriceLists: allowed}
}

// Validate runs shape checks only. Used by replace and delete, which do not
// need the currently persisted rows.
func (v *Validator) Validate(records []PriceRecord) Verdict {
	failed := map[int]Rejection{}
	for i, record := range records {
		if rej, ok := v.checkShape(record); ok {
			failed[i] = rej
		}
	}
	return Verdict{failed: failed}
}

// ValidateAgainstExisting runs shape checks plus the update cross-check: a
// record must address a persisted row with the same dimensional key, or there
// is nothing to update.
func (v *Validator) ValidateAgainstExisting(records []PriceRecord, existingBySKU map[string][]models.TierPrice) Verdict {
	failed := map[int]Rejection{}
	for i, record := range records {
		if rej, ok := v.checkShape(record); ok {
			failed[i] = rej
			continue
		}
		if !hasDimensionalMatch(record, existingBySKU[record.SKU]) {
			failed[i] = Rejection{
				Code: pkgerrors.CodeNotFound,
				Message: fmt.Sprintf("no tier price to update for sku %q, customer group %d, qty %s",
					record.SKU, record.CustomerGroupID, record.Qty),
			}
		}
	}
	return Verdict{failed: failed}
}

func (v *Validator) checkShape(record PriceRecord) (Rejection, bool) {
	if strings.TrimSpace(record.SKU) == "" {
		return Rejection{Code: pkgerrors.CodeValidation, Message: "sku is required"}, true
	}
	if record.Qty.IsNegative() {
		return Rejection{Code: pkgerrors.CodeValidation, Message: "qty must not be negative"}, true
	}
	if record.Value.IsNegative() {
		return Rejection{Code: pkgerrors.CodeValidation, Message: "value must not be negative"}, true
	}
	if record.PercentageValue != nil {
		if record.PercentageValue.IsNegative() || record.PercentageValue.GreaterThan(percentageCeiling) {
			return Rejection{Code: pkgerrors.CodeValidation, Message: "percentage_value must be between 0 and 100"}, true
		}
	}
	if record.Value.IsZero() && record.PercentageValue == nil {
		return Rejection{Code: pkgerrors.CodeValidation, Message: "either value or percentage_value is required"}, true
	}
	if len(v.allowedPriceLists) > 0 && record.PriceList != "" {
		if _, ok := v.allowedPriceLists[record.PriceList]; !ok {
			return Rejection{
				Code:    pkgerrors.CodeValidation,
				Message: fmt.Sprintf("unknown price list %q", record.PriceList),
			}, true
		}
	}
	return Rejection{}, false
}

// hasDimensionalMatch checks existence by dimensional key only. The price
// value is deliberately ignored: an update arrives precisely to change it.
func hasDimensionalMatch(record PriceRecord, existing []models.TierPrice) bool {
	for _, row := range existing {
		if row.AllGroups == record.AllGroups &&
			row.CustomerGroupID == record.CustomerGroupID &&
			row.Qty.Equal(record.Qty) {
			return true
		}
	}
	return false
}
