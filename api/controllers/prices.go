package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/merchstack/tierprice-service/api/responses"
	"github.com/merchstack/tierprice-service/api/validators"
	"github.com/merchstack/tierprice-service/internal/tierprice"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
	"github.com/merchstack/tierprice-service/pkg/logger"
)

// TierPriceService is the reconciliation surface the handlers call.
type TierPriceService interface {
	Fetch(ctx context.Context, skus []string) ([]tierprice.PriceRecord, error)
	Update(ctx context.Context, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error)
	Replace(ctx context.Context, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error)
	Delete(ctx context.Context, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error)
}

type queryTierPricesRequest struct {
	SKUs []string `json:"skus" validate:"required,min=1,dive,required"`
}

type tierPriceRecordRequest struct {
	SKU             string           `json:"sku" validate:"required"`
	CustomerGroupID int64            `json:"customer_group_id" validate:"omitempty,min=0"`
	AllGroups       bool             `json:"all_groups"`
	Qty             decimal.Decimal  `json:"qty"`
	Value           decimal.Decimal  `json:"value"`
	PercentageValue *decimal.Decimal `json:"percentage_value,omitempty"`
	PriceList       string           `json:"price_list,omitempty"`
}

type tierPricesRequest struct {
	Prices []tierPriceRecordRequest `json:"prices" validate:"required,min=1,dive"`
}

func (r tierPriceRecordRequest) toRecord() tierprice.PriceRecord {
	groupID := r.CustomerGroupID
	if r.AllGroups {
		groupID = tierprice.AllGroupsID
	}
	return tierprice.PriceRecord{
		SKU:             r.SKU,
		CustomerGroupID: groupID,
		AllGroups:       r.AllGroups,
		Qty:             r.Qty,
		Value:           r.Value,
		PercentageValue: r.PercentageValue,
		PriceList:       r.PriceList,
	}
}

func (r tierPricesRequest) toRecords() []tierprice.PriceRecord {
	records := make([]tierprice.PriceRecord, 0, len(r.Prices))
	for _, price := range r.Prices {
		records = append(records, price.toRecord())
	}
	return records
}

type batchResultResponse struct {
	Accepted int                        `json:"accepted"`
	Rejected []tierprice.RejectedRecord `json:"rejected,omitempty"`
}

func newBatchResult(total int, rejected []tierprice.RejectedRecord) batchResultResponse {
	return batchResultResponse{
		Accepted: total - len(rejected),
		Rejected: rejected,
	}
}

// QueryTierPrices returns every persisted tier price for the requested SKUs.
func QueryTierPrices(svc TierPriceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tier price service unavailable"))
			return
		}

		var payload queryTierPricesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.Fetch(r.Context(), payload.SKUs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if records == nil {
			records = []tierprice.PriceRecord{}
		}

		responses.WriteSuccess(w, map[string]any{"prices": records})
	}
}

// UpdateTierPrices reconciles the batch against persisted rows.
func UpdateTierPrices(svc TierPriceService, logg *logger.Logger) http.HandlerFunc {
	return mutationHandler(svc, logg, func(ctx context.Context, svc TierPriceService, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error) {
		return svc.Update(ctx, records)
	})
}

// ReplaceTierPrices swaps the complete tier price set of the addressed
// products.
func ReplaceTierPrices(svc TierPriceService, logg *logger.Logger) http.HandlerFunc {
	return mutationHandler(svc, logg, func(ctx context.Context, svc TierPriceService, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error) {
		return svc.Replace(ctx, records)
	})
}

// DeleteTierPrices removes the persisted rows matching the batch.
func DeleteTierPrices(svc TierPriceService, logg *logger.Logger) http.HandlerFunc {
	return mutationHandler(svc, logg, func(ctx context.Context, svc TierPriceService, records []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error) {
		return svc.Delete(ctx, records)
	})
}

func mutationHandler(
	svc TierPriceService,
	logg *logger.Logger,
	run func(context.Context, TierPriceService, []tierprice.PriceRecord) ([]tierprice.RejectedRecord, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tier price service unavailable"))
			return
		}

		var payload tierPricesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records := payload.toRecords()
		rejected, err := run(r.Context(), svc, records)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBatchResult(len(records), rejected))
	}
}
