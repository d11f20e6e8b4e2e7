package tierprice

import (
	"fmt"

	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

// Expand fans each SKU-addressed record out into storage-shaped rows, one per
// product identifier sharing the SKU. Emission order is record order, then
// identifier order within a record; identifier order follows whatever the
// lookup returned, so ties may reorder across runs against an unstable
// identifier source.
//
// Records are expected to have passed validation before expansion. A record
// whose SKU resolves to zero identifiers at this point signals a broken
// contract between validator and lookup and aborts the batch rather than
// silently losing the record.
func Expand(records []PriceRecord, idsBySKU map[string][]int64) ([]models.TierPrice, error) {
	if len(records) == 0 {
		return nil, nil
	}
	skeletons := make([]models.TierPrice, 0, len(records))
	for _, record := range records {
		ids := idsBySKU[record.SKU]
		if len(ids) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeUnresolvedSKU,
				fmt.Sprintf("sku %q resolved to no product identifiers after validation", record.SKU))
		}
		for _, id := range ids {
			skeletons = append(skeletons, models.TierPrice{
				LinkFieldValue:  id,
				AllGroups:       record.AllGroups,
				CustomerGroupID: record.CustomerGroupID,
				Qty:             record.Qty,
				Value:           record.Value,
				PercentageValue: record.PercentageValue,
				PriceList:       record.PriceList,
			})
		}
	}
	return skeletons, nil
}

// decodeRow converts a persisted row back into its SKU-addressed form using
// the inverted identifier mapping.
func decodeRow(row models.TierPrice, skuByID map[int64]string) (PriceRecord, error) {
	sku, ok := skuByID[row.LinkFieldValue]
	if !ok {
		return PriceRecord{}, pkgerrors.New(pkgerrors.CodeUnresolvedSKU,
			fmt.Sprintf("persisted row %d references unknown product identifier %d", row.RowID, row.LinkFieldValue))
	}
	return PriceRecord{
		SKU:             sku,
		CustomerGroupID: row.CustomerGroupID,
		AllGroups:       row.AllGroups,
		Qty:             row.Qty,
		Value:           row.Value,
		PercentageValue: row.PercentageValue,
		PriceList:       row.PriceList,
	}, nil
}

// invertLookup builds the id->SKU view of a resolve result. The same
// identifier appearing under two SKUs is undefined behavior upstream; the
// last writer wins here.
func invertLookup(idsBySKU map[string][]int64) map[int64]string {
	skuByID := make(map[int64]string, len(idsBySKU))
	for sku, ids := range idsBySKU {
		for _, id := range ids {
			skuByID[id] = sku
		}
	}
	return skuByID
}
