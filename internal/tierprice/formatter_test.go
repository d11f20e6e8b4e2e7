package tierprice

import (
	"testing"

	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

func TestExpand(t *testing.T) {
	idsBySKU := map[string][]int64{
		"SKU-A": {10, 11},
		"SKU-B": {20},
	}

	t.Run("fans out one row per identifier in record order", func(t *testing.T) {
		records := []PriceRecord{
			{SKU: "SKU-A", CustomerGroupID: 3, Qty: dec("5"), Value: dec("19.99")},
			{SKU: "SKU-B", AllGroups: true, Qty: dec("10"), Value: dec("9.99")},
		}
		skeletons, err := Expand(records, idsBySKU)
		if err != nil {
			t.Fatalf("Expand: %v", err)
		}
		if len(skeletons) != 3 {
			t.Fatalf("len(skeletons) = %d, want 3", len(skeletons))
		}
		wantLinks := []int64{10, 11, 20}
		for i, want := range wantLinks {
			if skeletons[i].LinkFieldValue != want {
				t.Fatalf("skeletons[%d].LinkFieldValue = %d, want %d", i, skeletons[i].LinkFieldValue, want)
			}
		}
		if !skeletons[2].AllGroups || skeletons[2].CustomerGroupID != 0 {
			t.Fatalf("all-groups record lost its flags: %+v", skeletons[2])
		}
	})

	t.Run("unresolved sku aborts the batch", func(t *testing.T) {
		records := []PriceRecord{{SKU: "SKU-MISSING", Qty: dec("1"), Value: dec("5")}}
		_, err := Expand(records, idsBySKU)
		if err == nil {
			t.Fatalf("expected an error for an unresolved sku")
		}
		coded := pkgerrors.As(err)
		if coded == nil {
			t.Fatalf("expected a coded error, got %T", err)
		}
		if coded.Code() != pkgerrors.CodeUnresolvedSKU {
			t.Fatalf("code = %s, want %s", coded.Code(), pkgerrors.CodeUnresolvedSKU)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		skeletons, err := Expand(nil, idsBySKU)
		if err != nil || skeletons != nil {
			t.Fatalf("expected nil, nil for empty input, got %v, %v", skeletons, err)
		}
	})
}

func TestDecodeRow(t *testing.T) {
	skuByID := invertLookup(map[string][]int64{"SKU-A": {10, 11}})

	row := fixedRow(1, 11, 3, "5", "19.99")
	record, err := decodeRow(row, skuByID)
	if err != nil {
		t.Fatalf("decodeRow: %v", err)
	}
	if record.SKU != "SKU-A" {
		t.Fatalf("SKU = %q, want SKU-A", record.SKU)
	}
	if !record.Qty.Equal(dec("5")) || !record.Value.Equal(dec("19.99")) {
		t.Fatalf("decoded values drifted: %+v", record)
	}

	if _, err := decodeRow(fixedRow(2, 99, 3, "5", "1"), skuByID); err == nil {
		t.Fatalf("expected an error for an unknown identifier")
	}
}
