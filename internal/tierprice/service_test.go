package tierprice

import (
	"context"
	"errors"
	"testing"

	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

type stubLookup struct {
	ids map[string][]int64
	err error
}

func (s *stubLookup) Resolve(ctx context.Context, skus []string) (map[string][]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string][]int64, len(skus))
	for _, sku := range skus {
		out[sku] = s.ids[sku]
	}
	return out, nil
}

type replaceCall struct {
	skeletons []models.TierPrice
	affected  []int64
}

type stubStore struct {
	rows []models.TierPrice

	updated  [][]models.TierPrice
	replaced []replaceCall
	deleted  [][]int64
	err      error
}

func (s *stubStore) Fetch(ctx context.Context, ids []int64) ([]models.TierPrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []models.TierPrice
	for _, row := range s.rows {
		if _, ok := wanted[row.LinkFieldValue]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubStore) Update(ctx context.Context, skeletons []models.TierPrice) error {
	if s.err != nil {
		return s.err
	}
	s.updated = append(s.updated, skeletons)
	return nil
}

func (s *stubStore) Replace(ctx context.Context, skeletons []models.TierPrice, affectedIDs []int64) error {
	if s.err != nil {
		return s.err
	}
	s.replaced = append(s.replaced, replaceCall{skeletons: skeletons, affected: affectedIDs})
	return nil
}

func (s *stubStore) Delete(ctx context.Context, rowIDs []int64) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, rowIDs)
	return nil
}

type invalidateCall struct {
	ids    []int64
	reason string
}

type stubTrigger struct {
	calls []invalidateCall
	err   error
}

func (s *stubTrigger) Invalidate(ctx context.Context, ids []int64, reason string) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, invalidateCall{ids: ids, reason: reason})
	return nil
}

func newTestService(lookup *stubLookup, store *stubStore, trigger *stubTrigger, maxBatch int) *Service {
	return NewService(lookup, store, NewValidator(nil), trigger, nil, nil, maxBatch)
}

func TestServiceFetch(t *testing.T) {
	lookup := &stubLookup{ids: map[string][]int64{"SKU-A": {10, 11}}}
	store := &stubStore{rows: []models.TierPrice{
		fixedRow(1, 10, 3, "5", "19.99"),
		fixedRow(2, 11, 3, "5", "19.99"),
	}}
	svc := newTestService(lookup, store, &stubTrigger{}, 100)

	t.Run("returns decoded records", func(t *testing.T) {
		records, err := svc.Fetch(context.Background(), []string{"SKU-A", " SKU-A "})
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len(records) = %d, want 2", len(records))
		}
		for _, record := range records {
			if record.SKU != "SKU-A" {
				t.Fatalf("SKU = %q, want SKU-A", record.SKU)
			}
		}
	})

	t.Run("unknown sku fails the call", func(t *testing.T) {
		_, err := svc.Fetch(context.Background(), []string{"SKU-A", "SKU-GONE"})
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
			t.Fatalf("err = %v, want %s", err, pkgerrors.CodeNotFound)
		}
	})

	t.Run("empty sku list", func(t *testing.T) {
		_, err := svc.Fetch(context.Background(), []string{"  "})
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeValidation {
			t.Fatalf("err = %v, want %s", err, pkgerrors.CodeValidation)
		}
	})
}

func TestServiceUpdate(t *testing.T) {
	t.Run("changed value lands and triggers invalidation", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-A": {10}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(1, 10, 3, "5", "19.99")}}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		record := PriceRecord{SKU: "SKU-A", CustomerGroupID: 3, Qty: dec("5"), Value: dec("15.00")}
		rejected, err := svc.Update(context.Background(), []PriceRecord{record})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if len(rejected) != 0 {
			t.Fatalf("unexpected rejections: %+v", rejected)
		}
		if len(store.updated) != 1 || len(store.updated[0]) != 1 {
			t.Fatalf("expected one persisted skeleton, got %+v", store.updated)
		}
		if !store.updated[0][0].Value.Equal(dec("15.00")) {
			t.Fatalf("persisted value = %s, want 15.00", store.updated[0][0].Value)
		}
		if len(trigger.calls) != 1 {
			t.Fatalf("expected one invalidation, got %d", len(trigger.calls))
		}
		if trigger.calls[0].reason != "tier_prices_updated" {
			t.Fatalf("reason = %q", trigger.calls[0].reason)
		}
		if len(trigger.calls[0].ids) != 1 || trigger.calls[0].ids[0] != 10 {
			t.Fatalf("invalidated ids = %v, want [10]", trigger.calls[0].ids)
		}
	})

	t.Run("record without a persisted row is rejected, nothing runs", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-A": {10}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(1, 10, 3, "5", "19.99")}}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		record := PriceRecord{SKU: "SKU-A", CustomerGroupID: 3, Qty: dec("50"), Value: dec("15.00")}
		rejected, err := svc.Update(context.Background(), []PriceRecord{record})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if len(rejected) != 1 || rejected[0].ReasonCode != pkgerrors.CodeNotFound {
			t.Fatalf("rejected = %+v, want one NOT_FOUND", rejected)
		}
		if len(store.updated) != 0 {
			t.Fatalf("persistence must not run for a fully rejected batch")
		}
		if len(trigger.calls) != 0 {
			t.Fatalf("invalidation must not run for a fully rejected batch")
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		store := &stubStore{}
		trigger := &stubTrigger{}
		svc := newTestService(&stubLookup{}, store, trigger, 100)

		rejected, err := svc.Update(context.Background(), nil)
		if err != nil || rejected != nil {
			t.Fatalf("got %+v, %v; want nil, nil", rejected, err)
		}
		if len(store.updated) != 0 || len(trigger.calls) != 0 {
			t.Fatalf("an empty batch must touch nothing")
		}
	})

	t.Run("oversized batch", func(t *testing.T) {
		svc := newTestService(&stubLookup{}, &stubStore{}, &stubTrigger{}, 2)
		records := []PriceRecord{
			{SKU: "A", Qty: dec("1"), Value: dec("1")},
			{SKU: "B", Qty: dec("1"), Value: dec("1")},
			{SKU: "C", Qty: dec("1"), Value: dec("1")},
		}
		_, err := svc.Update(context.Background(), records)
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeValidation {
			t.Fatalf("err = %v, want %s", err, pkgerrors.CodeValidation)
		}
	})

	t.Run("lookup failure surfaces", func(t *testing.T) {
		svc := newTestService(&stubLookup{err: errors.New("boom")}, &stubStore{}, &stubTrigger{}, 100)
		record := PriceRecord{SKU: "SKU-A", Qty: dec("1"), Value: dec("1")}
		if _, err := svc.Update(context.Background(), []PriceRecord{record}); err == nil {
			t.Fatalf("expected the lookup error to surface")
		}
	})
}

func TestServiceReplace(t *testing.T) {
	t.Run("rejected sku keeps its products out of the swap", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-A": {10}, "SKU-B": nil}}
		store := &stubStore{}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		records := []PriceRecord{
			{SKU: "SKU-A", AllGroups: true, Qty: dec("5"), Value: dec("9.99")},
			{SKU: "SKU-B", AllGroups: true, Qty: dec("5"), Value: dec("9.99")},
		}
		rejected, err := svc.Replace(context.Background(), records)
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if len(rejected) != 1 || rejected[0].Record.SKU != "SKU-B" {
			t.Fatalf("rejected = %+v, want SKU-B only", rejected)
		}
		if len(store.replaced) != 1 {
			t.Fatalf("expected one replace call, got %d", len(store.replaced))
		}
		call := store.replaced[0]
		if len(call.affected) != 1 || call.affected[0] != 10 {
			t.Fatalf("affected = %v, want [10]", call.affected)
		}
		if len(call.skeletons) != 1 || call.skeletons[0].LinkFieldValue != 10 {
			t.Fatalf("skeletons = %+v", call.skeletons)
		}
		if len(trigger.calls) != 1 || trigger.calls[0].reason != "tier_prices_replaced" {
			t.Fatalf("trigger calls = %+v", trigger.calls)
		}
	})

	t.Run("fully rejected batch swaps nothing", func(t *testing.T) {
		lookup := &stubLookup{}
		store := &stubStore{}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		records := []PriceRecord{{SKU: "SKU-GONE", Qty: dec("1"), Value: dec("1")}}
		rejected, err := svc.Replace(context.Background(), records)
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if len(rejected) != 1 {
			t.Fatalf("rejected = %+v", rejected)
		}
		if len(store.replaced) != 0 || len(trigger.calls) != 0 {
			t.Fatalf("nothing may run for a fully rejected batch")
		}
	})
}

func TestServiceDelete(t *testing.T) {
	t.Run("matched row is deleted and products invalidated", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-D": {42}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(7, 42, 3, "5", "19.99")}}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		record := PriceRecord{SKU: "SKU-D", CustomerGroupID: 3, Qty: dec("5"), Value: dec("19.99")}
		rejected, err := svc.Delete(context.Background(), []PriceRecord{record})
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(rejected) != 0 {
			t.Fatalf("unexpected rejections: %+v", rejected)
		}
		if len(store.deleted) != 1 || len(store.deleted[0]) != 1 || store.deleted[0][0] != 7 {
			t.Fatalf("deleted = %+v, want [[7]]", store.deleted)
		}
		if len(trigger.calls) != 1 {
			t.Fatalf("expected one invalidation")
		}
		if trigger.calls[0].reason != "tier_prices_deleted" {
			t.Fatalf("reason = %q", trigger.calls[0].reason)
		}
		if len(trigger.calls[0].ids) != 1 || trigger.calls[0].ids[0] != 42 {
			t.Fatalf("invalidated ids = %v, want [42]", trigger.calls[0].ids)
		}
	})

	t.Run("no matching row skips deletion but still invalidates", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-D": {42}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(7, 42, 3, "5", "19.99")}}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		record := PriceRecord{SKU: "SKU-D", CustomerGroupID: 3, Qty: dec("5"), Value: dec("99.99")}
		rejected, err := svc.Delete(context.Background(), []PriceRecord{record})
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(rejected) != 0 {
			t.Fatalf("a miss is not a rejection: %+v", rejected)
		}
		if len(store.deleted) != 0 {
			t.Fatalf("no rows may be deleted when nothing matches")
		}
		if len(trigger.calls) != 1 {
			t.Fatalf("the addressed product must still be invalidated")
		}
		if len(trigger.calls[0].ids) != 1 || trigger.calls[0].ids[0] != 42 {
			t.Fatalf("invalidated ids = %v, want [42]", trigger.calls[0].ids)
		}
	})

	t.Run("invalidation covers rejected records' products too", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-D": {42}, "SKU-E": {50}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(7, 42, 3, "5", "19.99")}}
		trigger := &stubTrigger{}
		svc := newTestService(lookup, store, trigger, 100)

		records := []PriceRecord{
			{SKU: "SKU-D", CustomerGroupID: 3, Qty: dec("5"), Value: dec("19.99")},
			{SKU: "SKU-E", CustomerGroupID: 3, Qty: dec("-1"), Value: dec("19.99")},
		}
		rejected, err := svc.Delete(context.Background(), records)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(rejected) != 1 || rejected[0].Record.SKU != "SKU-E" {
			t.Fatalf("rejected = %+v, want SKU-E only", rejected)
		}
		if len(store.deleted) != 1 || len(store.deleted[0]) != 1 || store.deleted[0][0] != 7 {
			t.Fatalf("deleted = %+v, want [[7]]", store.deleted)
		}
		if len(trigger.calls) != 1 {
			t.Fatalf("expected one invalidation")
		}
		got := trigger.calls[0].ids
		if len(got) != 2 || got[0] != 42 || got[1] != 50 {
			t.Fatalf("invalidated ids = %v, want [42 50]", got)
		}
	})

	t.Run("duplicate records delete the row once", func(t *testing.T) {
		lookup := &stubLookup{ids: map[string][]int64{"SKU-D": {42}}}
		store := &stubStore{rows: []models.TierPrice{fixedRow(7, 42, 3, "5", "19.99")}}
		svc := newTestService(lookup, store, &stubTrigger{}, 100)

		record := PriceRecord{SKU: "SKU-D", CustomerGroupID: 3, Qty: dec("5"), Value: dec("19.99")}
		_, err := svc.Delete(context.Background(), []PriceRecord{record, record})
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(store.deleted) != 1 || len(store.deleted[0]) != 1 {
			t.Fatalf("deleted = %+v, want a single row id", store.deleted)
		}
	})
}
