package tierprice

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
	"github.com/merchstack/tierprice-service/pkg/logger"
	"github.com/merchstack/tierprice-service/pkg/metrics"
)

// Operation labels used for logging and metrics.
const (
	OpFetch   = "fetch"
	OpUpdate  = "update"
	OpReplace = "replace"
	OpDelete  = "delete"
)

// IdentifierLookup resolves SKUs to product identifiers. Every requested SKU
// gets an entry in the result; an unknown SKU maps to an empty slice.
type IdentifierLookup interface {
	Resolve(ctx context.Context, skus []string) (map[string][]int64, error)
}

// PersistenceAdapter is the storage surface the reconciliation flow needs.
type PersistenceAdapter interface {
	Fetch(ctx context.Context, ids []int64) ([]models.TierPrice, error)
	Update(ctx context.Context, skeletons []models.TierPrice) error
	Replace(ctx context.Context, skeletons []models.TierPrice, affectedIDs []int64) error
	Delete(ctx context.Context, rowIDs []int64) error
}

// InvalidationTrigger flags downstream price data for the given product
// identifiers as stale.
type InvalidationTrigger interface {
	Invalidate(ctx context.Context, ids []int64, reason string) error
}

// Service orchestrates tier price reconciliation: validate the batch, resolve
// identifiers, expand SKU-addressed records into storage rows and hand them to
// persistence, then invalidate the touched products. Rejected records are
// reported back per batch, never as a batch-wide failure.
type Service struct {
	lookup       IdentifierLookup
	store        PersistenceAdapter
	validator    *Validator
	trigger      InvalidationTrigger
	logg         *logger.Logger
	metrics      *metrics.ReconcileMetrics
	maxBatchSize int
}

// NewService wires the reconciliation orchestrator.
func NewService(
	lookup IdentifierLookup,
	store PersistenceAdapter,
	validator *Validator,
	trigger InvalidationTrigger,
	logg *logger.Logger,
	m *metrics.ReconcileMetrics,
	maxBatchSize int,
) *Service {
	return &Service{
		lookup:       lookup,
		store:        store,
		validator:    validator,
		trigger:      trigger,
		logg:         logg,
		metrics:      m,
		maxBatchSize: maxBatchSize,
	}
}

// Fetch returns every persisted tier price for the requested SKUs. Unknown
// SKUs fail the whole call; reads have no per-record rejection channel.
func (s *Service) Fetch(ctx context.Context, skus []string) ([]PriceRecord, error) {
	ctx = s.opContext(ctx, OpFetch, len(skus))
	start := time.Now()

	records, err := s.fetch(ctx, skus)
	s.finish(ctx, OpFetch, start, err)
	return records, err
}

func (s *Service) fetch(ctx context.Context, skus []string) ([]PriceRecord, error) {
	skus = normalizeSKUs(skus)
	if len(skus) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one sku is required")
	}
	if err := s.guardBatch(len(skus)); err != nil {
		return nil, err
	}

	idsBySKU, err := s.lookup.Resolve(ctx, skus)
	if err != nil {
		return nil, err
	}
	if unknown := unresolvedSKUs(skus, idsBySKU); len(unknown) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("unknown skus: %s", strings.Join(unknown, ", ")))
	}

	rows, err := s.store.Fetch(ctx, resolvedIDs(skus, idsBySKU))
	if err != nil {
		return nil, err
	}

	skuByID := invertLookup(idsBySKU)
	records := make([]PriceRecord, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRow(row, skuByID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Update reconciles the batch against persisted rows. A record addressing no
// persisted dimensional key is rejected; there is nothing to update. Survivors
// either rewrite the matched row or land as the changed price for their key.
func (s *Service) Update(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	ctx = s.opContext(ctx, OpUpdate, len(records))
	start := time.Now()

	rejected, err := s.update(ctx, records)
	s.countRejections(OpUpdate, rejected)
	s.finish(ctx, OpUpdate, start, err)
	return rejected, err
}

func (s *Service) update(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := s.guardBatch(len(records)); err != nil {
		return nil, err
	}

	idsBySKU, err := s.lookup.Resolve(ctx, dedupeSKUs(records))
	if err != nil {
		return nil, err
	}
	affected := resolvedIDs(dedupeSKUs(records), idsBySKU)

	existing, err := s.store.Fetch(ctx, affected)
	if err != nil {
		return nil, err
	}

	verdict := s.validator.ValidateAgainstExisting(records, groupRowsBySKU(existing, invertLookup(idsBySKU)))
	kept := filterRecords(records, verdict)
	if len(kept) == 0 {
		return verdict.Rejections(records), nil
	}

	skeletons, err := Expand(kept, idsBySKU)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, skeletons); err != nil {
		return nil, err
	}
	if err := s.invalidate(ctx, affected, "tier_prices_updated"); err != nil {
		return nil, err
	}
	return verdict.Rejections(records), nil
}

// Replace swaps the complete tier price set of every product the retained
// records address. Products referenced only by rejected records keep their
// rows untouched.
func (s *Service) Replace(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	ctx = s.opContext(ctx, OpReplace, len(records))
	start := time.Now()

	rejected, err := s.replace(ctx, records)
	s.countRejections(OpReplace, rejected)
	s.finish(ctx, OpReplace, start, err)
	return rejected, err
}

func (s *Service) replace(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := s.guardBatch(len(records)); err != nil {
		return nil, err
	}

	idsBySKU, err := s.lookup.Resolve(ctx, dedupeSKUs(records))
	if err != nil {
		return nil, err
	}

	verdict := markUnresolved(s.validator.Validate(records), records, idsBySKU)
	kept := filterRecords(records, verdict)
	if len(kept) == 0 {
		return verdict.Rejections(records), nil
	}

	skeletons, err := Expand(kept, idsBySKU)
	if err != nil {
		return nil, err
	}
	affected := resolvedIDs(dedupeSKUs(kept), idsBySKU)
	if err := s.store.Replace(ctx, skeletons, affected); err != nil {
		return nil, err
	}
	if err := s.invalidate(ctx, affected, "tier_prices_replaced"); err != nil {
		return nil, err
	}
	return verdict.Rejections(records), nil
}

// Delete removes the persisted rows matching the batch. Records that match no
// persisted row are silently skipped; deleting something already gone is not
// an error. Every product the batch addressed is invalidated, whether or not
// one of its rows was removed.
func (s *Service) Delete(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	ctx = s.opContext(ctx, OpDelete, len(records))
	start := time.Now()

	rejected, err := s.delete(ctx, records)
	s.countRejections(OpDelete, rejected)
	s.finish(ctx, OpDelete, start, err)
	return rejected, err
}

func (s *Service) delete(ctx context.Context, records []PriceRecord) ([]RejectedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := s.guardBatch(len(records)); err != nil {
		return nil, err
	}

	idsBySKU, err := s.lookup.Resolve(ctx, dedupeSKUs(records))
	if err != nil {
		return nil, err
	}
	// Affected identifiers come from the full input batch, before any record
	// is dropped: consumers must re-read every product the caller addressed,
	// whether or not one of its rows survived matching.
	affected := resolvedIDs(dedupeSKUs(records), idsBySKU)

	verdict := markUnresolved(s.validator.Validate(records), records, idsBySKU)
	kept := filterRecords(records, verdict)

	var rowIDs []int64
	if len(kept) > 0 {
		skeletons, err := Expand(kept, idsBySKU)
		if err != nil {
			return nil, err
		}
		existing, err := s.store.Fetch(ctx, affected)
		if err != nil {
			return nil, err
		}
		byLink := groupRowsByLink(existing)

		seen := make(map[int64]struct{}, len(skeletons))
		for _, skeleton := range skeletons {
			rowID, ok := Match(skeleton, byLink[skeleton.LinkFieldValue])
			if !ok {
				continue
			}
			if _, dup := seen[rowID]; dup {
				continue
			}
			seen[rowID] = struct{}{}
			rowIDs = append(rowIDs, rowID)
		}
	}

	if len(rowIDs) > 0 {
		if err := s.store.Delete(ctx, rowIDs); err != nil {
			return nil, err
		}
	}
	if err := s.invalidate(ctx, affected, "tier_prices_deleted"); err != nil {
		return nil, err
	}
	return verdict.Rejections(records), nil
}

func (s *Service) guardBatch(size int) error {
	if s.maxBatchSize > 0 && size > s.maxBatchSize {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch of %d records exceeds the limit of %d", size, s.maxBatchSize))
	}
	return nil
}

// invalidate publishes the reindex trigger. Empty identifier sets publish
// nothing.
func (s *Service) invalidate(ctx context.Context, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.trigger.Invalidate(ctx, ids, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "trigger price reindex")
	}
	s.metrics.AddInvalidated(len(ids))
	return nil
}

func (s *Service) opContext(ctx context.Context, op string, batchSize int) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithOperation(ctx, op)
	return s.logg.WithBatchSize(ctx, batchSize)
}

func (s *Service) finish(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(op)
		if s.logg != nil {
			s.logg.Error(ctx, "tier price batch failed", err)
		}
		return
	}
	s.metrics.IncSuccess(op)
	if s.logg != nil {
		s.logg.Info(ctx, "tier price batch processed")
	}
}

func (s *Service) countRejections(op string, rejected []RejectedRecord) {
	if len(rejected) == 0 {
		return
	}
	counts := map[pkgerrors.Code]int{}
	for _, rej := range rejected {
		counts[rej.ReasonCode]++
	}
	for code, count := range counts {
		s.metrics.AddRejected(op, string(code), count)
	}
}

// markUnresolved rejects records whose SKU resolved to no product identifier.
// Shape failures already in the verdict keep their original reason.
func markUnresolved(verdict Verdict, records []PriceRecord, idsBySKU map[string][]int64) Verdict {
	for i, record := range records {
		if verdict.Failed(i) {
			continue
		}
		if len(idsBySKU[record.SKU]) == 0 {
			verdict.failed[i] = Rejection{
				Code:    pkgerrors.CodeNotFound,
				Message: fmt.Sprintf("sku %q not found", record.SKU),
			}
		}
	}
	return verdict
}

// groupRowsBySKU buckets persisted rows under the SKU owning their link value,
// preserving fetch order within each bucket.
func groupRowsBySKU(rows []models.TierPrice, skuByID map[int64]string) map[string][]models.TierPrice {
	grouped := make(map[string][]models.TierPrice)
	for _, row := range rows {
		sku, ok := skuByID[row.LinkFieldValue]
		if !ok {
			continue
		}
		grouped[sku] = append(grouped[sku], row)
	}
	return grouped
}

func normalizeSKUs(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			continue
		}
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		out = append(out, sku)
	}
	return out
}

// resolvedIDs flattens the lookup result for the given SKUs into a sorted,
// deduplicated identifier set.
func resolvedIDs(skus []string, idsBySKU map[string][]int64) []int64 {
	seen := map[int64]struct{}{}
	ids := make([]int64, 0, len(skus))
	for _, sku := range skus {
		for _, id := range idsBySKU[sku] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func unresolvedSKUs(skus []string, idsBySKU map[string][]int64) []string {
	var unknown []string
	for _, sku := range skus {
		if len(idsBySKU[sku]) == 0 {
			unknown = append(unknown, sku)
		}
	}
	return unknown
}
