package tierprice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/merchstack/tierprice-service/pkg/db"
	"github.com/merchstack/tierprice-service/pkg/db/models"
	pkgerrors "github.com/merchstack/tierprice-service/pkg/errors"
)

const tierPriceTable = "tier_prices"

var linkFieldRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is the GORM-backed persistence adapter for tier price rows. The link
// column correlating a row to its product entity is configuration; every
// query consults it instead of naming a column.
type Store struct {
	client    *db.Client
	linkField string
}

// NewStore builds a store bound to the provided DB client and link column.
func NewStore(client *db.Client, linkField string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	linkField = strings.TrimSpace(linkField)
	if !linkFieldRe.MatchString(linkField) {
		return nil, fmt.Errorf("link field %q is not a valid column name", linkField)
	}
	return &Store{client: client, linkField: linkField}, nil
}

// LinkField returns the configured link column name.
func (s *Store) LinkField() string {
	return s.linkField
}

func (s *Store) selectColumns() string {
	return fmt.Sprintf(
		"value_id, %s AS link_field_value, all_groups, customer_group_id, qty, value, percentage_value, price_list",
		s.linkField,
	)
}

// Fetch loads all rows linked to the provided product identifiers, ordered by
// link value, qty and row id so the matcher sees a stable candidate order.
func (s *Store) Fetch(ctx context.Context, ids []int64) ([]models.TierPrice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.fetchOn(s.client.DB().WithContext(ctx), ids)
}

func (s *Store) fetchOn(tx *gorm.DB, ids []int64) ([]models.TierPrice, error) {
	var rows []models.TierPrice
	err := tx.
		Table(tierPriceTable).
		Select(s.selectColumns()).
		Where(s.linkField+" IN ?", ids).
		Order(fmt.Sprintf("%s ASC, qty ASC, value_id ASC", s.linkField)).
		Scan(&rows).
		Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch tier prices")
	}
	return rows, nil
}

// Update reconciles the skeletons against currently persisted rows in one
// transaction: a skeleton matching an existing row updates it in place, the
// rest are inserted as new rows.
func (s *Store) Update(ctx context.Context, skeletons []models.TierPrice) error {
	if len(skeletons) == 0 {
		return nil
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.fetchOn(tx, linkValues(skeletons))
		if err != nil {
			return err
		}
		byLink := groupRowsByLink(existing)

		for _, skeleton := range skeletons {
			rowID, ok := Match(skeleton, byLink[skeleton.LinkFieldValue])
			if !ok {
				if err := s.upsertRow(tx, skeleton); err != nil {
					return err
				}
				continue
			}
			err := tx.
				Table(tierPriceTable).
				Where("value_id = ?", rowID).
				Updates(map[string]any{
					"value":            skeleton.Value,
					"percentage_value": skeleton.PercentageValue,
				}).
				Error
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
					fmt.Sprintf("update tier price row %d", rowID))
			}
		}
		return nil
	})
}

// Replace swaps the full tier price set for the affected product identifiers
// in one transaction. Rows absent from the new skeleton set are pruned.
func (s *Store) Replace(ctx context.Context, skeletons []models.TierPrice, affectedIDs []int64) error {
	if len(affectedIDs) == 0 {
		return nil
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", tierPriceTable, s.linkField),
			affectedIDs,
		).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune tier prices for replace")
		}
		for _, skeleton := range skeletons {
			if err := s.upsertRow(tx, skeleton); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the rows with the provided row ids.
func (s *Store) Delete(ctx context.Context, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE value_id IN ?", tierPriceTable),
			rowIDs,
		).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete tier price rows")
		}
		return nil
	})
}

// upsertRow inserts the skeleton, updating the price in place when a row with
// the same dimensional key already exists. A skeleton carrying a changed value
// does not match any persisted row, and this is where the change lands.
func (s *Store) upsertRow(tx *gorm.DB, skeleton models.TierPrice) error {
	priceList := skeleton.PriceList
	if priceList == "" {
		priceList = models.DefaultPriceList
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, all_groups, customer_group_id, qty, value, percentage_value, price_list)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (%s, all_groups, customer_group_id, qty, price_list)
		 DO UPDATE SET value = EXCLUDED.value, percentage_value = EXCLUDED.percentage_value`,
		tierPriceTable, s.linkField, s.linkField,
	)
	err := tx.Exec(query,
		skeleton.LinkFieldValue,
		skeleton.AllGroups,
		skeleton.CustomerGroupID,
		skeleton.Qty,
		skeleton.Value,
		skeleton.PercentageValue,
		priceList,
	).Error
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err,
				fmt.Sprintf("concurrent write on tier price for identifier %d", skeleton.LinkFieldValue))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("upsert tier price for identifier %d", skeleton.LinkFieldValue))
	}
	return nil
}

func linkValues(skeletons []models.TierPrice) []int64 {
	seen := make(map[int64]struct{}, len(skeletons))
	ids := make([]int64, 0, len(skeletons))
	for _, skeleton := range skeletons {
		if _, ok := seen[skeleton.LinkFieldValue]; ok {
			continue
		}
		seen[skeleton.LinkFieldValue] = struct{}{}
		ids = append(ids, skeleton.LinkFieldValue)
	}
	return ids
}

// groupRowsByLink preserves fetch order within each identifier bucket.
func groupRowsByLink(rows []models.TierPrice) map[int64][]models.TierPrice {
	grouped := make(map[int64][]models.TierPrice)
	for _, row := range rows {
		grouped[row.LinkFieldValue] = append(grouped[row.LinkFieldValue], row)
	}
	return grouped
}
