package models

import (
	"github.com/shopspring/decimal"
)

// DefaultPriceList is the scope assigned to rows that do not name one.
const DefaultPriceList = "default"

// TierPrice is the storage-shaped tier price row. A row belongs to exactly
// one product entity through the configured link column; LinkFieldValue is
// populated by selecting that column under a stable alias, so the struct
// never names the physical column itself.
type TierPrice struct {
	RowID           int64            `gorm:"column:value_id;primaryKey;autoIncrement" json:"row_id"`
	LinkFieldValue  int64            `gorm:"column:link_field_value" json:"link_field_value"`
	AllGroups       bool             `gorm:"column:all_groups" json:"all_groups"`
	CustomerGroupID int64            `gorm:"column:customer_group_id" json:"customer_group_id"`
	Qty             decimal.Decimal  `gorm:"column:qty;type:numeric(12,4)" json:"qty"`
	Value           decimal.Decimal  `gorm:"column:value;type:numeric(20,6)" json:"value"`
	PercentageValue *decimal.Decimal `gorm:"column:percentage_value;type:numeric(5,2)" json:"percentage_value,omitempty"`
	PriceList       string           `gorm:"column:price_list;default:default" json:"price_list"`
}

func (TierPrice) TableName() string {
	return "tier_prices"
}
