package models

import "time"

// ProductEntity maps a SKU to a store-scoped catalog entity. The same SKU
// may appear once per store scope, which is why price records fan out to
// multiple rows on write.
type ProductEntity struct {
	EntityID   int64     `gorm:"column:entity_id;primaryKey;autoIncrement" json:"entity_id"`
	SKU        string    `gorm:"column:sku;index:idx_product_entities_sku" json:"sku"`
	StoreScope string    `gorm:"column:store_scope" json:"store_scope"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ProductEntity) TableName() string {
	return "product_entities"
}
