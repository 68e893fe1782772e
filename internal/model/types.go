// Package model defines domain types used by the service.
package model

import "time"

// Product is a catalog item. It owns zero or more prices.
type Product struct {
	ID               int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Description      string     `json:"description" gorm:"column:description;not null" validate:"required"`
	CreationDate     time.Time  `json:"creationDate" gorm:"column:creation_date"`
	ModificationDate *time.Time `json:"modificationDate" gorm:"column:modification_date"`
	Status           string     `json:"status" gorm:"column:product_status"`
	Prices           []Price    `json:"prices" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" validate:"dive"`
}

// TableName pins the table name regardless of gorm's naming strategy.
func (Product) TableName() string { return "product" }

// ProductUpdate is the payload of a product update. Prices are managed
// through the price endpoints and are not part of it.
type ProductUpdate struct {
	ID          int64  `json:"id"`
	Description string `json:"description" validate:"required"`
	Status      string `json:"status"`
}

// Product returns the update as a Product without prices.
func (u ProductUpdate) Product() Product {
	return Product{ID: u.ID, Description: u.Description, Status: u.Status}
}

// Price is a priced snapshot belonging to exactly one product.
type Price struct {
	ID               int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID        int64      `json:"productId" gorm:"column:product_id;not null;index"`
	CreationDate     time.Time  `json:"creationDate" gorm:"column:creation_date"`
	ModificationDate *time.Time `json:"modificationDate" gorm:"column:modification_date"`
	Amount           float64    `json:"price" gorm:"column:amount;not null" validate:"gt=0"`
	Status           string     `json:"status" gorm:"column:status"`
}

// TableName pins the table name regardless of gorm's naming strategy.
func (Price) TableName() string { return "price" }

// PriceRequest is the payload of a price creation.
type PriceRequest struct {
	ProductID int64   `json:"productId" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Status    *string `json:"status" validate:"required"`
}

// ProductSortFields maps sortable JSON field names of Product to columns.
var ProductSortFields = map[string]string{
	"id":               "id",
	"description":      "description",
	"creationDate":     "creation_date",
	"modificationDate": "modification_date",
	"status":           "product_status",
}

// PriceSortFields maps sortable JSON field names of Price to columns.
var PriceSortFields = map[string]string{
	"id":               "id",
	"productId":        "product_id",
	"creationDate":     "creation_date",
	"modificationDate": "modification_date",
	"price":            "amount",
	"status":           "status",
}
