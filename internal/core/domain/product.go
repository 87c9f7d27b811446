package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, matching what clients already send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a catalog listing offered for export.
type Product struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	OriginCountry string          `json:"originCountry"`
	Price         decimal.Decimal `json:"price"`
	Rating        float64         `json:"rating"`
	Quantity      int             `json:"quantity"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ProductDetail is a single-product read: the product and its ledger.
type ProductDetail struct {
	Product
	Transfers []Transfer `json:"transfers"`
}

// NewProductDetail pairs p with its transfers. A nil ledger renders as [].
func NewProductDetail(p Product, transfers []Transfer) *ProductDetail {
	if transfers == nil {
		transfers = []Transfer{}
	}
	return &ProductDetail{Product: p, Transfers: transfers}
}

// ProductPatch carries the descriptive fields of a partial update.
// Nil fields are left untouched.
type ProductPatch struct {
	Name          *string
	Image         *string
	OriginCountry *string
	Price         *decimal.Decimal
	Rating        *float64
}

// Empty reports whether the patch would change nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Image == nil && p.OriginCountry == nil &&
		p.Price == nil && p.Rating == nil
}

// Apply merges the patch into p.
func (p ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Image != nil {
		product.Image = *p.Image
	}
	if p.OriginCountry != nil {
		product.OriginCountry = *p.OriginCountry
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Rating != nil {
		product.Rating = *p.Rating
	}
}

type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}
