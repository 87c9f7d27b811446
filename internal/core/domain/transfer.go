package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one import event drawn from a product's stock. The descriptive
// fields are a snapshot taken when the transfer was committed, so the ledger
// stays readable after the product is edited or removed.
type Transfer struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`

	Name          string          `json:"name"`
	Image         string          `json:"image"`
	Price         decimal.Decimal `json:"price"`
	Rating        float64         `json:"rating"`
	OriginCountry string          `json:"originCountry"`
}

// Snapshot copies the descriptive fields of p into t.
func (t *Transfer) Snapshot(p Product) {
	t.Name = p.Name
	t.Image = p.Image
	t.Price = p.Price
	t.Rating = p.Rating
	t.OriginCountry = p.OriginCountry
}

type TransferResult struct {
	TransferID string   `json:"transferId"`
	Quantity   int      `json:"quantity"`
	Transfer   Transfer `json:"transfer"`
}
