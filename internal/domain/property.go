package domain

import "github.com/shopspring/decimal"

type ListingType string

const (
	ListingTypeSale ListingType = "SALE"
	ListingTypeRent ListingType = "RENT"
)

// Property is owned by the listing service. The ledger only reads the
// owner, the current listing price and the sale-or-rent classification.
type Property struct {
	ID          int32           `json:"id"`
	OwnerID     int32           `json:"owner_id"` // owning agent
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	ListingType ListingType     `json:"listing_type"`
}

// IsManagedBy reports whether the actor may approve payments and
// agreements on this property.
func (p *Property) IsManagedBy(actor Actor) bool {
	return actor.IsAdmin() || actor.ID == p.OwnerID
}
