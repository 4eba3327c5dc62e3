package types

// Category is a static property category (house, apartment, ...).
type Category struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// PriceBand is a static asking-price range.
type PriceBand struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
