package types

import "time"

// ListingState is the lifecycle position of a listing.
type ListingState string

const (
	// ListingDraft is a created listing that has no image and is not public.
	ListingDraft ListingState = "draft"
	// ListingPublished is a listing with its image attached, visible to everyone.
	ListingPublished ListingState = "published"
)

// ListingFields holds the owner-editable attributes of a listing.
type ListingFields struct {
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`
	Rooms       int     `json:"rooms" db:"rooms"`
	Parking     int     `json:"parking" db:"parking"`
	Bathrooms   int     `json:"bathrooms" db:"bathrooms"`
	Street      string  `json:"street" db:"street"`
	Lat         float64 `json:"lat" db:"lat"`
	Lng         float64 `json:"lng" db:"lng"`
	CategoryID  int     `json:"category_id" db:"category_id"`
	PriceBandID int     `json:"price_band_id" db:"price_band_id"`
}

// Listing is a property advertised by its owner.
type Listing struct {
	ID int `json:"id" db:"id"`
	ListingFields

	// Image is the blob reference of the listing photo, empty until attached.
	Image string `json:"image" db:"image"`

	// Published flips to true exactly once, when the image is attached.
	Published bool `json:"published" db:"published"`

	// OwnerID references the user who created the listing.
	OwnerID int `json:"owner_id" db:"user_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// State derives the lifecycle state from the published flag.
func (l Listing) State() ListingState {
	if l.Published {
		return ListingPublished
	}
	return ListingDraft
}

// ListingDetail is a listing together with its category and price band.
type ListingDetail struct {
	Listing
	Category  Category  `json:"category"`
	PriceBand PriceBand `json:"price_band"`
}
