package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/homefinder/apiserver/internal/policy"
	"github.com/homefinder/apiserver/internal/storage"
	"github.com/homefinder/apiserver/internal/store"
	"github.com/homefinder/apiserver/types"
)

// DefaultPageSize is the number of listings per page of the owner index.
const DefaultPageSize = 10

// DefaultMaxImageBytes caps a listing image upload.
const DefaultMaxImageBytes = 5 << 20

// ListingReader loads a single listing.
type ListingReader interface {
	Get(ctx context.Context, id int) (types.Listing, error)
}

// ListingRepository defines persistence operations for listings.
type ListingRepository interface {
	ListingReader
	GetWithCategoryAndPrice(ctx context.Context, id int) (types.ListingDetail, error)
	ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Listing, int, error)
	ListPublishedWithCategoryAndPrice(ctx context.Context) ([]types.ListingDetail, error)
	Create(ctx context.Context, listing types.Listing) (types.Listing, error)
	Update(ctx context.Context, id int, fields types.ListingFields) (types.Listing, error)
	AttachImage(ctx context.Context, id int, image string) (types.Listing, error)
	Delete(ctx context.Context, id int) error
}

// CatalogRepository reads the static categories and price bands.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]types.Category, error)
	ListPriceBands(ctx context.Context) ([]types.PriceBand, error)
	GetCategory(ctx context.Context, id int) (types.Category, error)
	GetPriceBand(ctx context.Context, id int) (types.PriceBand, error)
}

// ImageStore keeps listing images.
type ImageStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// FormOptions are the choices offered by the listing form.
type FormOptions struct {
	Categories []types.Category  `json:"categories"`
	PriceBands []types.PriceBand `json:"price_bands"`
}

// OwnedPage is one page of the owner's listing index.
type OwnedPage struct {
	Items    []types.Listing `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int             `json:"total"`
	Pages    int             `json:"pages"`
}

// ListingService drives the listing lifecycle: draft creation, image
// attachment (which publishes), edits and deletion. Every operation on an
// existing listing goes through the access policy first.
type ListingService struct {
	listings      ListingRepository
	catalog       CatalogRepository
	images        ImageStore
	logger        *slog.Logger
	maxImageBytes int64
}

func NewListingService(listings ListingRepository, catalog CatalogRepository, images ImageStore, logger *slog.Logger) *ListingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingService{
		listings:      listings,
		catalog:       catalog,
		images:        images,
		logger:        logger,
		maxImageBytes: DefaultMaxImageBytes,
	}
}

// SetMaxImageBytes overrides the upload cap.
func (s *ListingService) SetMaxImageBytes(limit int64) {
	if limit > 0 {
		s.maxImageBytes = limit
	}
}

// MaxImageBytes returns the upload cap.
func (s *ListingService) MaxImageBytes() int64 {
	return s.maxImageBytes
}

func (s *ListingService) FormOptions(ctx context.Context) (FormOptions, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return FormOptions{}, err
	}
	bands, err := s.catalog.ListPriceBands(ctx)
	if err != nil {
		return FormOptions{}, err
	}
	return FormOptions{Categories: categories, PriceBands: bands}, nil
}

// Create validates the input and stores a new draft owned by the actor.
func (s *ListingService) Create(ctx context.Context, actor types.Actor, input ListingInput) (types.Listing, error) {
	if !actor.Authenticated() {
		return types.Listing{}, s.deny(opCreate, 0, actor, policy.ReasonUnauthenticated)
	}

	fields, err := s.validate(ctx, input)
	if err != nil {
		return types.Listing{}, err
	}

	created, err := s.listings.Create(ctx, types.Listing{ListingFields: fields, OwnerID: actor.UserID})
	if err != nil {
		if field, ok := referenceField(err); ok {
			return types.Listing{}, invalid(field, listingMessages[field])
		}
		s.logger.Error("create listing failed", "user_id", actor.UserID, "err", err)
		return types.Listing{}, fmt.Errorf("%w: create listing: %w", ErrStorage, err)
	}
	return created, nil
}

// View returns a listing with its category and price band if the actor may see it.
func (s *ListingService) View(ctx context.Context, actor types.Actor, id int) (types.ListingDetail, error) {
	detail, err := s.listings.GetWithCategoryAndPrice(ctx, id)
	var target *types.Listing
	switch {
	case err == nil:
		target = &detail.Listing
	case !errors.Is(err, store.ErrNotFound):
		return types.ListingDetail{}, err
	}

	if d := policy.CanAccess(actor, target, policy.OpView); !d.Allowed {
		return types.ListingDetail{}, s.deny(policy.OpView, id, actor, d.Reason)
	}
	return detail, nil
}

// Edit replaces the editable fields. Image and published flag are kept.
func (s *ListingService) Edit(ctx context.Context, actor types.Actor, id int, input ListingInput) (types.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.OpEdit)
	if err != nil {
		return types.Listing{}, err
	}

	fields, err := s.validate(ctx, input)
	if err != nil {
		return types.Listing{}, err
	}

	updated, err := s.listings.Update(ctx, listing.ID, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Listing{}, s.deny(policy.OpEdit, id, actor, policy.ReasonNotFound)
		}
		if field, ok := referenceField(err); ok {
			return types.Listing{}, invalid(field, listingMessages[field])
		}
		s.logger.Error("update listing failed", "listing_id", id, "err", err)
		return types.Listing{}, fmt.Errorf("%w: update listing: %w", ErrStorage, err)
	}
	return updated, nil
}

// AttachImage stores the listing's only image and publishes it. The image
// reference and published flag are written by one statement; when that
// write fails the stored blob is removed again.
func (s *ListingService) AttachImage(ctx context.Context, actor types.Actor, id int, data []byte) (types.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.OpAttachImage)
	if err != nil {
		return types.Listing{}, err
	}

	if len(data) == 0 {
		return types.Listing{}, invalid("image", "Select an image")
	}
	if int64(len(data)) > s.maxImageBytes {
		return types.Listing{}, invalid("image", "Image is too large")
	}
	contentType := http.DetectContentType(data)
	if !storage.SupportedContentType(contentType) {
		return types.Listing{}, invalid("image", "Only JPEG, PNG, WebP and GIF images are accepted")
	}

	key, err := s.images.Store(ctx, data, contentType)
	if err != nil {
		s.logger.Error("store image failed", "listing_id", id, "err", err)
		return types.Listing{}, fmt.Errorf("%w: store image: %w", ErrStorage, err)
	}

	published, err := s.listings.AttachImage(ctx, listing.ID, key)
	if err != nil {
		if rmErr := s.images.Remove(ctx, key); rmErr != nil {
			s.logger.Error("remove orphaned image failed", "listing_id", id, "key", key, "err", rmErr)
		}
		switch {
		case errors.Is(err, store.ErrAlreadyPublished):
			return types.Listing{}, s.deny(policy.OpAttachImage, id, actor, policy.ReasonAlreadyPublished)
		case errors.Is(err, store.ErrNotFound):
			return types.Listing{}, s.deny(policy.OpAttachImage, id, actor, policy.ReasonNotFound)
		}
		s.logger.Error("attach image failed", "listing_id", id, "err", err)
		return types.Listing{}, fmt.Errorf("%w: attach image: %w", ErrStorage, err)
	}
	return published, nil
}

// Delete removes the stored image first, then the listing and its messages.
// If the image cannot be removed the listing is left in place.
func (s *ListingService) Delete(ctx context.Context, actor types.Actor, id int) error {
	listing, err := s.authorize(ctx, actor, id, policy.OpDelete)
	if err != nil {
		return err
	}

	if listing.Image != "" {
		if err := s.images.Remove(ctx, listing.Image); err != nil {
			s.logger.Error("remove image failed", "listing_id", id, "key", listing.Image, "err", err)
			return fmt.Errorf("%w: remove image: %w", ErrStorage, err)
		}
	}

	if err := s.listings.Delete(ctx, listing.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.deny(policy.OpDelete, id, actor, policy.ReasonNotFound)
		}
		s.logger.Error("delete listing failed", "listing_id", id, "err", err)
		return fmt.Errorf("%w: delete listing: %w", ErrStorage, err)
	}
	return nil
}

// ListOwned returns one page of the actor's listings in creation order.
func (s *ListingService) ListOwned(ctx context.Context, actor types.Actor, page, pageSize int) (OwnedPage, error) {
	if !actor.Authenticated() {
		return OwnedPage{}, s.deny(opListOwned, 0, actor, policy.ReasonUnauthenticated)
	}
	if page < 1 {
		return OwnedPage{}, ErrInvalidPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if page-1 > math.MaxInt/pageSize {
		return OwnedPage{}, ErrInvalidPage
	}

	items, total, err := s.listings.ListByOwner(ctx, actor.UserID, pageSize*(page-1), pageSize)
	if err != nil {
		return OwnedPage{}, err
	}
	if items == nil {
		items = []types.Listing{}
	}

	return OwnedPage{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// ListPublished returns every published listing for the public map.
func (s *ListingService) ListPublished(ctx context.Context) ([]types.ListingDetail, error) {
	details, err := s.listings.ListPublishedWithCategoryAndPrice(ctx)
	if err != nil {
		return nil, err
	}
	if details == nil {
		details = []types.ListingDetail{}
	}
	return details, nil
}

// ParsePage parses a page query value. Anything but a positive integer is
// ErrInvalidPage.
func ParsePage(raw string) (int, error) {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 0, ErrInvalidPage
	}
	return page, nil
}

func (s *ListingService) validate(ctx context.Context, input ListingInput) (types.ListingFields, error) {
	fields, err := ValidateListing(input)
	if err != nil {
		return types.ListingFields{}, err
	}

	var violations []FieldError
	if _, err := s.catalog.GetCategory(ctx, fields.CategoryID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return types.ListingFields{}, err
		}
		violations = append(violations, FieldError{Field: "category", Message: listingMessages["category"]})
	}
	if _, err := s.catalog.GetPriceBand(ctx, fields.PriceBandID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return types.ListingFields{}, err
		}
		violations = append(violations, FieldError{Field: "price", Message: listingMessages["price"]})
	}
	if len(violations) > 0 {
		return types.ListingFields{}, &ValidationError{Fields: violations}
	}
	return fields, nil
}

// referenceField names the input field behind a catalog foreign key
// violation. A broken owner reference has no field.
func referenceField(err error) (string, bool) {
	var ref *store.ReferenceError
	if !errors.As(err, &ref) {
		return "", false
	}
	switch ref.Column {
	case "category_id":
		return "category", true
	case "price_band_id":
		return "price", true
	}
	return "", false
}

func (s *ListingService) authorize(ctx context.Context, actor types.Actor, id int, op policy.Operation) (*types.Listing, error) {
	return authorizeListing(ctx, s.listings, s.logger, actor, id, op)
}

func (s *ListingService) deny(op policy.Operation, id int, actor types.Actor, reason policy.Reason) error {
	return denial(s.logger, op, id, actor, reason)
}

// authorizeListing loads the listing and asks the policy. A missing listing
// is passed to the policy as nil so it is denied like any other case.
func authorizeListing(ctx context.Context, listings ListingReader, logger *slog.Logger, actor types.Actor, id int, op policy.Operation) (*types.Listing, error) {
	var target *types.Listing
	listing, err := listings.Get(ctx, id)
	switch {
	case err == nil:
		target = &listing
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if d := policy.CanAccess(actor, target, op); !d.Allowed {
		return nil, denial(logger, op, id, actor, d.Reason)
	}
	return target, nil
}

func denial(logger *slog.Logger, op policy.Operation, id int, actor types.Actor, reason policy.Reason) error {
	logger.Debug("listing access denied", "op", op, "listing_id", id, "user_id", actor.UserID, "reason", reason)
	return &DenialError{Op: op, ListingID: id, Reason: reason}
}
