// Package servicestest provides in-memory repositories and collaborators
// for exercising services and handlers without Postgres or a bucket.
package servicestest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/internal/storage"
	"github.com/homefinder/apiserver/internal/store"
	"github.com/homefinder/apiserver/types"
)

var (
	_ services.ListingRepository = (*Listings)(nil)
	_ services.CatalogRepository = (*Catalog)(nil)
	_ services.MessageRepository = (*Messages)(nil)
	_ services.UserRepository    = (*Users)(nil)
	_ services.ImageStore        = (*Images)(nil)
	_ services.Notifier          = (*Notifier)(nil)
)

// Listings mirrors store.ListingRepository.
type Listings struct {
	mu       sync.Mutex
	nextID   int
	rows     map[int]types.Listing
	catalog  *Catalog
	messages *Messages

	// Failure injection.
	AttachErr error
	CreateErr error
	DeleteErr error
	UpdateErr error
}

func NewListings(catalog *Catalog, messages *Messages) *Listings {
	return &Listings{rows: map[int]types.Listing{}, catalog: catalog, messages: messages}
}

func (l *Listings) Get(ctx context.Context, id int) (types.Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.rows[id]
	if !ok {
		return types.Listing{}, store.ErrNotFound
	}
	return listing, nil
}

func (l *Listings) GetWithCategoryAndPrice(ctx context.Context, id int) (types.ListingDetail, error) {
	listing, err := l.Get(ctx, id)
	if err != nil {
		return types.ListingDetail{}, err
	}
	return l.detail(ctx, listing)
}

func (l *Listings) detail(ctx context.Context, listing types.Listing) (types.ListingDetail, error) {
	category, err := l.catalog.GetCategory(ctx, listing.CategoryID)
	if err != nil {
		return types.ListingDetail{}, err
	}
	band, err := l.catalog.GetPriceBand(ctx, listing.PriceBandID)
	if err != nil {
		return types.ListingDetail{}, err
	}
	return types.ListingDetail{Listing: listing, Category: category, PriceBand: band}, nil
}

func (l *Listings) ListByOwner(ctx context.Context, ownerID, offset, limit int) ([]types.Listing, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var owned []types.Listing
	for _, listing := range l.rows {
		if listing.OwnerID == ownerID {
			owned = append(owned, listing)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })

	total := len(owned)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (l *Listings) ListPublishedWithCategoryAndPrice(ctx context.Context) ([]types.ListingDetail, error) {
	l.mu.Lock()
	var published []types.Listing
	for _, listing := range l.rows {
		if listing.Published {
			published = append(published, listing)
		}
	}
	l.mu.Unlock()
	sort.Slice(published, func(i, j int) bool { return published[i].ID < published[j].ID })

	details := make([]types.ListingDetail, 0, len(published))
	for _, listing := range published {
		d, err := l.detail(ctx, listing)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

func (l *Listings) Create(ctx context.Context, listing types.Listing) (types.Listing, error) {
	if l.CreateErr != nil {
		return types.Listing{}, l.CreateErr
	}
	if err := l.checkRefs(ctx, listing.ListingFields); err != nil {
		return types.Listing{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	now := time.Now()
	listing.ID = l.nextID
	listing.Image = ""
	listing.Published = false
	listing.CreatedAt = now
	listing.UpdatedAt = now
	l.rows[listing.ID] = listing
	return listing, nil
}

func (l *Listings) Update(ctx context.Context, id int, fields types.ListingFields) (types.Listing, error) {
	if l.UpdateErr != nil {
		return types.Listing{}, l.UpdateErr
	}
	if err := l.checkRefs(ctx, fields); err != nil {
		return types.Listing{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.rows[id]
	if !ok {
		return types.Listing{}, store.ErrNotFound
	}
	listing.ListingFields = fields
	listing.UpdatedAt = time.Now()
	l.rows[id] = listing
	return listing, nil
}

func (l *Listings) AttachImage(ctx context.Context, id int, image string) (types.Listing, error) {
	if l.AttachErr != nil {
		return types.Listing{}, l.AttachErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.rows[id]
	if !ok {
		return types.Listing{}, store.ErrNotFound
	}
	if listing.Published {
		return types.Listing{}, store.ErrAlreadyPublished
	}
	listing.Image = image
	listing.Published = true
	listing.UpdatedAt = time.Now()
	l.rows[id] = listing
	return listing, nil
}

func (l *Listings) Delete(ctx context.Context, id int) error {
	if l.DeleteErr != nil {
		return l.DeleteErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(l.rows, id)
	if l.messages != nil {
		l.messages.deleteForListing(id)
	}
	return nil
}

// Put stores a listing as-is, bypassing the draft rules.
func (l *Listings) Put(listing types.Listing) types.Listing {
	l.mu.Lock()
	defer l.mu.Unlock()
	if listing.ID == 0 {
		l.nextID++
		listing.ID = l.nextID
	} else if listing.ID > l.nextID {
		l.nextID = listing.ID
	}
	l.rows[listing.ID] = listing
	return listing
}

func (l *Listings) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

func (l *Listings) checkRefs(ctx context.Context, fields types.ListingFields) error {
	if _, err := l.catalog.GetCategory(ctx, fields.CategoryID); err != nil {
		return &store.ReferenceError{Column: "category_id"}
	}
	if _, err := l.catalog.GetPriceBand(ctx, fields.PriceBandID); err != nil {
		return &store.ReferenceError{Column: "price_band_id"}
	}
	return nil
}

// Catalog serves the seeded categories and price bands.
type Catalog struct {
	Categories []types.Category
	PriceBands []types.PriceBand
}

func NewCatalog() *Catalog {
	c := &Catalog{}
	for i, name := range []string{"House", "Apartment", "Warehouse", "Land", "Cabin"} {
		c.Categories = append(c.Categories, types.Category{ID: i + 1, Name: name})
	}
	for i := 1; i <= 10; i++ {
		c.PriceBands = append(c.PriceBands, types.PriceBand{ID: i, Name: fmt.Sprintf("band %d", i)})
	}
	return c
}

func (c *Catalog) ListCategories(ctx context.Context) ([]types.Category, error) {
	return c.Categories, nil
}

func (c *Catalog) ListPriceBands(ctx context.Context) ([]types.PriceBand, error) {
	return c.PriceBands, nil
}

func (c *Catalog) GetCategory(ctx context.Context, id int) (types.Category, error) {
	for _, category := range c.Categories {
		if category.ID == id {
			return category, nil
		}
	}
	return types.Category{}, store.ErrNotFound
}

func (c *Catalog) GetPriceBand(ctx context.Context, id int) (types.PriceBand, error) {
	for _, band := range c.PriceBands {
		if band.ID == id {
			return band, nil
		}
	}
	return types.PriceBand{}, store.ErrNotFound
}

// Messages mirrors store.MessageRepository.
type Messages struct {
	mu     sync.Mutex
	nextID int
	rows   []types.Message
	users  *Users

	CreateErr error
}

func NewMessages(users *Users) *Messages {
	return &Messages{users: users}
}

func (m *Messages) Create(ctx context.Context, message types.Message) (types.Message, error) {
	if m.CreateErr != nil {
		return types.Message{}, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	message.ID = m.nextID
	message.CreatedAt = time.Now()
	m.rows = append(m.rows, message)
	return message, nil
}

func (m *Messages) ListByListingWithSender(ctx context.Context, listingID int) ([]types.MessageWithSender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MessageWithSender
	for _, message := range m.rows {
		if message.ListingID != listingID {
			continue
		}
		item := types.MessageWithSender{Message: message}
		if message.SenderID != nil && m.users != nil {
			if user, err := m.users.GetByID(ctx, *message.SenderID); err == nil {
				public := user.Public()
				item.Sender = &public
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Count returns the number of messages stored for the listing.
func (m *Messages) Count(listingID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, message := range m.rows {
		if message.ListingID == listingID {
			n++
		}
	}
	return n
}

func (m *Messages) deleteForListing(listingID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, message := range m.rows {
		if message.ListingID != listingID {
			kept = append(kept, message)
		}
	}
	m.rows = kept
}

// Users mirrors store.UserRepository.
type Users struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.User
}

func NewUsers() *Users {
	return &Users{rows: map[int]types.User{}}
}

func (u *Users) GetByID(ctx context.Context, id int) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.rows[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.rows {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) GetByToken(ctx context.Context, token string) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if strings.TrimSpace(token) == "" {
		return types.User{}, store.ErrNotFound
	}
	for _, user := range u.rows {
		if user.Token != nil && *user.Token == token {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.rows {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicate
		}
	}
	u.nextID++
	now := time.Now()
	user.ID = u.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	u.rows[user.ID] = user
	return user, nil
}

func (u *Users) Update(ctx context.Context, user types.User) (types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	u.rows[user.ID] = user
	return user, nil
}

// Images records stored blobs in memory.
type Images struct {
	mu      sync.Mutex
	seq     int
	Objects map[string][]byte
	Removed []string

	StoreErr  error
	RemoveErr error
}

func NewImages() *Images {
	return &Images{Objects: map[string][]byte{}}
}

func (i *Images) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if i.StoreErr != nil {
		return "", i.StoreErr
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	key := fmt.Sprintf("listings/%d.png", i.seq)
	i.Objects[key] = data
	return key, nil
}

func (i *Images) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	data, ok := i.Objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (i *Images) Remove(ctx context.Context, key string) error {
	if i.RemoveErr != nil {
		return i.RemoveErr
	}
	if key == "" {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.Objects, key)
	i.Removed = append(i.Removed, key)
	return nil
}

func (i *Images) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.Objects)
}

// Notifier records account emails instead of sending them.
type Notifier struct {
	mu            sync.Mutex
	Confirmations []types.User
	Resets        []types.User
}

func (n *Notifier) SendAccountConfirmation(ctx context.Context, user types.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Confirmations = append(n.Confirmations, user)
}

func (n *Notifier) SendPasswordReset(ctx context.Context, user types.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Resets = append(n.Resets, user)
}

// LastToken returns the token carried by the most recent email.
func (n *Notifier) LastToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var last *types.User
	if len(n.Resets) > 0 {
		last = &n.Resets[len(n.Resets)-1]
	}
	if last == nil && len(n.Confirmations) > 0 {
		last = &n.Confirmations[len(n.Confirmations)-1]
	}
	if last == nil || last.Token == nil {
		return ""
	}
	return *last.Token
}

// Env bundles a full set of fakes.
type Env struct {
	Catalog  *Catalog
	Users    *Users
	Messages *Messages
	Listings *Listings
	Images   *Images
	Notifier *Notifier
}

func NewEnv() *Env {
	catalog := NewCatalog()
	users := NewUsers()
	messages := NewMessages(users)
	return &Env{
		Catalog:  catalog,
		Users:    users,
		Messages: messages,
		Listings: NewListings(catalog, messages),
		Images:   NewImages(),
		Notifier: &Notifier{},
	}
}
