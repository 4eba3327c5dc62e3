//go:build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/homefinder/apiserver/internal/db"
	"github.com/homefinder/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("homefinder"),
		postgres.WithUsername("homefinder"),
		postgres.WithPassword("homefinder"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(dsn))

	conn, err := db.OpenDSN(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func createUser(t *testing.T, repo *UserRepository, email string) types.User {
	t.Helper()
	user, err := repo.Create(context.Background(), types.User{
		Name:         "Owner",
		Email:        email,
		PasswordHash: "hash",
		Confirmed:    true,
	})
	require.NoError(t, err)
	return user
}

func draftFields(title string) types.ListingFields {
	return types.ListingFields{
		Title:       title,
		Description: "Bright flat close to the park",
		Rooms:       3,
		Parking:     1,
		Bathrooms:   2,
		Street:      "Main St 1",
		Lat:         40.5398,
		Lng:         -3.6387,
		CategoryID:  1,
		PriceBandID: 2,
	}
}

func TestListingLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(conn)
	listings := NewListingRepository(conn)
	messages := NewMessageRepository(conn)

	owner := createUser(t, users, "owner@example.com")

	created, err := listings.Create(ctx, types.Listing{ListingFields: draftFields("Flat"), OwnerID: owner.ID})
	require.NoError(t, err)

	fetched, err := listings.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ListingDraft, fetched.State())
	assert.Empty(t, fetched.Image)
	assert.False(t, fetched.Published)

	published, err := listings.AttachImage(ctx, created.ID, "listings/a.jpg")
	require.NoError(t, err)
	assert.True(t, published.Published)
	assert.Equal(t, "listings/a.jpg", published.Image)

	_, err = listings.AttachImage(ctx, created.ID, "listings/b.jpg")
	assert.ErrorIs(t, err, ErrAlreadyPublished)

	fetched, err = listings.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "listings/a.jpg", fetched.Image)

	edited := draftFields("Flat renovated")
	updated, err := listings.Update(ctx, created.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, "Flat renovated", updated.Title)
	assert.True(t, updated.Published)
	assert.Equal(t, "listings/a.jpg", updated.Image)

	detail, err := listings.GetWithCategoryAndPrice(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "House", detail.Category.Name)
	assert.Equal(t, 2, detail.PriceBand.ID)

	_, err = messages.Create(ctx, types.Message{Body: "Is it still available?", ListingID: created.ID})
	require.NoError(t, err)
	_, err = messages.Create(ctx, types.Message{Body: "Can I visit tomorrow?", ListingID: created.ID, SenderID: &owner.ID})
	require.NoError(t, err)

	list, err := messages.ListByListingWithSender(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].Sender)
	require.NotNil(t, list[1].Sender)
	assert.Equal(t, owner.Email, list[1].Sender.Email)

	require.NoError(t, listings.Delete(ctx, created.ID))
	_, err = listings.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = messages.ListByListingWithSender(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, listings.Delete(ctx, created.ID), ErrNotFound)
}

func TestListByOwnerPagination(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(conn)
	listings := NewListingRepository(conn)

	owner := createUser(t, users, "pages@example.com")
	other := createUser(t, users, "other@example.com")

	for i := 0; i < 25; i++ {
		_, err := listings.Create(ctx, types.Listing{ListingFields: draftFields(fmt.Sprintf("Listing %d", i)), OwnerID: owner.ID})
		require.NoError(t, err)
	}
	_, err := listings.Create(ctx, types.Listing{ListingFields: draftFields("Not mine"), OwnerID: other.ID})
	require.NoError(t, err)

	page, total, err := listings.ListByOwner(ctx, owner.ID, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, page, 5)
	assert.Equal(t, "Listing 20", page[0].Title)
}

func TestCreateRejectsUnknownCategory(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, NewUserRepository(conn), "fk@example.com")

	fields := draftFields("Bad")
	fields.CategoryID = 999
	_, err := NewListingRepository(conn).Create(ctx, types.Listing{ListingFields: fields, OwnerID: owner.ID})
	assert.ErrorIs(t, err, ErrInvalidReference)
	var ref *ReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "category_id", ref.Column)
}

func TestUserTokenLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(conn)

	token := "pending-token"
	user, err := users.Create(ctx, types.User{Name: "New", Email: "New@Example.com", PasswordHash: "h", Token: &token})
	require.NoError(t, err)

	_, err = users.Create(ctx, types.User{Name: "Dup", Email: "New@Example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrDuplicate)

	byToken, err := users.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byToken.ID)

	byToken.Confirmed = true
	byToken.Token = nil
	_, err = users.Update(ctx, byToken)
	require.NoError(t, err)

	_, err = users.GetByToken(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	byEmail, err := users.GetByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.True(t, byEmail.Confirmed)
	assert.Nil(t, byEmail.Token)
}
