package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/internal/services/servicestest"
	"github.com/homefinder/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testApp struct {
	env    *servicestest.Env
	router *chi.Mux
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := servicestest.NewEnv()

	userService := services.NewUserService(env.Users, env.Notifier, logger)
	userService.SetHashCost(bcrypt.MinCost)
	listingService := services.NewListingService(env.Listings, env.Catalog, env.Images, logger)
	messageService := services.NewMessageService(env.Listings, env.Messages, logger)

	router := chi.NewRouter()
	Routes(router, Handlers{
		Auth:     NewAuthHandler(userService, testSecret, "http://localhost:8080", logger),
		Listings: NewListingHandler(listingService, logger),
		Messages: NewMessageHandler(messageService, logger),
		Images:   NewImageHandler(env.Images, logger),
	}, testSecret)

	return &testApp{env: env, router: router}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID int) string {
	t.Helper()
	token, err := issueToken(userID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func jsonRequest(t *testing.T, method, target string, body any, userID int) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	return req
}

func imageRequest(t *testing.T, target string, data []byte, userID int) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(formFieldImage, "house.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if userID > 0 {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	return req
}

func listingBody(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "Quiet street close to the park",
		"category":    "2",
		"price":       "5",
		"rooms":       "3",
		"parking":     "1",
		"bathrooms":   "2",
		"street":      "Av. Juárez 100",
		"lat":         "20.67",
		"lng":         "-103.35",
	}
}

func createListing(t *testing.T, app *testApp, owner int) types.Listing {
	t.Helper()
	rec := app.do(jsonRequest(t, http.MethodPost, "/listings", listingBody("Casa"), owner))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var listing types.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	return listing
}

func listingURL(id int, suffix string) string {
	return "/listings/" + strconv.Itoa(id) + suffix
}

func assertDenied(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, ownerIndexPath, rec.Header().Get("Location"))
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateListingRequiresSession(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(jsonRequest(t, http.MethodPost, "/listings", listingBody("Casa"), 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, app.env.Listings.Len())
}

func TestCreateListingFromForm(t *testing.T) {
	app := newTestApp(t)
	form := url.Values{}
	for k, v := range listingBody("Desde formulario") {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", bearer(t, 1))

	rec := app.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var listing types.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, "Desde formulario", listing.Title)
	assert.Equal(t, listingURL(listing.ID, ""), rec.Header().Get("Location"))
}

func TestCreateListingValidationErrors(t *testing.T) {
	app := newTestApp(t)
	body := listingBody("")
	body["description"] = strings.Repeat("d", 201)

	rec := app.do(jsonRequest(t, http.MethodPost, "/listings", body, 1))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	fields := map[string]bool{}
	for _, f := range resp.Errors {
		fields[f.Field] = true
	}
	assert.True(t, fields["title"])
	assert.True(t, fields["description"])
}

func TestDeniedOutcomesAreUniform(t *testing.T) {
	app := newTestApp(t)
	listing := createListing(t, app, 1)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "view draft as stranger", req: jsonRequest(t, http.MethodGet, listingURL(listing.ID, ""), nil, 2)},
		{name: "view draft anonymously", req: jsonRequest(t, http.MethodGet, listingURL(listing.ID, ""), nil, 0)},
		{name: "view missing listing", req: jsonRequest(t, http.MethodGet, listingURL(999, ""), nil, 2)},
		{name: "view malformed id", req: jsonRequest(t, http.MethodGet, "/listings/abc", nil, 2)},
		{name: "edit as stranger", req: jsonRequest(t, http.MethodPut, listingURL(listing.ID, ""), listingBody("Mine now"), 2)},
		{name: "edit missing listing", req: jsonRequest(t, http.MethodPut, listingURL(999, ""), listingBody("Ghost"), 2)},
		{name: "delete as stranger", req: jsonRequest(t, http.MethodDelete, listingURL(listing.ID, ""), nil, 2)},
		{name: "delete missing listing", req: jsonRequest(t, http.MethodDelete, listingURL(999, ""), nil, 2)},
		{name: "attach as stranger", req: imageRequest(t, listingURL(listing.ID, "/image"), pngBytes, 2)},
		{name: "messages as stranger", req: jsonRequest(t, http.MethodGet, listingURL(listing.ID, "/messages"), nil, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDenied(t, app.do(tt.req))
		})
	}

	stored, err := app.env.Listings.Get(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Casa", stored.Title)
	assert.False(t, stored.Published)
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	listing := createListing(t, app, 1)

	rec := app.do(imageRequest(t, listingURL(listing.ID, "/image"), pngBytes, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var published types.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &published))
	assert.True(t, published.Published)
	assert.NotEmpty(t, published.Image)

	rec = app.do(imageRequest(t, listingURL(listing.ID, "/image"), pngBytes, 1))
	assertDenied(t, rec)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/images/"+published.Image, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = app.do(jsonRequest(t, http.MethodGet, listingURL(listing.ID, ""), nil, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	var view ListingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.IsOwner)
	assert.Equal(t, "Apartment", view.Category.Name)

	rec = app.do(jsonRequest(t, http.MethodPut, listingURL(listing.ID, ""), listingBody("Casa renovada"), 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodGet, "/api/listings", nil, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	var public []types.ListingDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &public))
	require.Len(t, public, 1)
	assert.Equal(t, "Casa renovada", public[0].Title)

	rec = app.do(jsonRequest(t, http.MethodDelete, listingURL(listing.ID, ""), nil, 1))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, app.env.Listings.Len())
	assert.Zero(t, app.env.Images.Len())

	rec = app.do(httptest.NewRequest(http.MethodGet, "/images/"+published.Image, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageRouteRejectsForeignKeys(t *testing.T) {
	app := newTestApp(t)
	for _, target := range []string{"/images/secrets/config.json", "/images/listings/../x"} {
		rec := app.do(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestAttachImageRejectsNonImage(t *testing.T) {
	app := newTestApp(t)
	listing := createListing(t, app, 1)

	rec := app.do(imageRequest(t, listingURL(listing.ID, "/image"), []byte("just some text, not a picture"), 1))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"image"`)
}

func TestDeleteStorageFailureKeepsListing(t *testing.T) {
	app := newTestApp(t)
	listing := createListing(t, app, 1)
	require.Equal(t, http.StatusOK, app.do(imageRequest(t, listingURL(listing.ID, "/image"), pngBytes, 1)).Code)

	app.env.Images.RemoveErr = assert.AnError
	rec := app.do(jsonRequest(t, http.MethodDelete, listingURL(listing.ID, ""), nil, 1))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, app.env.Listings.Len())
}

func TestOwnedListingsPagination(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 25; i++ {
		createListing(t, app, 1)
	}

	rec := app.do(jsonRequest(t, http.MethodGet, "/my-listings?page=1", nil, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	var page services.OwnedPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.Pages)

	for _, raw := range []string{"", "?page=0", "?page=-1", "?page=two", "?page=9223372036854775807"} {
		rec := app.do(jsonRequest(t, http.MethodGet, "/my-listings"+raw, nil, 1))
		assert.Equal(t, http.StatusSeeOther, rec.Code, raw)
		assert.Equal(t, ownerIndexFirstURL, rec.Header().Get("Location"), raw)
	}
}

func TestMessagesOverHTTP(t *testing.T) {
	app := newTestApp(t)
	listing := createListing(t, app, 1)

	rec := app.do(jsonRequest(t, http.MethodPost, listingURL(listing.ID, "/messages"), map[string]string{"body": "Is it available?"}, 0))
	assert.Equal(t, http.StatusNotFound, rec.Code, "drafts do not take messages")

	require.Equal(t, http.StatusOK, app.do(imageRequest(t, listingURL(listing.ID, "/image"), pngBytes, 1)).Code)

	rec = app.do(jsonRequest(t, http.MethodPost, listingURL(listing.ID, "/messages"), map[string]string{"body": "too short"}, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodPost, listingURL(listing.ID, "/messages"), map[string]string{"body": "Is it available?"}, 0))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodGet, listingURL(listing.ID, "/messages"), nil, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []types.MessageWithSender
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, "Is it available?", inbox[0].Body)
}

func TestAccountFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	register := map[string]string{
		"name":            "Mariana",
		"email":           "mariana@example.com",
		"password":        "s3cret!",
		"repeat_password": "s3cret!",
	}
	login := map[string]string{"email": "mariana@example.com", "password": "s3cret!"}

	rec := app.do(jsonRequest(t, http.MethodPost, "/auth/register", register, 0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = app.do(jsonRequest(t, http.MethodPost, "/auth/login", login, 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "not confirmed")

	rec = app.do(httptest.NewRequest(http.MethodGet, "/auth/confirm/"+app.env.Notifier.LastToken(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodPost, "/auth/login", login, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.NotEmpty(t, auth.Token)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(session)
	rec = app.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var me types.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "mariana@example.com", me.Email)

	rec = app.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	app := newTestApp(t)
	register := map[string]string{
		"name":            "Iván",
		"email":           "ivan@example.com",
		"password":        "first-pass",
		"repeat_password": "first-pass",
	}
	require.Equal(t, http.StatusCreated, app.do(jsonRequest(t, http.MethodPost, "/auth/register", register, 0)).Code)
	require.Equal(t, http.StatusOK, app.do(httptest.NewRequest(http.MethodGet, "/auth/confirm/"+app.env.Notifier.LastToken(), nil)).Code)

	rec := app.do(jsonRequest(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ivan@example.com"}, 0))
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := app.env.Notifier.LastToken()

	rec = app.do(httptest.NewRequest(http.MethodGet, "/auth/reset-password/"+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodPost, "/auth/reset-password/"+token, map[string]string{"password": "second-pass"}, 0))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/auth/reset-password/"+token, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{"email": "ivan@example.com", "password": "second-pass"}, 0))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidSessionIsAnonymous(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/my-listings?page=1", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, app.do(req).Code)

	other, err := issueToken(1, []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/my-listings?page=1", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: other})
	assert.Equal(t, http.StatusUnauthorized, app.do(req).Code)
}
