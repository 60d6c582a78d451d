package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/itemsrv/apiserver/internal/auth"
	"github.com/itemsrv/apiserver/internal/db/dbtest"
	"github.com/itemsrv/apiserver/internal/services"
	"github.com/itemsrv/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	router http.Handler
	tokens *auth.TokenService
	users  *store.UserRepository
}

type memoryObjectStore struct {
	objects map[string][]byte
}

func (s *memoryObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memoryObjectStore) Bucket() string {
	return "itemsrv-exports"
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	return newTestAPIWithExports(t, nil)
}

func newTestAPIWithExports(t *testing.T, objects services.ObjectStore) testAPI {
	t.Helper()

	conn := dbtest.Open(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenService("test-secret", "HS256", 30*time.Minute)
	require.NoError(t, err)

	userRepo := store.NewUserRepository(conn)
	itemRepo := store.NewItemRepository(conn)
	userService, err := services.NewUserService(userRepo, auth.NewBcryptHasher(bcrypt.MinCost), tokens, 5*time.Second)
	require.NoError(t, err)
	itemService := services.NewItemService(itemRepo, 5*time.Second, logger)

	var exportService *services.ExportService
	if objects != nil {
		exportService = services.NewExportService(itemRepo, objects, 5*time.Second)
	}

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	AuthRouter(router, userService, logger)
	router.Route("/items", func(r chi.Router) {
		ItemRouter(r, itemService, exportService, RequireAuth(userService, logger), logger)
	})

	return testAPI{router: router, tokens: tokens, users: userRepo}
}

func (api testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path, authorization string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func serve(api testAPI, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api testAPI) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api testAPI) register(t *testing.T, username string) {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/register", "", map[string]any{
		"email":    username + "@example.com",
		"username": username,
		"password": "password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (api testAPI) login(t *testing.T, username string) string {
	t.Helper()
	rec := api.postForm(t, "/token", url.Values{"username": {username}, "password": {"password"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (api testAPI) userToken(t *testing.T, username string) string {
	t.Helper()
	api.register(t, username)
	return api.login(t, username)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, detail, decode[ErrorResponse](t, rec).Detail)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
