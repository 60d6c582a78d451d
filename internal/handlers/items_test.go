package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/itemsrv/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (api testAPI) createItem(t *testing.T, token, name, description string, price float64) types.Item {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/items/", token, map[string]any{
		"name":        name,
		"description": description,
		"price":       price,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[types.Item](t, rec)
}

func itemNames(items []types.Item) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

func TestCreateItem(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	item := api.createItem(t, token, "New Item", "Item Description", 150)
	assert.NotZero(t, item.ID)
	assert.NotZero(t, item.UserID)
	assert.Equal(t, "New Item", item.Name)
	assert.Equal(t, 150.0, item.Price)
	require.NotNil(t, item.Description)
	assert.Equal(t, "Item Description", *item.Description)
}

func TestCreateItem_Invalid(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	tests := map[string]string{
		"missing name and price": `{"description": "Missing name and price"}`,
		"price not a number":     `{"name": "Invalid Price", "description": "This should fail", "price": "not-a-number"}`,
		"negative price":         `{"name": "Negative", "price": -1}`,
		"malformed json":         `{"name": `,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := newRequest(http.MethodPost, "/items/", "Bearer "+token)
			req.Body = io.NopCloser(strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			rec := serve(api, req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Detail)
		})
	}
}

func TestGetItem(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	created := api.createItem(t, token, "Test Item", "Test Description", 100)

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/items/%d", created.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[types.Item](t, rec)
	assert.Equal(t, created.ID, item.ID)
	assert.Equal(t, "Test Item", item.Name)

	rec = api.do(t, http.MethodGet, "/items/999", token, nil)
	assertDetail(t, rec, http.StatusNotFound, "Item not found")

	rec = api.do(t, http.MethodGet, "/items/abc", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateItem(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	created := api.createItem(t, token, "Original Name", "Original Description", 100)
	path := fmt.Sprintf("/items/%d", created.ID)

	rec := api.do(t, http.MethodPut, path, token, map[string]any{"name": "Updated Name", "price": 150})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[types.Item](t, rec)
	assert.Equal(t, "Updated Name", item.Name)
	assert.Equal(t, 150.0, item.Price)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{"price": 200.0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item = decode[types.Item](t, rec)
	assert.Equal(t, 200.0, item.Price)
	assert.Equal(t, "Updated Name", item.Name)
	require.NotNil(t, item.Description)
	assert.Equal(t, "Original Description", *item.Description)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{"price": -3})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateItem_DescriptionPresence(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	created := api.createItem(t, token, "Item", "old desc", 10)
	path := fmt.Sprintf("/items/%d", created.ID)

	rec := api.do(t, http.MethodPut, path, token, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[types.Item](t, rec)
	require.NotNil(t, item.Description)
	assert.Equal(t, "old desc", *item.Description)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{"description": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item = decode[types.Item](t, rec)
	assert.Nil(t, item.Description)
	assert.Equal(t, "Renamed", item.Name)

	rec = api.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[types.Item](t, rec).Description)
}

func TestUpdateItem_EmptyBody(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	created := api.createItem(t, token, "Item", "desc", 10)

	rec := api.do(t, http.MethodPut, fmt.Sprintf("/items/%d", created.ID), token, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[types.Item](t, rec)
	assert.Equal(t, "Item", item.Name)
	require.NotNil(t, item.Description)
	assert.Equal(t, "desc", *item.Description)
}

func TestUpdateItem_NotFound(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	rec := api.do(t, http.MethodPut, "/items/999", token, map[string]any{
		"name":        "Nonexistent Item",
		"description": "Should fail",
		"price":       50.0,
	})
	assertDetail(t, rec, http.StatusNotFound, "Item not found")
}

func TestDeleteItem(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	created := api.createItem(t, token, "Item to Delete", "", 50)
	path := fmt.Sprintf("/items/%d", created.ID)

	rec := api.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodGet, path, token, nil)
	assertDetail(t, rec, http.StatusNotFound, "Item not found")

	rec = api.do(t, http.MethodDelete, "/items/999", token, nil)
	assertDetail(t, rec, http.StatusNotFound, "Item not found")
}

func TestItems_OwnershipIsolation(t *testing.T) {
	api := newTestAPI(t)
	alice := api.userToken(t, "alice")
	bob := api.userToken(t, "bob")
	bobs := api.createItem(t, bob, "Bob's Item", "private", 10)
	path := fmt.Sprintf("/items/%d", bobs.ID)

	assertDetail(t, api.do(t, http.MethodGet, path, alice, nil), http.StatusNotFound, "Item not found")
	assertDetail(t, api.do(t, http.MethodPut, path, alice, map[string]any{"name": "Mine"}), http.StatusNotFound, "Item not found")
	assertDetail(t, api.do(t, http.MethodDelete, path, alice, nil), http.StatusNotFound, "Item not found")

	rec := api.do(t, http.MethodGet, "/items/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]types.Item](t, rec))

	rec = api.do(t, http.MethodGet, path, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bob's Item", decode[types.Item](t, rec).Name)
}

func TestListItems(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	api.createItem(t, token, "test Item 1", "Description 1", 10)
	api.createItem(t, token, "test Item 2", "Description 2", 20)
	api.createItem(t, token, "very very expensive Item", "Costly", 1000)

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"test Item 1", "test Item 2", "very very expensive Item"}},
		{query: "?min_price=10&max_price=20", want: []string{"test Item 1", "test Item 2"}},
		{query: "?query=Expensive", want: []string{"very very expensive Item"}},
		{query: "?skip=1&limit=1", want: []string{"test Item 2"}},
		{query: "?skip=5", want: []string{}},
		{query: "?min_price=15", want: []string{"test Item 2", "very very expensive Item"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/items/"+tt.query, token, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, itemNames(decode[[]types.Item](t, rec)))
		})
	}
}

func TestListItems_MaxLimit(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	api.createItem(t, token, "only", "", 1)

	rec := api.do(t, http.MethodGet, "/items/?limit=100", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"only"}, itemNames(decode[[]types.Item](t, rec)))

	rec = api.do(t, http.MethodGet, "/items/?limit=101", token, nil)
	assertDetail(t, rec, http.StatusUnprocessableEntity, "limit must be an integer between 1 and 100")
}

func TestListItems_NonASCIIQuery(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")
	api.createItem(t, token, "CAFÉ CRÈME", "", 4)

	for _, query := range []string{"CAF", "CAFÉ", "café", "CRÈME"} {
		t.Run(query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/items/?query="+url.QueryEscape(query), token, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{"CAFÉ CRÈME"}, itemNames(decode[[]types.Item](t, rec)))
		})
	}
}

func TestListItems_EmptyIsArray(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	rec := api.do(t, http.MethodGet, "/items/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListItems_InvalidParameters(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	for _, query := range []string{
		"?skip=-1&limit=-5",
		"?skip=abc",
		"?limit=0",
		"?limit=101",
		"?min_price=-1",
		"?max_price=cheap",
		"?min_price=NaN",
	} {
		t.Run(query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/items/"+query, token, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Detail)
		})
	}

	rec := api.do(t, http.MethodGet, "/items/?min_price=50&max_price=10", token, nil)
	assertDetail(t, rec, http.StatusBadRequest, "min_price cannot be greater than max_price")
}

func TestExportItems(t *testing.T) {
	objects := &memoryObjectStore{objects: map[string][]byte{}}
	api := newTestAPIWithExports(t, objects)
	token := api.userToken(t, "testuser")
	api.createItem(t, token, "first", "", 1)
	api.createItem(t, token, "second", "", 2)

	rec := api.do(t, http.MethodPost, "/items/export", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	export := decode[types.ItemExport](t, rec)
	assert.Equal(t, "itemsrv-exports", export.Bucket)
	assert.Equal(t, 2, export.Count)
	assert.True(t, strings.HasPrefix(export.Key, "exports/users/"))

	var stored []types.Item
	require.NoError(t, json.Unmarshal(objects.objects[export.Key], &stored))
	assert.Equal(t, []string{"first", "second"}, itemNames(stored))
}

func TestExportItems_NotConfigured(t *testing.T) {
	api := newTestAPI(t)
	token := api.userToken(t, "testuser")

	rec := api.do(t, http.MethodPost, "/items/export", token, nil)
	assert.NotEqual(t, http.StatusCreated, rec.Code)
}
