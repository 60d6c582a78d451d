package handlers

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/itemsrv/apiserver/internal/services"
	"github.com/itemsrv/apiserver/types"
)

// ItemHandler provides HTTP handlers for the caller's items.
type ItemHandler struct {
	itemService   *services.ItemService
	exportService *services.ExportService
	logger        *slog.Logger
}

// NewItemHandler constructs a handler. exportService may be nil when no
// object storage is configured.
func NewItemHandler(itemService *services.ItemService, exportService *services.ExportService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		itemService:   itemService,
		exportService: exportService,
		logger:        logger,
	}
}

// ItemRouter registers item routes on the given router. Every route requires
// authentication.
func ItemRouter(
	r chi.Router,
	itemService *services.ItemService,
	exportService *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewItemHandler(itemService, exportService, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.ListItems)
	r.Post("/", handler.CreateItem)
	if exportService != nil {
		r.Post("/export", handler.ExportItems)
	}
	r.Route("/{itemID}", func(r chi.Router) {
		r.Get("/", handler.GetItem)
		r.Put("/", handler.UpdateItem)
		r.Delete("/", handler.DeleteItem)
	})
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	filter, err := parseItemFilter(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	items, err := h.itemService.List(r.Context(), user.ID, filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req types.ItemCreate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	item, err := h.itemService.Create(r.Context(), user.ID, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	item, err := h.itemService.Get(r.Context(), user.ID, id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req types.ItemUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	item, err := h.itemService.Update(r.Context(), user.ID, id, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	id, err := parseItemID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if _, err := h.itemService.Delete(r.Context(), user.ID, id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportItems writes a snapshot of the caller's items to object storage.
func (h *ItemHandler) ExportItems(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	export, err := h.exportService.Export(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "items exported",
		"user_id", user.ID,
		"key", export.Key,
		"count", export.Count,
	)
	writeJSON(w, http.StatusCreated, export)
}

func (h *ItemHandler) user(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, credentialsDetail)
	}
	return user, ok
}

func parseItemID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		return 0, services.Validation("item_id must be an integer")
	}
	return id, nil
}

// parseItemFilter reads skip, limit, min_price, max_price and query.
func parseItemFilter(r *http.Request) (types.ItemFilter, error) {
	query := r.URL.Query()
	filter := types.ItemFilter{Limit: services.DefaultListLimit}

	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return types.ItemFilter{}, services.Validation("skip must be an integer greater than or equal to 0")
		}
		filter.Skip = skip
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > services.MaxListLimit {
			return types.ItemFilter{}, services.Validation("limit must be an integer between 1 and %d", services.MaxListLimit)
		}
		filter.Limit = limit
	}

	var err error
	if filter.MinPrice, err = parsePrice(query.Get("min_price"), "min_price"); err != nil {
		return types.ItemFilter{}, err
	}
	if filter.MaxPrice, err = parsePrice(query.Get("max_price"), "max_price"); err != nil {
		return types.ItemFilter{}, err
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return types.ItemFilter{}, services.InvalidArgument("min_price cannot be greater than max_price")
	}

	filter.Query = query.Get("query")
	return filter, nil
}

func parsePrice(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return nil, services.Validation("%s must be a number greater than or equal to 0", name)
	}
	return &price, nil
}
