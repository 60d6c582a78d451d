package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itemsrv/apiserver/internal/mq"
	"github.com/itemsrv/apiserver/internal/store"
	"github.com/itemsrv/apiserver/types"
)

const (
	DefaultListLimit  = 10
	MaxListLimit      = 100
	MaxItemNameLength = 255

	publishTimeout = 5 * time.Second
)

// ItemRepository defines owner-scoped persistence operations for items.
type ItemRepository interface {
	Create(ctx context.Context, item types.Item) (types.Item, error)
	Get(ctx context.Context, ownerID, id int) (types.Item, error)
	List(ctx context.Context, filter types.ItemFilter) ([]types.Item, error)
	Update(ctx context.Context, item types.Item) (types.Item, error)
	Delete(ctx context.Context, ownerID, id int) error
}

// EventPublisher delivers item change notifications to a message channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ItemService encapsulates item use-cases. Every operation takes the id of
// the authenticated owner and never touches another user's items.
type ItemService struct {
	repo    ItemRepository
	timeout time.Duration
	logger  *slog.Logger
	events  EventPublisher
	channel string
	now     func() time.Time
}

// ItemServiceOption customizes an ItemService.
type ItemServiceOption func(*ItemService)

// WithEventPublisher publishes an ItemEvent to channel after every
// successful create, update and delete.
func WithEventPublisher(events EventPublisher, channel string) ItemServiceOption {
	return func(s *ItemService) {
		s.events = events
		s.channel = channel
	}
}

func NewItemService(repo ItemRepository, timeout time.Duration, logger *slog.Logger, opts ...ItemServiceOption) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ItemService{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func errItemNotFound() error {
	return newError(ErrNotFound, "Item not found")
}

func (s *ItemService) Create(ctx context.Context, ownerID int, in types.ItemCreate) (types.Item, error) {
	if in.Price == nil {
		return types.Item{}, Validation("price is required")
	}
	item := types.Item{
		Name:        in.Name,
		Description: in.Description,
		Price:       *in.Price,
		UserID:      ownerID,
	}
	if err := validateItem(&item); err != nil {
		return types.Item{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return types.Item{}, fmt.Errorf("create item: %w", err)
	}

	s.publish(ctx, types.ItemCreated, created)
	return created, nil
}

func (s *ItemService) Get(ctx context.Context, ownerID, itemID int) (types.Item, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.get(ctx, ownerID, itemID)
}

func (s *ItemService) get(ctx context.Context, ownerID, itemID int) (types.Item, error) {
	item, err := s.repo.Get(ctx, ownerID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Item{}, errItemNotFound()
		}
		return types.Item{}, fmt.Errorf("load item: %w", err)
	}
	if item.UserID != ownerID {
		return types.Item{}, newError(ErrForbidden, "Not enough permissions")
	}
	return item, nil
}

// Update merges the supplied fields into the owner's item and returns the
// stored result. An empty update returns the item without writing it.
func (s *ItemService) Update(ctx context.Context, ownerID, itemID int, update types.ItemUpdate) (types.Item, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.get(ctx, ownerID, itemID)
	if err != nil {
		return types.Item{}, err
	}
	if update.IsEmpty() {
		return current, nil
	}

	merged := update.Apply(current)
	if err := validateItem(&merged); err != nil {
		return types.Item{}, err
	}

	if _, err := s.repo.Update(ctx, merged); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Item{}, errItemNotFound()
		}
		return types.Item{}, fmt.Errorf("update item: %w", err)
	}

	updated, err := s.get(ctx, ownerID, itemID)
	if err != nil {
		return types.Item{}, err
	}

	s.publish(ctx, types.ItemUpdated, updated)
	return updated, nil
}

// Delete removes the owner's item and returns it as it was before removal.
func (s *ItemService) Delete(ctx context.Context, ownerID, itemID int) (types.Item, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	snapshot, err := s.get(ctx, ownerID, itemID)
	if err != nil {
		return types.Item{}, err
	}

	if err := s.repo.Delete(ctx, ownerID, itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Item{}, errItemNotFound()
		}
		return types.Item{}, fmt.Errorf("delete item: %w", err)
	}

	s.publish(ctx, types.ItemDeleted, snapshot)
	return snapshot, nil
}

// List returns a page of the owner's items. Limit defaults to
// DefaultListLimit and is at most MaxListLimit, and a negative Skip becomes
// zero. filter.OwnerID is always overwritten with ownerID.
func (s *ItemService) List(ctx context.Context, ownerID int, filter types.ItemFilter) ([]types.Item, error) {
	filter.OwnerID = ownerID
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	filter.Query = strings.TrimSpace(filter.Query)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func validateItem(item *types.Item) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return Validation("name is required")
	}
	if utf8.RuneCountInString(item.Name) > MaxItemNameLength {
		return Validation("name must be at most %d characters", MaxItemNameLength)
	}
	if math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
		return Validation("price must be a finite number")
	}
	if item.Price < 0 {
		return Validation("price must be greater than or equal to 0")
	}
	return nil
}

func (s *ItemService) publish(ctx context.Context, eventType types.ItemEventType, item types.Item) {
	if s.events == nil {
		return
	}

	event := types.ItemEvent{
		Type:       eventType,
		ItemID:     item.ID,
		UserID:     item.UserID,
		OccurredAt: s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode item event", "type", eventType, "item_id", item.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	attrs := map[string]string{
		mq.AttrContentType: "application/json",
		"type":             string(eventType),
		"user_id":          strconv.Itoa(item.UserID),
	}
	if _, err := s.events.Publish(ctx, s.channel, data, attrs); err != nil {
		s.logger.Warn("publish item event", "type", eventType, "item_id", item.ID, "error", err)
	}
}
