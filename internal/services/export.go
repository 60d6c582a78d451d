package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/itemsrv/apiserver/types"
)

// ObjectStore is the subset of object storage used for exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// ExportService writes snapshots of a user's items to object storage.
type ExportService struct {
	items   ItemRepository
	store   ObjectStore
	timeout time.Duration
	now     func() time.Time
}

func NewExportService(items ItemRepository, store ObjectStore, timeout time.Duration) *ExportService {
	return &ExportService{
		items:   items,
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// ExportKey returns the object key for an export taken at t.
func ExportKey(ownerID int, t time.Time) string {
	return fmt.Sprintf("exports/users/%d/items-%d.json", ownerID, t.UnixNano())
}

// Export uploads every item owned by ownerID as a JSON array.
func (s *ExportService) Export(ctx context.Context, ownerID int) (types.ItemExport, error) {
	items, err := s.collect(ctx, ownerID)
	if err != nil {
		return types.ItemExport{}, err
	}

	data, err := json.Marshal(items)
	if err != nil {
		return types.ItemExport{}, fmt.Errorf("encode export: %w", err)
	}

	createdAt := s.now().UTC()
	key := ExportKey(ownerID, createdAt)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return types.ItemExport{}, fmt.Errorf("upload export: %w", err)
	}

	return types.ItemExport{
		Bucket:    s.store.Bucket(),
		Key:       key,
		Count:     len(items),
		CreatedAt: createdAt,
	}, nil
}

func (s *ExportService) collect(ctx context.Context, ownerID int) ([]types.Item, error) {
	items := make([]types.Item, 0)
	for skip := 0; ; skip += MaxListLimit {
		page, err := s.page(ctx, ownerID, skip)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		if len(page) < MaxListLimit {
			return items, nil
		}
	}
}

func (s *ExportService) page(ctx context.Context, ownerID, skip int) ([]types.Item, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.items.List(ctx, types.ItemFilter{OwnerID: ownerID, Skip: skip, Limit: MaxListLimit})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return page, nil
}
