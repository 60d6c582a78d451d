package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/itemsrv/apiserver/internal/store"
	"github.com/itemsrv/apiserver/types"
)

var errDatabaseDown = errors.New("database is down")

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}}
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, existing := range r.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

type fakeItemRepo struct {
	mu         sync.Mutex
	nextID     int
	items      map[int]types.Item
	err        error
	lastFilter types.ItemFilter
	listCalls  int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: map[int]types.Item{}}
}

func (r *fakeItemRepo) Create(_ context.Context, item types.Item) (types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Item{}, r.err
	}
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item, nil
}

func (r *fakeItemRepo) Get(_ context.Context, ownerID, id int) (types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Item{}, r.err
	}
	item, ok := r.items[id]
	if !ok || item.UserID != ownerID {
		return types.Item{}, store.ErrNotFound
	}
	return item, nil
}

func (r *fakeItemRepo) List(_ context.Context, filter types.ItemFilter) ([]types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	r.listCalls++
	if r.err != nil {
		return nil, r.err
	}

	var matched []types.Item
	for _, item := range r.items {
		if item.UserID != filter.OwnerID {
			continue
		}
		if filter.MinPrice != nil && item.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && item.Price > *filter.MaxPrice {
			continue
		}
		if filter.Query != "" {
			query := strings.ToLower(filter.Query)
			description := ""
			if item.Description != nil {
				description = *item.Description
			}
			if !strings.Contains(strings.ToLower(item.Name), query) &&
				!strings.Contains(strings.ToLower(description), query) {
				continue
			}
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if filter.Skip >= len(matched) {
		return []types.Item{}, nil
	}
	matched = matched[filter.Skip:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *fakeItemRepo) Update(_ context.Context, item types.Item) (types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Item{}, r.err
	}
	existing, ok := r.items[item.ID]
	if !ok || existing.UserID != item.UserID {
		return types.Item{}, store.ErrNotFound
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *fakeItemRepo) Delete(_ context.Context, ownerID, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	item, ok := r.items[id]
	if !ok || item.UserID != ownerID {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// misownedItemRepo returns rows regardless of owner, simulating a broken
// scoping query.
type misownedItemRepo struct {
	*fakeItemRepo
}

func (r misownedItemRepo) Get(_ context.Context, _ int, id int) (types.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return types.Item{}, store.ErrNotFound
	}
	return item, nil
}

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

type fakeObjectStore struct {
	bucket      string
	objects     map[string][]byte
	contentType string
	err         error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{bucket: "exports", objects: map[string][]byte{}}
}

func (s *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.objects[key] = data
	s.contentType = contentType
	return nil
}

func (s *fakeObjectStore) Bucket() string {
	return s.bucket
}

func ptr[T any](v T) *T {
	return &v
}
