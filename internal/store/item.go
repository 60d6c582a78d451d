package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itemsrv/apiserver/types"
)

const itemColumns = `id, name, description, price, user_id, created_at, updated_at`

// ItemRepository handles persistence for items. Every read and write is
// scoped to an owner: a row belonging to someone else behaves exactly like
// a missing row.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item types.Item) (types.Item, error) {
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `
		INSERT INTO items (name, description, price, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		item.Name,
		item.Description,
		item.Price,
		item.UserID,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID); err != nil {
		return types.Item{}, translateError(err)
	}
	return item, nil
}

// Get returns the item with the given id if it belongs to ownerID.
func (r *ItemRepository) Get(ctx context.Context, ownerID, id int) (types.Item, error) {
	const query = `SELECT ` + itemColumns + ` FROM items WHERE id = $1 AND user_id = $2`
	var item types.Item
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Price,
		&item.UserID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Item{}, ErrNotFound
		}
		return types.Item{}, err
	}
	return item, nil
}

// List returns the owner's items matching filter, ordered by id. Query
// matching lowercases both sides; on SQLite this needs the Unicode lower()
// registered by package db.
func (r *ItemRepository) List(ctx context.Context, filter types.ItemFilter) ([]types.Item, error) {
	where := []string{"user_id = $1"}
	args := []any{filter.OwnerID}

	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		where = append(where, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		where = append(where, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Query))+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(LOWER(name) LIKE $%d ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE $%d ESCAPE '\')`,
			n, n,
		))
	}

	args = append(args, filter.Limit, filter.Skip)
	query := fmt.Sprintf(
		`SELECT %s FROM items WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		itemColumns, strings.Join(where, " AND "), len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Item, 0, filter.Limit)
	for rows.Next() {
		var item types.Item
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.Price,
			&item.UserID,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Update persists the mutable fields of item. The row must belong to
// item.UserID.
func (r *ItemRepository) Update(ctx context.Context, item types.Item) (types.Item, error) {
	item.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE items
		SET name = $1,
			description = $2,
			price = $3,
			updated_at = $4
		WHERE id = $5 AND user_id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		item.Name,
		item.Description,
		item.Price,
		item.UpdatedAt,
		item.ID,
		item.UserID,
	)
	if err != nil {
		return types.Item{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Item{}, err
	}
	if affected == 0 {
		return types.Item{}, ErrNotFound
	}
	return item, nil
}

func (r *ItemRepository) Delete(ctx context.Context, ownerID, id int) error {
	const query = `DELETE FROM items WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
