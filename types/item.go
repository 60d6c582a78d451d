package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Item is a priced record owned by exactly one user.
// Items are only ever visible to, and mutable by, their owner.
type Item struct {
	// ID is the unique identifier of the item.
	ID int `json:"id" db:"id"`

	// Name is the human-readable name of the item.
	Name string `json:"name" db:"name"`

	// Description is an optional free-form description.
	Description *string `json:"description" db:"description"`

	// Price is the non-negative price of the item.
	Price float64 `json:"price" db:"price"`

	// UserID identifies the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// CreatedAt is the timestamp at which the item was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent modification.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ItemCreate holds the fields accepted when creating an item.
// Price is a pointer so that a missing price can be told apart from zero.
type ItemCreate struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
}

// ItemUpdate is a partial update. Nil fields are left untouched, except
// that a description sent as an explicit JSON null clears it.
type ItemUpdate struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`

	// DescriptionSet reports whether description was present in the
	// request, including as null.
	DescriptionSet bool `json:"-"`
}

// UnmarshalJSON decodes the update and records which keys were present.
func (u *ItemUpdate) UnmarshalJSON(data []byte) error {
	type plain ItemUpdate
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	*u = ItemUpdate(decoded)
	for key := range keys {
		if strings.EqualFold(key, "description") {
			u.DescriptionSet = true
		}
	}
	return nil
}

// Apply merges the supplied fields of u into item and returns the result.
func (u ItemUpdate) Apply(item Item) Item {
	if u.Name != nil {
		item.Name = *u.Name
	}
	switch {
	case u.Description != nil:
		description := *u.Description
		item.Description = &description
	case u.DescriptionSet:
		item.Description = nil
	}
	if u.Price != nil {
		item.Price = *u.Price
	}
	return item
}

// IsEmpty reports whether the update carries no fields.
func (u ItemUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Price == nil && !u.DescriptionSet
}

// ItemFilter narrows a listing of one owner's items.
type ItemFilter struct {
	// OwnerID restricts results to items owned by this user. Always set.
	OwnerID int

	// Skip is the number of matching items to skip.
	Skip int

	// Limit is the maximum number of items to return.
	Limit int

	// MinPrice, when set, keeps items with price >= *MinPrice.
	MinPrice *float64

	// MaxPrice, when set, keeps items with price <= *MaxPrice.
	MaxPrice *float64

	// Query, when non-empty, keeps items whose name or description
	// contains it, ignoring case.
	Query string
}

// ItemEventType names a change to an item.
type ItemEventType string

const (
	ItemCreated ItemEventType = "item.created"
	ItemUpdated ItemEventType = "item.updated"
	ItemDeleted ItemEventType = "item.deleted"
)

// ItemEvent is the notification published after an item changes.
type ItemEvent struct {
	Type       ItemEventType `json:"type"`
	ItemID     int           `json:"item_id"`
	UserID     int           `json:"user_id"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ItemExport describes an export of a user's items written to object storage.
type ItemExport struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}
