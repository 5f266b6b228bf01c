package repository

import (
	"context"

	"yield/internal/domain"
)

// TrackedItemsRepository stores tracked items and their append-only entries.
type TrackedItemsRepository interface {
	GetItem(ctx context.Context, id string) (*domain.TrackedItem, error)
	ListItems(ctx context.Context, locationID string) ([]*domain.TrackedItem, error)
	CreateItem(ctx context.Context, item *domain.TrackedItem) (string, error)
	// UpdateItem refuses (ErrConflict) to change baseline fields of a locked item.
	UpdateItem(ctx context.Context, item *domain.TrackedItem) error
	DeleteItem(ctx context.Context, id string) error
	// LockBaseline returns ErrConflict when the item is already locked.
	LockBaseline(ctx context.Context, id string, input, output float64, actorID string) error

	AddEntry(ctx context.Context, e *domain.Entry) (string, error)
	// ListEntries returns the newest perItem entries of each item.
	ListEntries(ctx context.Context, itemIDs []string, perItem int) ([]*domain.Entry, error)
	// ListReadings returns every reading of each item, keyed by item id.
	ListReadings(ctx context.Context, itemIDs []string) (map[string][]domain.Reading, error)
}

// MaxEntryListLimit caps entries listed per item.
const MaxEntryListLimit = 1000
