// Package catalog manages marketplace items.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// Validator checks drafts before they are stored.
type Validator interface {
	Struct(s interface{}) error
}

// Catalog creates, lists and deletes items.
type Catalog struct {
	items       store.ItemStore
	validate    Validator
	placeholder string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock replaces time.Now as the source of CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New creates a Catalog. placeholder is the image used when a draft has none.
func New(items store.ItemStore, validate Validator, placeholder string, opts ...Option) *Catalog {
	c := &Catalog{
		items:       items,
		validate:    validate,
		placeholder: placeholder,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a new item owned by ownerID.
func (c *Catalog) Create(ctx context.Context, ownerID string, draft models.ItemDraft) (*models.Item, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	if err := c.validate.Struct(draft); err != nil {
		return nil, err
	}

	item := &models.Item{
		ID:          uuid.New().String(),
		Title:       draft.Title,
		Description: draft.Description,
		Category:    draft.Category,
		ImageURL:    draft.ImageURL,
		OwnerID:     ownerID,
		CreatedAt:   c.now(),
	}
	if item.ImageURL == "" {
		item.ImageURL = c.placeholder
	}

	if err := c.items.InsertItem(ctx, item); err != nil {
		return nil, fmt.Errorf("insert item: %w: %w", apperr.ErrItemStoreUnavailable, err)
	}

	c.logger.InfoContext(ctx, "item created", "item", item.ID, "owner", ownerID, "category", item.Category)
	return item, nil
}

// Get returns an item by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Item, error) {
	item, err := c.items.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w: %w", id, apperr.ErrItemStoreUnavailable, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", id, apperr.ErrNotFound)
	}
	return item, nil
}

// Delete removes an item. Only its owner or an admin may delete it.
// Claim requests referencing the item are left untouched.
func (c *Catalog) Delete(ctx context.Context, itemID, requesterID string, isAdmin bool) error {
	if requesterID == "" {
		return apperr.ErrUnauthenticated
	}

	item, err := c.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if !isAdmin && item.OwnerID != requesterID {
		return fmt.Errorf("delete item %s: %w", itemID, apperr.ErrPermissionDenied)
	}

	if err := c.items.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete item %s: %w: %w", itemID, apperr.ErrItemStoreUnavailable, err)
	}

	c.logger.InfoContext(ctx, "item deleted",
		"item", itemID,
		"by", requesterID,
		"as_admin", isAdmin && item.OwnerID != requesterID,
	)
	return nil
}

// ListAll returns every item, newest first.
func (c *Catalog) ListAll(ctx context.Context) ([]models.Item, error) {
	return c.list(ctx, func(models.Item) bool { return true })
}

// ListByCategory returns the items of one category, newest first.
func (c *Catalog) ListByCategory(ctx context.Context, category models.Category) ([]models.Item, error) {
	return c.list(ctx, func(it models.Item) bool { return it.Category == category })
}

// ListByOwner returns the items posted by ownerID, newest first.
func (c *Catalog) ListByOwner(ctx context.Context, ownerID string) ([]models.Item, error) {
	return c.list(ctx, func(it models.Item) bool { return it.OwnerID == ownerID })
}

func (c *Catalog) list(ctx context.Context, keep func(models.Item) bool) ([]models.Item, error) {
	all, err := c.items.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w: %w", apperr.ErrItemStoreUnavailable, err)
	}

	out := make([]models.Item, 0, len(all))
	for _, it := range all {
		if keep(it) {
			out = append(out, it)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders items by CreatedAt descending. Items with equal
// timestamps keep their relative (insertion) order.
func SortNewestFirst(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
