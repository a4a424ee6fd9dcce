// Package cache puts Redis in front of the profile store. Profiles are read
// on every authenticated request, so hits skip the database entirely.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

const defaultPrefix = "connect:profile:"

// Profiles is a read-through cache implementing store.ProfileStore. Writes
// go to the backing store first and then refresh or drop the cached copy.
// A nil Redis client disables caching.
type Profiles struct {
	next   store.ProfileStore
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewProfiles wraps next with a cache whose entries live for ttl.
func NewProfiles(next store.ProfileStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Profiles {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiles{
		next:   next,
		redis:  client,
		prefix: defaultPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Profiles) getCacheKey(id string) string {
	return fmt.Sprintf("%s%s", c.prefix, id)
}

// GetProfile serves from Redis when possible. Cache failures fall back to
// the backing store.
func (c *Profiles) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if p, err := c.fromCache(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "profile cache read failed", "user", id, "error", err)
	} else if p != nil {
		return p, nil
	}

	p, err := c.next.GetProfile(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	c.store(ctx, p)
	return p, nil
}

// PutProfile writes through and refreshes the cached copy.
func (c *Profiles) PutProfile(ctx context.Context, p *models.UserProfile) error {
	if err := c.next.PutProfile(ctx, p); err != nil {
		c.invalidate(ctx, p.ID)
		return err
	}
	c.store(ctx, p)
	return nil
}

// CreateProfile creates in the backing store. When a profile already
// exists the cached copy is dropped so the next read sees the stored one.
func (c *Profiles) CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	created, err := c.next.CreateProfile(ctx, p)
	if err != nil || !created {
		c.invalidate(ctx, p.ID)
		return created, err
	}
	c.store(ctx, p)
	return true, nil
}

// DeleteProfile deletes from the backing store and drops the cached copy.
func (c *Profiles) DeleteProfile(ctx context.Context, id string) error {
	err := c.next.DeleteProfile(ctx, id)
	c.invalidate(ctx, id)
	return err
}

// ListProfiles is not cached.
func (c *Profiles) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	return c.next.ListProfiles(ctx)
}

func (c *Profiles) fromCache(ctx context.Context, id string) (*models.UserProfile, error) {
	if c.redis == nil {
		return nil, nil
	}
	data, err := c.redis.Get(ctx, c.getCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	var p models.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached profile: %w", err)
	}
	return &p, nil
}

func (c *Profiles) store(ctx context.Context, p *models.UserProfile) {
	if c.redis == nil {
		return
	}
	// IsAdmin is recomputed on every resolution and never cached.
	cp := *p
	cp.IsAdmin = false
	data, err := json.Marshal(cp)
	if err != nil {
		c.logger.WarnContext(ctx, "marshal profile for cache failed", "user", p.ID, "error", err)
		return
	}
	if err := c.redis.Set(ctx, c.getCacheKey(p.ID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "profile cache write failed", "user", p.ID, "error", err)
	}
}

func (c *Profiles) invalidate(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.getCacheKey(id)).Err(); err != nil {
		c.logger.WarnContext(ctx, "profile cache invalidation failed", "user", id, "error", err)
	}
}
