// Package names resolves participant uids to display names for group
// rendering, with a per-id fallback when a profile is missing or the lookup
// fails.
package names

import (
	"context"
	"sync"

	"github.com/matheus3301/sendme/internal/remote"
	"github.com/matheus3301/sendme/internal/store"
	"go.uber.org/zap"
)

// Fallback is the display name used when a profile cannot be resolved.
const Fallback = "Usuario"

// Cache memoizes uid → display name lookups against the profile store.
type Cache struct {
	profiles remote.ProfileStore
	logger   *zap.Logger

	mu     sync.Mutex
	byUID  map[string]string
	mirror *store.DB
}

// NewCache creates an empty cache over the given profile store.
func NewCache(profiles remote.ProfileStore, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		profiles: profiles,
		logger:   logger,
		byUID:    make(map[string]string),
	}
}

// MirrorTo copies every successfully resolved profile into the local contact
// table so offline queries can name senders. Call before the first Resolve.
func (c *Cache) MirrorTo(db *store.DB) {
	c.mu.Lock()
	c.mirror = db
	c.mu.Unlock()
}

// Resolve returns a complete uid → display name map for the given uids. One
// lookup per unique uncached id is fanned out concurrently, and the map is
// returned only after every outstanding lookup has settled, success or
// fallback, so callers never see a partial map that would flicker once the
// real names arrive.
func (c *Cache) Resolve(ctx context.Context, uids []string) map[string]string {
	out := make(map[string]string, len(uids))
	var missing []string

	c.mu.Lock()
	for _, uid := range uids {
		if _, dup := out[uid]; dup {
			continue
		}
		if name, ok := c.byUID[uid]; ok {
			out[uid] = name
		} else {
			out[uid] = "" // placeholder, settled below
			missing = append(missing, uid)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled = make(map[string]string, len(missing))
	)
	for _, uid := range missing {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			name := c.lookup(ctx, uid)
			mu.Lock()
			settled[uid] = name
			mu.Unlock()
		}(uid)
	}
	wg.Wait()

	c.mu.Lock()
	for uid, name := range settled {
		c.byUID[uid] = name
		out[uid] = name
	}
	c.mu.Unlock()

	return out
}

// DisplayName resolves a single uid.
func (c *Cache) DisplayName(ctx context.Context, uid string) string {
	return c.Resolve(ctx, []string{uid})[uid]
}

// Invalidate drops the cached name for uid, forcing a fresh lookup. Called
// when a profile change event arrives.
func (c *Cache) Invalidate(uid string) {
	c.mu.Lock()
	delete(c.byUID, uid)
	c.mu.Unlock()
}

func (c *Cache) lookup(ctx context.Context, uid string) string {
	p, err := c.profiles.Get(ctx, uid)
	if err != nil {
		c.logger.Warn("profile lookup failed", zap.String("uid", uid), zap.Error(err))
		return Fallback
	}
	if p == nil || p.Username == "" {
		return Fallback
	}

	c.mu.Lock()
	db := c.mirror
	c.mu.Unlock()
	if db != nil {
		err := db.UpsertContact(&store.Contact{
			UID:      p.UID,
			Username: p.Username,
			Phone:    p.Phone,
			ImageURL: p.ImageURL,
		})
		if err != nil {
			c.logger.Warn("contact mirror failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	return p.Username
}
