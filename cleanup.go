package authsync

import (
	"context"
	"strings"
)

// CleanupCoordinator purges every storage mirror and cookie entry matching
// the configured key patterns, then resets the cached identity client handle,
// so the next resolution cycle starts from zero ambiguity. Purging is
// best-effort: individual failures are logged and the purge continues.
type CleanupCoordinator struct {
	client     IdentityClient
	persistent KeyValueStore
	tab        KeyValueStore
	cookies    CookieStore
	cfg        Config
	logger     Logger
}

// NewCleanupCoordinator wires the coordinator to every storage tier.
func NewCleanupCoordinator(client IdentityClient, persistent, tab KeyValueStore, cookies CookieStore, cfg Config, logger Logger) *CleanupCoordinator {
	if logger == nil {
		logger = defLogger{}
	}
	return &CleanupCoordinator{
		client:     client,
		persistent: persistent,
		tab:        tab,
		cookies:    cookies,
		cfg:        cfg,
		logger:     logger,
	}
}

// Purge removes matching entries across all tiers and resets the client
// handle. Always runs to completion.
func (c *CleanupCoordinator) Purge(ctx context.Context) {
	c.purgeStore(ctx, c.persistent, "persistent")
	c.purgeStore(ctx, c.tab, "tab")
	c.purgeCookies(ctx)

	if c.client != nil {
		c.client.Reset()
	}
}

func (c *CleanupCoordinator) purgeStore(ctx context.Context, store KeyValueStore, tier string) {
	if store == nil {
		return
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		c.logger.Warn("cleanup key scan failed on %s tier: %v", tier, err)
		return
	}

	for _, key := range keys {
		if !c.matchesKey(key) {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			c.logger.Warn("cleanup delete failed on %s tier for %s: %v", tier, key, err)
		}
	}
}

func (c *CleanupCoordinator) purgeCookies(ctx context.Context) {
	if c.cookies == nil {
		return
	}

	entries, err := c.cookies.List(ctx)
	if err != nil {
		c.logger.Warn("cleanup cookie scan failed: %v", err)
		return
	}

	domains := c.cfg.GetCookieDomains()
	for _, cookie := range entries {
		if !c.matchesCookie(cookie.Name) {
			continue
		}
		// Delete across every configured domain scope in addition to the
		// cookie's own, so parent-domain mirrors do not survive sign-out.
		scopes := append([]string{cookie.Domain}, domains...)
		for _, domain := range scopes {
			if err := c.cookies.Delete(ctx, cookie.Name, domain, cookie.Path); err != nil {
				c.logger.Warn("cleanup cookie delete failed for %s on %q: %v", cookie.Name, domain, err)
			}
		}
	}
}

func (c *CleanupCoordinator) matchesKey(key string) bool {
	if key == c.cfg.GetPendingSessionKey() {
		return true
	}
	if strings.HasPrefix(key, c.cfg.GetMirrorKeyPrefix()) {
		return true
	}
	return false
}

func (c *CleanupCoordinator) matchesCookie(name string) bool {
	for _, prefix := range c.cfg.GetCookiePrefixes() {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
