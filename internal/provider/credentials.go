package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"syncengine/internal/database"

	gocache "github.com/patrickmn/go-cache"
)

// Source resolves a workspace's raw credential map for a provider.
// Implementations return ErrNotConnected when no active integration exists.
type Source interface {
	Lookup(ctx context.Context, workspaceID int64, provider string) (map[string]string, error)
}

// DBSource reads credentials from the integrations table.
type DBSource struct {
	db *database.DB
}

func NewDBSource(db *database.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) Lookup(ctx context.Context, workspaceID int64, provider string) (map[string]string, error) {
	in, err := s.db.GetIntegration(ctx, workspaceID, provider)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	return in.Credentials, nil
}

// CachedSource memoizes successful lookups for a short TTL so the worker
// does not hit the integrations table once per job.
type CachedSource struct {
	inner Source
	cache *gocache.Cache
}

func NewCachedSource(inner Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *CachedSource) Lookup(ctx context.Context, workspaceID int64, provider string) (map[string]string, error) {
	key := fmt.Sprintf("%d:%s", workspaceID, provider)
	if v, found := s.cache.Get(key); found {
		return v.(map[string]string), nil
	}

	creds, err := s.inner.Lookup(ctx, workspaceID, provider)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, creds, gocache.DefaultExpiration)
	return creds, nil
}

// Invalidate drops a cached entry, for when an integration is re-connected.
func (s *CachedSource) Invalidate(workspaceID int64, provider string) {
	s.cache.Delete(fmt.Sprintf("%d:%s", workspaceID, provider))
}

// Typed per-provider credentials, validated once at adapter construction so
// missing required fields fail fast instead of per-call.

type CalComCredentials struct {
	APIKey      string
	EventTypeID int
}

func calcomCredentials(raw map[string]string) (CalComCredentials, error) {
	c := CalComCredentials{APIKey: raw["api_key"]}
	if c.APIKey == "" {
		return c, fmt.Errorf("%w: calcom requires api_key", ErrNotConfigured)
	}
	id, err := strconv.Atoi(raw["event_type_id"])
	if err != nil || id <= 0 {
		return c, fmt.Errorf("%w: calcom requires a numeric event_type_id", ErrNotConfigured)
	}
	c.EventTypeID = id
	return c, nil
}

type CalendlyCredentials struct {
	Token string
}

func calendlyCredentials(raw map[string]string) (CalendlyCredentials, error) {
	c := CalendlyCredentials{Token: raw["token"]}
	if c.Token == "" {
		return c, fmt.Errorf("%w: calendly requires token", ErrNotConfigured)
	}
	return c, nil
}

type GHLCredentials struct {
	APIKey     string
	LocationID string
	// CalendarID is the pre-configured default booking calendar. It is
	// optional at construction: cancel and messaging work without it,
	// booking operations return ErrNotConfigured when it is absent.
	CalendarID string
}

func ghlCredentials(raw map[string]string) (GHLCredentials, error) {
	c := GHLCredentials{
		APIKey:     raw["api_key"],
		LocationID: raw["location_id"],
		CalendarID: raw["calendar_id"],
	}
	if c.APIKey == "" {
		return c, fmt.Errorf("%w: ghl requires api_key", ErrNotConfigured)
	}
	if c.LocationID == "" {
		return c, fmt.Errorf("%w: ghl requires location_id", ErrNotConfigured)
	}
	return c, nil
}
