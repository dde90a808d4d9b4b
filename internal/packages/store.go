// Package packages holds the canonical, user-scoped package collection and
// its cache-backed synchronization with the remote store.
package packages

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parcelpoint/parcelpoint-sync/pkg/cache"
	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/models"
	"github.com/parcelpoint/parcelpoint-sync/pkg/remote"
)

const (
	table      = "packages"
	defaultTTL = 5 * time.Minute
)

// TagList marks the cached package collection.
const TagList = cache.Tag("packages:list")

// ItemTag returns the per-package cache tag.
func ItemTag(id uuid.UUID) cache.Tag {
	return cache.Tag("package:" + id.String())
}

// StoreParams configure the package store.
type StoreParams struct {
	Remote          remote.Store
	Logger          *logger.Logger
	TTL             time.Duration
	CacheMaxEntries int
	Retry           pkgerrors.RetryOptions
}

// Store mirrors the server-owned package collection for one session. Reads
// are served through the entity cache; writes go to the remote store first
// and are applied locally only after confirmation, as one atomic replace.
type Store struct {
	remote remote.Store
	cache  *cache.Cache[[]models.Package]
	logg   *logger.Logger
	ttl    time.Duration
	retry  pkgerrors.RetryOptions
	now    func() time.Time

	mu       sync.RWMutex
	items    []models.Package
	filter   Filter
	filtered []models.Package
	stats    Stats
}

// NewStore wires the package store dependencies.
func NewStore(params StoreParams) (*Store, error) {
	if params.Remote == nil {
		return nil, fmt.Errorf("remote store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		remote: params.Remote,
		cache:  cache.New[[]models.Package](cache.Options{MaxEntries: params.CacheMaxEntries}),
		logg:   params.Logger,
		ttl:    ttl,
		retry:  params.Retry,
		now:    time.Now,
		stats:  computeStats(nil),
	}, nil
}

func listKey(userID uuid.UUID) string {
	return "user:" + userID.String() + ":packages"
}

// FetchAll returns the user's full package collection, from cache when fresh.
// Derived filtered view and statistics are recomputed on every successful
// resolve.
func (s *Store) FetchAll(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]models.Package, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.KindValidation, "user id required")
	}

	items, err := s.cache.Get(ctx, listKey(userID), []cache.Tag{TagList}, s.ttl,
		func(ctx context.Context) ([]models.Package, []cache.Tag, error) {
			fetched, ferr := s.fetchRemote(ctx, userID)
			if ferr != nil {
				return nil, nil, ferr
			}
			tags := make([]cache.Tag, 0, len(fetched))
			for _, p := range fetched {
				tags = append(tags, ItemTag(p.ID))
			}
			return fetched, tags, nil
		},
		cache.GetOptions{ForceRefresh: forceRefresh},
	)
	if err != nil {
		return nil, err
	}

	s.applyCollection(items)
	return items, nil
}

func (s *Store) fetchRemote(ctx context.Context, userID uuid.UUID) ([]models.Package, error) {
	return pkgerrors.Retry(ctx, s.retry, func(ctx context.Context) ([]models.Package, error) {
		var fetched []models.Package
		if err := s.remote.Query(ctx, table, remote.Filter{"user_id": remote.Eq(userID.String())}, &fetched); err != nil {
			return nil, err
		}
		return fetched, nil
	})
}

// UpdateStatus issues a conditional status update guarded by the last status
// this session observed. The server-side condition is the sole defense
// against concurrent transitions; no optimistic local mutation is applied
// before confirmation.
func (s *Store) UpdateStatus(ctx context.Context, packageID uuid.UUID, newStatus enums.PackageStatus, notes *string) (*models.Package, error) {
	if !newStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.KindValidation, fmt.Sprintf("invalid package status %q", newStatus))
	}

	current, ok := s.find(packageID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.KindNotFound, fmt.Sprintf("package %s not in the loaded collection", packageID))
	}

	now := s.now().UTC()
	patch := map[string]any{
		"status":     string(newStatus),
		"updated_at": now,
	}
	if newStatus == enums.PackageStatusProcessing && current.ProcessedAt == nil {
		patch["processed_at"] = now
	}
	if newStatus == enums.PackageStatusShipped && current.ShippedAt == nil {
		patch["shipped_at"] = now
	}
	if notes != nil {
		patch["notes"] = *notes
	}
	cond := &remote.Condition{Field: "status", Equals: string(current.Status)}

	updated, err := pkgerrors.Retry(ctx, s.retry, func(ctx context.Context) (models.Package, error) {
		var record models.Package
		if err := s.remote.Update(ctx, table, packageID, patch, cond, &record); err != nil {
			return models.Package{}, err
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	s.replaceItem(updated)
	s.cache.Invalidate(ItemTag(packageID), TagList)
	return &updated, nil
}

// Delete removes the package locally only after the server confirmed.
func (s *Store) Delete(ctx context.Context, packageID uuid.UUID) error {
	if packageID == uuid.Nil {
		return pkgerrors.New(pkgerrors.KindValidation, "package id required")
	}

	_, err := pkgerrors.Retry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.remote.Delete(ctx, table, packageID)
	})
	if err != nil {
		return err
	}

	s.removeItem(packageID)
	s.cache.Invalidate(ItemTag(packageID), TagList)
	return nil
}

// SetFilter replaces the active filter and recomputes the derived view from
// the already-fetched collection. No network call is ever made here.
func (s *Store) SetFilter(filter Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
	s.filtered = filter.apply(s.items)
}

// SelectFiltered returns the filtered view, order-preserving from the
// canonical collection.
func (s *Store) SelectFiltered() []models.Package {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Package, len(s.filtered))
	copy(out, s.filtered)
	return out
}

// SelectStats returns the per-status counts derived from the collection.
func (s *Store) SelectStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.clone()
}

func (s *Store) find(packageID uuid.UUID) (models.Package, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.items {
		if p.ID == packageID {
			return p, true
		}
	}
	return models.Package{}, false
}

func (s *Store) applyCollection(items []models.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]models.Package, len(items))
	copy(s.items, items)
	s.recomputeLocked()
}

func (s *Store) replaceItem(updated models.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.items {
		if p.ID == updated.ID {
			s.items[i] = updated
			break
		}
	}
	s.recomputeLocked()
}

func (s *Store) removeItem(packageID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.items {
		if p.ID == packageID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.recomputeLocked()
}

func (s *Store) recomputeLocked() {
	s.filtered = s.filter.apply(s.items)
	s.stats = computeStats(s.items)
}
