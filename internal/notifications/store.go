// Package notifications mirrors the user's in-app notification feed and its
// unread counter, synchronized through the same cache and retry machinery as
// the package collection.
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/parcelpoint/parcelpoint-sync/pkg/cache"
	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
	"github.com/parcelpoint/parcelpoint-sync/pkg/logger"
	"github.com/parcelpoint/parcelpoint-sync/pkg/models"
	"github.com/parcelpoint/parcelpoint-sync/pkg/remote"
)

const (
	table      = "notifications"
	defaultTTL = 5 * time.Minute
)

// TagList marks the cached notification collection.
const TagList = cache.Tag("notifications:list")

// ItemTag returns the per-notification cache tag.
func ItemTag(id uuid.UUID) cache.Tag {
	return cache.Tag("notification:" + id.String())
}

// StoreParams configure the notification store.
type StoreParams struct {
	Remote          remote.Store
	Logger          *logger.Logger
	TTL             time.Duration
	CacheMaxEntries int
	Retry           pkgerrors.RetryOptions
}

// Store holds the canonical notification collection for one session.
type Store struct {
	remote remote.Store
	cache  *cache.Cache[[]models.Notification]
	logg   *logger.Logger
	ttl    time.Duration
	retry  pkgerrors.RetryOptions

	mu     sync.RWMutex
	items  []models.Notification
	unread int
}

// NewStore wires the notification store dependencies.
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
		cache:  cache.New[[]models.Notification](cache.Options{MaxEntries: params.CacheMaxEntries}),
		logg:   params.Logger,
		ttl:    ttl,
		retry:  params.Retry,
	}, nil
}

func listKey(userID uuid.UUID) string {
	return "user:" + userID.String() + ":notifications"
}

// FetchAll returns the user's notifications, from cache when fresh, and
// recomputes the unread counter from the result.
func (s *Store) FetchAll(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.KindValidation, "user id required")
	}

	items, err := s.cache.Get(ctx, listKey(userID), []cache.Tag{TagList}, s.ttl,
		func(ctx context.Context) ([]models.Notification, []cache.Tag, error) {
			fetched, ferr := pkgerrors.Retry(ctx, s.retry, func(ctx context.Context) ([]models.Notification, error) {
				var rows []models.Notification
				if err := s.remote.Query(ctx, table, remote.Filter{"user_id": remote.Eq(userID.String())}, &rows); err != nil {
					return nil, err
				}
				return rows, nil
			})
			if ferr != nil {
				return nil, nil, ferr
			}
			tags := make([]cache.Tag, 0, len(fetched))
			for _, n := range fetched {
				tags = append(tags, ItemTag(n.ID))
			}
			return fetched, tags, nil
		},
		cache.GetOptions{ForceRefresh: forceRefresh},
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items = make([]models.Notification, len(items))
	copy(s.items, items)
	s.unread = countUnread(s.items)
	s.mu.Unlock()
	return items, nil
}

// MarkRead flags one notification as read. Repeated calls are no-ops: the
// unread counter is only decremented when the item was previously unread.
func (s *Store) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.KindValidation, "notification id required")
	}

	current, ok := s.find(notificationID)
	if !ok {
		return pkgerrors.New(pkgerrors.KindNotFound, fmt.Sprintf("notification %s not in the loaded collection", notificationID))
	}
	if current.IsRead {
		return nil
	}

	err := s.markRemote(ctx, notificationID)
	if err != nil {
		// A failed equality guard means another session already read it;
		// converge the local state instead of surfacing an error.
		if classified := pkgerrors.As(err); classified.Kind() != pkgerrors.KindNotFound {
			return err
		}
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == notificationID {
			s.items[i].IsRead = true
			break
		}
	}
	s.unread = countUnread(s.items)
	s.mu.Unlock()
	s.cache.Invalidate(ItemTag(notificationID), TagList)
	return nil
}

func (s *Store) markRemote(ctx context.Context, notificationID uuid.UUID) error {
	cond := &remote.Condition{Field: "is_read", Equals: "false"}
	_, err := pkgerrors.Retry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.remote.Update(ctx, table, notificationID, map[string]any{"is_read": true}, cond, nil)
	})
	return err
}

// MarkAllRead flags every unread notification as read. Per-item condition
// failures (already read elsewhere) are tolerated; other failures are
// combined and returned after the loop finishes.
func (s *Store) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.KindValidation, "user id required")
	}

	s.mu.RLock()
	pending := make([]uuid.UUID, 0, s.unread)
	for _, n := range s.items {
		if !n.IsRead {
			pending = append(pending, n.ID)
		}
	}
	s.mu.RUnlock()

	var errs []error
	for _, id := range pending {
		if err := s.markRemote(ctx, id); err != nil {
			if classified := pkgerrors.As(err); classified.Kind() == pkgerrors.KindNotFound {
				continue
			}
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].IsRead = true
				break
			}
		}
		s.unread = countUnread(s.items)
		s.mu.Unlock()
	}
	s.cache.Invalidate(TagList)
	return multierr.Combine(errs...)
}

// Append prepends a server-pushed notification. Arrival events are assumed
// new, so the unread counter always grows by one.
func (s *Store) Append(notification models.Notification) {
	notification.IsRead = false
	s.mu.Lock()
	s.items = append([]models.Notification{notification}, s.items...)
	s.unread++
	s.mu.Unlock()
	s.cache.Invalidate(TagList)
}

// UnreadCount reports the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Items returns a copy of the loaded collection, newest first.
func (s *Store) Items() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) find(notificationID uuid.UUID) (models.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.items {
		if n.ID == notificationID {
			return n, true
		}
	}
	return models.Notification{}, false
}

func countUnread(items []models.Notification) int {
	count := 0
	for _, n := range items {
		if !n.IsRead {
			count++
		}
	}
	return count
}
