package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/parcelpoint/parcelpoint-sync/pkg/errors"
)

func newTestCache(t *testing.T, maxEntries int) (*Cache[string], *time.Time) {
	t.Helper()
	c := New[string](Options{MaxEntries: maxEntries})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func fetchValue(value string, calls *atomic.Int64) FetchFunc[string] {
	return func(ctx context.Context) (string, []Tag, error) {
		if calls != nil {
			calls.Add(1)
		}
		return value, nil, nil
	}
}

func TestGet_FreshEntrySkipsFetch(t *testing.T) {
	c, now := newTestCache(t, 0)
	var calls atomic.Int64

	value, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("v1", &calls), GetOptions{})
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if value != "v1" {
		t.Fatalf("unexpected value %q", value)
	}

	*now = now.Add(59 * time.Second)
	if _, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("v2", &calls), GetOptions{}); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch while fresh, got %d", got)
	}
}

func TestGet_StaleEntryRefetches(t *testing.T) {
	c, now := newTestCache(t, 0)
	var calls atomic.Int64

	if _, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v1", &calls), GetOptions{}); err != nil {
		t.Fatalf("first get: %v", err)
	}

	*now = now.Add(time.Minute)
	value, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v2", &calls), GetOptions{})
	if err != nil {
		t.Fatalf("stale get: %v", err)
	}
	if value != "v2" {
		t.Fatalf("expected refetched value, got %q", value)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestGet_StaleServedWithUseCacheIfPresent(t *testing.T) {
	c, now := newTestCache(t, 0)
	var calls atomic.Int64

	if _, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v1", &calls), GetOptions{}); err != nil {
		t.Fatalf("first get: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	value, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v2", &calls), GetOptions{UseCacheIfPresent: true})
	if err != nil {
		t.Fatalf("stale get: %v", err)
	}
	if value != "v1" {
		t.Fatalf("expected stale value served, got %q", value)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no refetch, got %d fetches", got)
	}
}

func TestGet_ForceRefreshBypassesFreshEntry(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64

	if _, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v1", &calls), GetOptions{}); err != nil {
		t.Fatalf("first get: %v", err)
	}
	value, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("v2", &calls), GetOptions{ForceRefresh: true})
	if err != nil {
		t.Fatalf("forced get: %v", err)
	}
	if value != "v2" {
		t.Fatalf("expected refetched value, got %q", value)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestGet_ConcurrentCallersShareOneFetch(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, []Tag, error) {
		calls.Add(1)
		<-release
		return "shared", nil, nil
	}

	const waiters = 16
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k", nil, time.Minute, fetch, GetOptions{})
		}(i)
	}

	// Give every waiter a chance to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 fetch for %d concurrent callers, got %d", waiters, got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Fatalf("waiter %d got %q", i, results[i])
		}
	}
}

func TestGet_CancelledWaiterDoesNotCancelFetch(t *testing.T) {
	c, _ := newTestCache(t, 0)
	release := make(chan struct{})
	var sawCancel atomic.Bool

	fetch := func(ctx context.Context) (string, []Tag, error) {
		<-release
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return "survived", nil, nil
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := c.Get(cancelCtx, "k", nil, time.Minute, fetch, GetOptions{})
		abandoned <- err
	}()

	patient := make(chan string, 1)
	go func() {
		value, err := c.Get(context.Background(), "k", nil, time.Minute, fetch, GetOptions{})
		if err != nil {
			t.Errorf("patient waiter: %v", err)
		}
		patient <- value
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-abandoned; err == nil {
		t.Fatal("expected cancelled waiter to receive an error")
	}

	close(release)
	if value := <-patient; value != "survived" {
		t.Fatalf("patient waiter got %q", value)
	}
	if sawCancel.Load() {
		t.Fatal("fetch context was cancelled by an abandoning waiter")
	}
}

func TestGet_FailedFetchCachesNothing(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64

	failing := func(ctx context.Context) (string, []Tag, error) {
		calls.Add(1)
		return "", nil, pkgerrors.New(pkgerrors.KindNetwork, "boom")
	}

	_, err := c.Get(context.Background(), "k", nil, time.Minute, failing, GetOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if classified := pkgerrors.As(err); classified.Kind() != pkgerrors.KindNetwork {
		t.Fatalf("expected network kind, got %v", classified.Kind())
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after failure, got %d entries", c.Len())
	}

	if _, err := c.Get(context.Background(), "k", nil, time.Minute, fetchValue("ok", &calls), GetOptions{}); err != nil {
		t.Fatalf("get after failure: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected the second get to fetch, got %d calls", got)
	}
}

func TestInvalidate_ExpiresIntersectingTagsOnly(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var callsA, callsB atomic.Int64

	if _, err := c.Get(context.Background(), "a", []Tag{"package:42", "packages:list"}, time.Minute, fetchValue("a1", &callsA), GetOptions{}); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if _, err := c.Get(context.Background(), "b", []Tag{"package:7"}, time.Minute, fetchValue("b1", &callsB), GetOptions{}); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	c.Invalidate("package:42")

	if _, err := c.Get(context.Background(), "a", []Tag{"package:42", "packages:list"}, time.Minute, fetchValue("a2", &callsA), GetOptions{}); err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got := callsA.Load(); got != 2 {
		t.Fatalf("expected invalidated key to refetch, got %d calls", got)
	}

	if _, err := c.Get(context.Background(), "b", []Tag{"package:7"}, time.Minute, fetchValue("b2", &callsB), GetOptions{}); err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got := callsB.Load(); got != 1 {
		t.Fatalf("unrelated key should stay cached, got %d calls", got)
	}
}

func TestInvalidate_IsIdempotent(t *testing.T) {
	c, _ := newTestCache(t, 0)
	if _, err := c.Get(context.Background(), "a", []Tag{"t"}, time.Minute, fetchValue("v", nil), GetOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c.Invalidate("t")
	c.Invalidate("t")
	c.Invalidate("missing")
}

func TestInvalidate_DoesNotServeStaleViaUseCacheIfPresent(t *testing.T) {
	c, _ := newTestCache(t, 0)
	var calls atomic.Int64

	if _, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("v1", &calls), GetOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c.Invalidate("t")

	value, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("v2", &calls), GetOptions{UseCacheIfPresent: true})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "v2" {
		t.Fatalf("invalidated entry must not be served, got %q", value)
	}
}

func TestGet_LateFetchStillPopulatesAfterInvalidation(t *testing.T) {
	c, _ := newTestCache(t, 0)
	entered := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, []Tag, error) {
		close(entered)
		<-release
		return "late", nil, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetch, GetOptions{}); err != nil {
			t.Errorf("get: %v", err)
		}
	}()

	<-entered
	// Invalidation issued mid-flight: population still wins because it
	// completes later.
	c.Invalidate("t")
	close(release)
	<-done

	var calls atomic.Int64
	value, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("fresh", &calls), GetOptions{})
	if err != nil {
		t.Fatalf("follow-up get: %v", err)
	}
	if value != "late" || calls.Load() != 0 {
		t.Fatalf("expected late population to be served, got %q (%d fetches)", value, calls.Load())
	}
}

func TestPut_WritesDirectly(t *testing.T) {
	c, _ := newTestCache(t, 0)
	c.Put("k", "optimistic", []Tag{"t"}, time.Minute)

	var calls atomic.Int64
	value, err := c.Get(context.Background(), "k", []Tag{"t"}, time.Minute, fetchValue("remote", &calls), GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "optimistic" || calls.Load() != 0 {
		t.Fatalf("expected put value served without fetch, got %q (%d fetches)", value, calls.Load())
	}
}

func TestStore_EvictsBeyondMaxEntries(t *testing.T) {
	c, now := newTestCache(t, 2)

	if _, err := c.Get(context.Background(), "a", nil, time.Hour, fetchValue("a", nil), GetOptions{}); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	*now = now.Add(time.Second)
	if _, err := c.Get(context.Background(), "b", nil, time.Hour, fetchValue("b", nil), GetOptions{}); err != nil {
		t.Fatalf("seed b: %v", err)
	}
	*now = now.Add(time.Second)
	if _, err := c.Get(context.Background(), "c", nil, time.Hour, fetchValue("c", nil), GetOptions{}); err != nil {
		t.Fatalf("seed c: %v", err)
	}

	if got := c.Len(); got != 2 {
		t.Fatalf("expected eviction down to 2 entries, got %d", got)
	}

	// The oldest fetch ("a") is the victim.
	var calls atomic.Int64
	if _, err := c.Get(context.Background(), "a", nil, time.Hour, fetchValue("a2", &calls), GetOptions{}); err != nil {
		t.Fatalf("get a: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatal("expected evicted key to refetch")
	}
}
