package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/series-dashboard/internal/series"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// countingFetch returns a fetch function producing a fresh dataset per call.
func countingFetch(id series.Identity, calls *atomic.Int32) series.FetchFunc {
	return func(ctx context.Context) (*series.Dataset, error) {
		n := calls.Add(1)
		return series.NewDataset(id, "http://example/"+string(id), time.Now(), string(rune('a'+n)), nil), nil
	}
}

func TestLoad_HitWithinTTL(t *testing.T) {
	c := NewMemoryCache(10*time.Minute, 0)
	var calls atomic.Int32
	fetch := countingFetch(series.IdentityReadings, &calls)

	first, err := c.Load(context.Background(), series.IdentityReadings, fetch)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := c.Load(context.Background(), series.IdentityReadings, fetch)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if first != second {
		t.Fatal("expected the identical dataset object within TTL")
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch calls: got %d, want 1", calls.Load())
	}
}

func TestLoad_RefetchAfterTTL(t *testing.T) {
	base := time.Now()
	c := NewMemoryCache(600*time.Second, 0)
	var calls atomic.Int32
	fetch := countingFetch(series.IdentityReadings, &calls)

	c.now = fixedClock(base)
	if _, err := c.Load(context.Background(), series.IdentityReadings, fetch); err != nil {
		t.Fatal(err)
	}

	c.now = fixedClock(base.Add(599 * time.Second))
	if _, ok := c.Peek(series.IdentityReadings); !ok {
		t.Fatal("entry should still be live just before the TTL")
	}

	c.now = fixedClock(base.Add(600 * time.Second))
	if _, err := c.Load(context.Background(), series.IdentityReadings, fetch); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("fetch calls: got %d, want 2", calls.Load())
	}
}

func TestInvalidate_IsolatedPerIdentity(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	var plain, batch atomic.Int32

	c.Load(context.Background(), series.IdentityReadings, countingFetch(series.IdentityReadings, &plain))
	c.Load(context.Background(), series.IdentityBatches, countingFetch(series.IdentityBatches, &batch))

	c.Invalidate(series.IdentityReadings)

	if _, ok := c.Peek(series.IdentityReadings); ok {
		t.Error("readings should be invalidated")
	}
	if _, ok := c.Peek(series.IdentityBatches); !ok {
		t.Error("batches should stay cached")
	}

	c.Load(context.Background(), series.IdentityReadings, countingFetch(series.IdentityReadings, &plain))
	if plain.Load() != 2 || batch.Load() != 1 {
		t.Fatalf("fetch calls: readings=%d batches=%d, want 2 and 1", plain.Load(), batch.Load())
	}
}

func TestInvalidateAll(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	var calls atomic.Int32
	c.Load(context.Background(), series.IdentityReadings, countingFetch(series.IdentityReadings, &calls))
	c.Load(context.Background(), series.IdentityBatches, countingFetch(series.IdentityBatches, &calls))

	c.InvalidateAll()

	if _, ok := c.Peek(series.IdentityReadings); ok {
		t.Error("readings should be gone")
	}
	if _, ok := c.Peek(series.IdentityBatches); ok {
		t.Error("batches should be gone")
	}
}

func TestLoad_FailureIsNotCached(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	boom := errors.New("boom")
	var calls atomic.Int32

	_, err := c.Load(context.Background(), series.IdentityReadings, func(ctx context.Context) (*series.Dataset, error) {
		calls.Add(1)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if _, ok := c.Peek(series.IdentityReadings); ok {
		t.Fatal("a failed fetch must not create an entry")
	}

	if _, err := c.Load(context.Background(), series.IdentityReadings, countingFetch(series.IdentityReadings, &calls)); err != nil {
		t.Fatalf("retry Load: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("fetch calls: got %d, want 2", calls.Load())
	}
}

func TestLoad_CoalescesConcurrentCallers(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (*series.Dataset, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return series.NewDataset(series.IdentityReadings, "u", time.Now(), "fp", nil), nil
	}

	const callers = 8
	results := make([]*series.Dataset, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.Load(context.Background(), series.IdentityReadings, fetch)
			if err != nil {
				t.Errorf("Load: %v", err)
				return
			}
			results[i] = ds
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("fetch calls: got %d, want 1", calls.Load())
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different dataset", i)
		}
	}
}

func TestLoad_SupersededFetchDoesNotStore(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan *series.Dataset)
	go func() {
		ds, _ := c.Load(context.Background(), series.IdentityReadings, func(ctx context.Context) (*series.Dataset, error) {
			close(started)
			<-release
			return series.NewDataset(series.IdentityReadings, "u", time.Now(), "old", nil), nil
		})
		done <- ds
	}()

	<-started
	c.Invalidate(series.IdentityReadings)
	close(release)

	if ds := <-done; ds == nil || ds.Fingerprint != "old" {
		t.Fatal("the superseded caller should still receive its dataset")
	}
	if _, ok := c.Peek(series.IdentityReadings); ok {
		t.Fatal("a fetch superseded by Invalidate must not populate the cache")
	}
}

func TestLoad_FetchTimeout(t *testing.T) {
	c := NewMemoryCache(time.Hour, 20*time.Millisecond)

	_, err := c.Load(context.Background(), series.IdentityReadings, func(ctx context.Context) (*series.Dataset, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestInvalidateIfStale(t *testing.T) {
	c := NewMemoryCache(time.Hour, 0)
	fetch := func(ctx context.Context) (*series.Dataset, error) {
		return series.NewDataset(series.IdentityReadings, "u", time.Now(), "v1", nil), nil
	}
	if _, err := c.Load(context.Background(), series.IdentityReadings, fetch); err != nil {
		t.Fatal(err)
	}

	if c.InvalidateIfStale(series.IdentityReadings, "v1") {
		t.Fatal("matching fingerprint must not invalidate")
	}
	if !c.InvalidateIfStale(series.IdentityReadings, "v2") {
		t.Fatal("differing fingerprint must invalidate")
	}
	if c.InvalidateIfStale(series.IdentityReadings, "v2") {
		t.Fatal("a second caller with the same fingerprint must not invalidate again")
	}
	if c.InvalidateIfStale(series.IdentityBatches, "v2") {
		t.Fatal("an absent entry has nothing to invalidate")
	}
}
