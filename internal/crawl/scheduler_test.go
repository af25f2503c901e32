package crawl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/request"
)

type fakeCharts struct {
	mu     sync.Mutex
	charts map[catalog.GenreID][]catalog.CollectionID
	errs   map[catalog.GenreID]error
	calls  map[catalog.GenreID]int
}

func newFakeCharts(charts map[catalog.GenreID][]catalog.CollectionID) *fakeCharts {
	return &fakeCharts{
		charts: charts,
		errs:   make(map[catalog.GenreID]error),
		calls:  make(map[catalog.GenreID]int),
	}
}

func (f *fakeCharts) TopChart(_ context.Context, genreID catalog.GenreID) ([]catalog.CollectionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[genreID]++
	if err, ok := f.errs[genreID]; ok {
		return nil, err
	}
	return f.charts[genreID], nil
}

func (f *fakeCharts) callCount(genreID catalog.GenreID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[genreID]
}

// countingLookuper fails configured ids with a classified error and
// tracks per-id call counts.
type countingLookuper struct {
	mu    sync.Mutex
	calls map[catalog.CollectionID]int
	errs  map[catalog.CollectionID]error
	delay time.Duration

	inFlight    int
	maxInFlight int
}

func newCountingLookuper() *countingLookuper {
	return &countingLookuper{
		calls: make(map[catalog.CollectionID]int),
		errs:  make(map[catalog.CollectionID]error),
	}
}

func (f *countingLookuper) Lookup(_ context.Context, id catalog.CollectionID) (catalog.Detail, error) {
	f.mu.Lock()
	f.calls[id]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	err := f.errs[id]
	f.mu.Unlock()

	if err != nil {
		return catalog.Detail{}, err
	}
	return catalog.Detail{CollectionID: id, Name: "show " + id}, nil
}

func (f *countingLookuper) callCount(id catalog.CollectionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *countingLookuper) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// recordingClock advances on every Now call and records sleeps without
// actually waiting.
type recordingClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *recordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *recordingClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

func (c *recordingClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

func newTestScheduler(
	charts ChartLister,
	lookup Lookuper,
	cfg Config,
) (*Scheduler, *State) {
	state := NewState()
	resolver := NewResolver(lookup, state, time.Second, zap.NewNop())
	return NewScheduler(charts, resolver, state, &recordingClock{}, cfg, zap.NewNop()), state
}

func TestRunResolvesWholeChart(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111", "222"},
		"1302": {"333"},
	})
	lookup := newCountingLookuper()
	s, state := newTestScheduler(charts, lookup, Config{GenreWorkers: 2, DetailConcurrency: 2, RetryPasses: 3, GenreRetryAttempts: 1})

	report := s.Run(context.Background(), []catalog.GenreID{"1301", "1302"})

	require.Equal(t, 3, report.ResolvedCount)
	require.ElementsMatch(t, []catalog.CollectionID{"111", "222"}, report.Charts["1301"])
	require.ElementsMatch(t, []catalog.CollectionID{"333"}, report.Charts["1302"])
	require.Empty(t, report.RetryIDs)
	require.Len(t, report.Costs, 3)
	require.True(t, state.Resolved("333"))
}

func TestRunSpendsQuotaAcrossRetryPasses(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111", "222", "333"},
	})
	lookup := newCountingLookuper()
	lookup.errs["222"] = &request.Error{Kind: request.KindBlocked, Status: 403}

	s, state := newTestScheduler(charts, lookup, Config{GenreWorkers: 1, DetailConcurrency: 3, RetryPasses: 4, GenreRetryAttempts: 1})
	report := s.Run(context.Background(), []catalog.GenreID{"1301"})

	// 111 and 333 resolve on the first pass and are never retried.
	require.Equal(t, 1, lookup.callCount("111"))
	require.Equal(t, 1, lookup.callCount("333"))
	require.True(t, state.Resolved("111"))
	require.True(t, state.Resolved("333"))

	// 222 spends its quota 3 -> 2 -> 1 -> 0 across the retry passes and
	// is dropped on the final attempt with no further ledger change.
	require.Equal(t, 5, lookup.callCount("222"))
	quota, ok := state.Quota("222")
	require.True(t, ok)
	require.Equal(t, 0, quota)
	require.True(t, state.Dropped("222"))
	require.False(t, state.Resolved("222"))

	require.Equal(t, 2, report.ResolvedCount)
	require.Empty(t, report.RetryIDs)
}

func TestRunStopsRetryingOnceLedgerDrains(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111"},
	})
	lookup := newCountingLookuper()
	s, _ := newTestScheduler(charts, lookup, Config{GenreWorkers: 1, DetailConcurrency: 2, RetryPasses: 3, GenreRetryAttempts: 1})

	s.Run(context.Background(), []catalog.GenreID{"1301"})

	require.Equal(t, 1, lookup.callCount("111"), "no retry passes once nothing holds a quota")
}

func TestDetailPoolRunsGenuinelyConcurrent(t *testing.T) {
	t.Parallel()

	ids := make([]catalog.CollectionID, 8)
	for i := range ids {
		ids[i] = catalog.CollectionID(rune('a' + i))
	}
	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{"1301": ids})
	lookup := newCountingLookuper()
	lookup.delay = 60 * time.Millisecond

	s, _ := newTestScheduler(charts, lookup, Config{GenreWorkers: 1, DetailConcurrency: 4, GenreRetryAttempts: 1})
	s.Run(context.Background(), []catalog.GenreID{"1301"})

	require.Equal(t, 4, lookup.peakConcurrency(),
		"the id pool must keep its full width in flight, not degrade to lock-step")
}

func TestEmptyChartRetriedWithBackoffThenTerminal(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1309": nil,
	})
	lookup := newCountingLookuper()

	state := NewState()
	resolver := NewResolver(lookup, state, time.Second, zap.NewNop())
	clock := &recordingClock{}
	s := NewScheduler(charts, resolver, state, clock, Config{
		GenreWorkers:       1,
		DetailConcurrency:  2,
		GenreRetryAttempts: 4,
		GenreBackoffBase:   100 * time.Millisecond,
		GenreBackoffMax:    300 * time.Millisecond,
	}, zap.NewNop())

	report := s.Run(context.Background(), []catalog.GenreID{"1309"})

	require.Equal(t, 4, charts.callCount("1309"), "bounded attempts, never an endless spin")
	require.Equal(t, 3, clock.sleepCount(), "backoff before every attempt after the first")
	require.Empty(t, report.Charts["1309"])
	require.Zero(t, lookup.callCount("a"))

	// Backoff grows but never beyond the cap plus jitter headroom.
	clock.mu.Lock()
	defer clock.mu.Unlock()
	for _, d := range clock.sleeps {
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestChartErrorDoesNotAbortOtherGenres(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111"},
	})
	charts.errs["1399"] = &request.Error{Kind: request.KindUnavailable, Status: 500}
	lookup := newCountingLookuper()

	s, state := newTestScheduler(charts, lookup, Config{GenreWorkers: 2, DetailConcurrency: 2, GenreRetryAttempts: 2})
	report := s.Run(context.Background(), []catalog.GenreID{"1399", "1301"})

	require.True(t, state.Resolved("111"))
	require.Empty(t, report.Charts["1399"])
	require.Equal(t, 2, charts.callCount("1399"))
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111"},
	})
	lookup := newCountingLookuper()
	s, _ := newTestScheduler(charts, lookup, Config{GenreWorkers: 1, DetailConcurrency: 1, GenreRetryAttempts: 1})

	report := s.Run(ctx, []catalog.GenreID{"1301"})
	require.Zero(t, report.ResolvedCount)
}

func TestCostRecordedPerProcessedID(t *testing.T) {
	t.Parallel()

	charts := newFakeCharts(map[catalog.GenreID][]catalog.CollectionID{
		"1301": {"111", "222"},
	})
	lookup := newCountingLookuper()
	s, state := newTestScheduler(charts, lookup, Config{GenreWorkers: 1, DetailConcurrency: 1, GenreRetryAttempts: 1})

	s.Run(context.Background(), []catalog.GenreID{"1301"})

	costs := state.Costs()
	require.Len(t, costs, 2)
	for _, c := range costs {
		require.Equal(t, catalog.GenreID("1301"), c.GenreID)
		require.Greater(t, c.Seconds, 0.0)
	}
}
