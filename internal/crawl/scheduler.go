package crawl

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/metrics"
)

// ChartLister fetches the ranked top-chart id list for one genre.
// Satisfied by *catalog.Client.
type ChartLister interface {
	TopChart(ctx context.Context, genreID catalog.GenreID) ([]catalog.CollectionID, error)
}

// Clock abstracts time for the scheduler so backoff is testable.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// Config controls the two levels of parallelism and the retry policy.
type Config struct {
	GenreWorkers       int
	DetailConcurrency  int
	RetryPasses        int
	GenreRetryAttempts int
	GenreBackoffBase   time.Duration
	GenreBackoffMax    time.Duration
}

func (c Config) withDefaults() Config {
	if c.GenreWorkers < 1 {
		c.GenreWorkers = 1
	}
	if c.DetailConcurrency < 1 {
		c.DetailConcurrency = 1
	}
	if c.RetryPasses < 0 {
		c.RetryPasses = 0
	}
	if c.GenreRetryAttempts < 1 {
		c.GenreRetryAttempts = 1
	}
	if c.GenreBackoffBase <= 0 {
		c.GenreBackoffBase = 250 * time.Millisecond
	}
	if c.GenreBackoffMax <= 0 {
		c.GenreBackoffMax = 5 * time.Second
	}
	return c
}

// Report summarizes one scheduler run.
type Report struct {
	Charts        map[catalog.GenreID][]catalog.CollectionID
	ResolvedCount int
	RetryIDs      []catalog.CollectionID
	Costs         []CostRecord
}

// Scheduler fans work out across genres and collection ids: per genre a
// top-chart fetch followed by a bounded id-level resolve pool, then up to
// RetryPasses extra passes over ids still holding an active retry quota.
type Scheduler struct {
	charts   ChartLister
	resolver *Resolver
	state    *State
	clock    Clock
	cfg      Config
	logger   *zap.Logger
}

// NewScheduler builds a Scheduler over the shared state.
func NewScheduler(
	charts ChartLister,
	resolver *Resolver,
	state *State,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		charts:   charts,
		resolver: resolver,
		state:    state,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run executes one full crawl over the enabled genres. A failing genre
// or id is logged and excluded from the result, never fatal; Run only
// stops early when ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, genreIDs []catalog.GenreID) *Report {
	charts := make(map[catalog.GenreID][]catalog.CollectionID, len(genreIDs))
	var chartsMu sync.Mutex

	jobs := make(chan catalog.GenreID)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.GenreWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for genreID := range jobs {
				started := s.clock.Now()
				ids := s.crawlGenre(ctx, genreID)
				metrics.ObserveGenreCost(genreID, s.clock.Now().Sub(started))

				chartsMu.Lock()
				charts[genreID] = ids
				chartsMu.Unlock()
			}
		}()
	}

enqueue:
	for _, genreID := range genreIDs {
		select {
		case <-ctx.Done():
			break enqueue
		case jobs <- genreID:
		}
	}
	close(jobs)
	wg.Wait()

	s.retryPasses(ctx)

	report := &Report{
		Charts:        charts,
		ResolvedCount: s.state.ResolvedCount(),
		RetryIDs:      s.state.ActiveRetryIDs(),
		Costs:         s.state.Costs(),
	}
	s.logger.Info("crawl run finished",
		zap.Int("genres", len(genreIDs)),
		zap.Int("resolved", report.ResolvedCount),
		zap.Int("pending_retry", len(report.RetryIDs)),
	)
	return report
}

// crawlGenre fetches the genre's chart and resolves every id on it.
func (s *Scheduler) crawlGenre(ctx context.Context, genreID catalog.GenreID) []catalog.CollectionID {
	ids := s.fetchChart(ctx, genreID)
	if len(ids) == 0 {
		return nil
	}
	s.logger.Info("genre chart fetched",
		zap.String("genre_id", genreID),
		zap.Int("collections", len(ids)),
	)
	s.resolveBatch(ctx, genreID, ids)
	return ids
}

// fetchChart retries an empty or failed chart fetch with jittered
// exponential backoff up to GenreRetryAttempts. Persistent emptiness is
// terminal for this run and reported via log and metric.
func (s *Scheduler) fetchChart(ctx context.Context, genreID catalog.GenreID) []catalog.CollectionID {
	for attempt := 0; attempt < s.cfg.GenreRetryAttempts; attempt++ {
		if attempt > 0 {
			s.clock.Sleep(ctx, s.backoff(attempt))
		}
		if ctx.Err() != nil {
			return nil
		}

		ids, err := s.charts.TopChart(ctx, genreID)
		if err != nil {
			metrics.ObserveGenreChart("error")
			s.logger.Info("top chart fetch failed",
				zap.String("genre_id", genreID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if len(ids) == 0 {
			metrics.ObserveGenreChart("empty")
			s.logger.Info("top chart empty",
				zap.String("genre_id", genreID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		metrics.ObserveGenreChart("ok")
		return ids
	}

	metrics.ObserveGenreChart("exhausted")
	s.logger.Error("top chart unavailable after all attempts",
		zap.String("genre_id", genreID),
		zap.Int("attempts", s.cfg.GenreRetryAttempts),
	)
	return nil
}

// resolveBatch resolves ids through a fixed pool of DetailConcurrency
// workers fed by a channel, so up to DetailConcurrency lookups are in
// flight at once.
func (s *Scheduler) resolveBatch(ctx context.Context, genreID catalog.GenreID, ids []catalog.CollectionID) {
	jobs := make(chan catalog.CollectionID)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.DetailConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				metrics.IncActiveDetailWorkers()
				started := s.clock.Now()
				s.resolver.Resolve(ctx, id)
				s.state.AddCost(genreID, s.clock.Now().Sub(started).Seconds())
				metrics.DecActiveDetailWorkers()
			}
		}()
	}

enqueue:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break enqueue
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()
}

// retryPasses re-attempts ids still holding an active quota, as a
// concurrent batch per pass. Ids resolved on an earlier pass are skipped
// by Resolve's short-circuit; ids that keep failing spend their quota
// until dropped.
func (s *Scheduler) retryPasses(ctx context.Context) {
	for pass := 1; pass <= s.cfg.RetryPasses; pass++ {
		if ctx.Err() != nil {
			return
		}
		ids := s.state.ActiveRetryIDs()
		if len(ids) == 0 {
			return
		}
		metrics.ObserveRetryPass()
		s.logger.Info("running retry pass",
			zap.Int("pass", pass),
			zap.Int("collections", len(ids)),
		)
		s.resolveBatch(ctx, "", ids)
	}
}

// backoff returns a jittered exponential delay for the given attempt,
// capped at GenreBackoffMax.
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := float64(s.cfg.GenreBackoffBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(s.cfg.GenreBackoffMax) {
		delay = float64(s.cfg.GenreBackoffMax)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
