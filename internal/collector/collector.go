// Package collector is the downstream pass of a run: it walks the
// resolved-detail map, retrieves each collection's feed, normalizes the
// record, and persists it together with the chart ranks.
package collector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/database"
	"github.com/Baabao/insert-itunes-collector/internal/exclusion"
	"github.com/Baabao/insert-itunes-collector/internal/executor"
	"github.com/Baabao/insert-itunes-collector/internal/feed"
	"github.com/Baabao/insert-itunes-collector/internal/storage"
	"github.com/Baabao/insert-itunes-collector/internal/tagcache"
)

// FeedFetcher retrieves and parses one feed. Satisfied by *feed.Fetcher.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, collectionID string) (*feed.Result, error)
}

// Clock provides the persistence timestamp.
type Clock interface {
	Now() time.Time
}

// Config controls the collector pass.
type Config struct {
	Workers     int
	FeedTimeout time.Duration
}

// Summary reports what one collector pass persisted.
type Summary struct {
	Saved    int
	Skipped  int
	Excluded int
	Ranks    int
}

// Collector persists resolved collections. Database writes go through
// a shared write lock held only for the duration of one call, never
// across a fetch.
type Collector struct {
	db        database.Provider
	feeds     FeedFetcher
	artifacts storage.Provider
	tags      *tagcache.Cache
	excluded  *exclusion.List
	clock     Clock
	writeLock *sync.Mutex
	cfg       Config
	logger    *zap.Logger
}

// New builds a Collector. writeLock is the process-wide database write
// gate shared with every other writer.
func New(
	db database.Provider,
	feeds FeedFetcher,
	artifacts storage.Provider,
	tags *tagcache.Cache,
	excluded *exclusion.List,
	clock Clock,
	writeLock *sync.Mutex,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 30 * time.Second
	}
	if writeLock == nil {
		writeLock = &sync.Mutex{}
	}
	if artifacts == nil {
		artifacts = storage.NoOpProvider{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		db:        db,
		feeds:     feeds,
		artifacts: artifacts,
		tags:      tags,
		excluded:  excluded,
		clock:     clock,
		writeLock: writeLock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run persists the chart ranks and every resolved detail. Per-item
// failures are logged and skipped; Run never fails a batch.
func (c *Collector) Run(
	ctx context.Context,
	charts map[catalog.GenreID][]catalog.CollectionID,
	details map[catalog.CollectionID]catalog.Detail,
) Summary {
	var summary Summary
	var mu sync.Mutex

	summary.Ranks = c.saveRanks(ctx, charts)

	jobs := make(chan catalog.Detail)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for detail := range jobs {
				saved, excluded := c.collectOne(ctx, detail)
				mu.Lock()
				switch {
				case saved:
					summary.Saved++
				case excluded:
					summary.Excluded++
				default:
					summary.Skipped++
				}
				mu.Unlock()
			}
		}()
	}

enqueue:
	for _, detail := range details {
		select {
		case <-ctx.Done():
			break enqueue
		case jobs <- detail:
		}
	}
	close(jobs)
	wg.Wait()

	c.logger.Info("collector pass finished",
		zap.Int("saved", summary.Saved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("excluded", summary.Excluded),
		zap.Int("ranks", summary.Ranks),
	)
	return summary
}

// collectOne processes a single resolved detail. It reports whether the
// record was saved, and whether it was excluded instead.
func (c *Collector) collectOne(ctx context.Context, detail catalog.Detail) (saved, excluded bool) {
	id := detail.CollectionID

	if c.excluded != nil && c.excluded.Contains(id) {
		c.logger.Debug("skipping excluded collection", zap.String("collection_id", id))
		return false, true
	}

	if detail.Delisted {
		c.exclude(id, "delisted upstream")
		return false, true
	}
	if detail.FeedURL == "" {
		c.exclude(id, "no feed url")
		return false, true
	}

	result, ok := executor.Run(ctx, c.logger, "feed "+id, c.cfg.FeedTimeout,
		func(taskCtx context.Context) (*feed.Result, error) {
			return c.feeds.Fetch(taskCtx, detail.FeedURL, id)
		},
	)
	if !ok || result == nil {
		return false, false
	}

	entries := result.Entries()
	if len(entries) == 0 {
		c.logger.Info("feed has no usable entries",
			zap.String("collection_id", id),
			zap.Bool("malformed", result.Malformed),
		)
		return false, false
	}

	program := c.normalize(detail, result)
	c.saveTags(ctx, result.Feed.Categories)
	c.saveArtifact(ctx, program)

	c.writeLock.Lock()
	recordID, err := c.db.SaveProgram(ctx, program)
	c.writeLock.Unlock()
	if err != nil {
		c.logger.Error("save program failed",
			zap.String("collection_id", id),
			zap.Error(err),
		)
		return false, false
	}

	c.logger.Info("program saved",
		zap.String("collection_id", id),
		zap.String("record_id", recordID),
		zap.Int("episodes", program.EpisodeCount),
	)
	return true, false
}

func (c *Collector) normalize(detail catalog.Detail, result *feed.Result) database.Program {
	title := detail.Name
	if title == "" {
		title = result.Feed.Title
	}
	return database.Program{
		CollectionID: detail.CollectionID,
		Title:        title,
		FeedURL:      detail.FeedURL,
		ArtworkURL:   detail.ArtworkURL,
		GenreIDs:     detail.GenreIDs,
		EpisodeCount: len(result.Entries()),
		FetchedAt:    c.clock.Now(),
	}
}

func (c *Collector) saveRanks(ctx context.Context, charts map[catalog.GenreID][]catalog.CollectionID) int {
	saved := 0
	for genreID, ids := range charts {
		for position, id := range ids {
			if ctx.Err() != nil {
				return saved
			}
			rank := database.Rank{GenreID: genreID, CollectionID: id, Position: position + 1}

			c.writeLock.Lock()
			err := c.db.SaveRank(ctx, rank)
			c.writeLock.Unlock()
			if err != nil {
				c.logger.Error("save rank failed",
					zap.String("genre_id", genreID),
					zap.String("collection_id", id),
					zap.Error(err),
				)
				continue
			}
			saved++
		}
	}
	return saved
}

// saveTags resolves feed category names through the tag cache, hitting
// the database only on cache misses.
func (c *Collector) saveTags(ctx context.Context, categories []string) {
	if c.tags == nil {
		return
	}
	for _, name := range categories {
		if name == "" {
			continue
		}
		if _, ok := c.tags.Lookup(name); ok {
			continue
		}

		c.writeLock.Lock()
		tagID, err := c.db.SaveTag(ctx, name)
		c.writeLock.Unlock()
		if err != nil {
			c.logger.Error("save tag failed", zap.String("tag", name), zap.Error(err))
			continue
		}
		if err := c.tags.Update(name, tagID); err != nil {
			c.logger.Error("update tag cache failed", zap.String("tag", name), zap.Error(err))
		}
	}
}

func (c *Collector) saveArtifact(ctx context.Context, program database.Program) {
	data, err := json.Marshal(program)
	if err != nil {
		c.logger.Error("encode program artifact failed",
			zap.String("collection_id", program.CollectionID),
			zap.Error(err),
		)
		return
	}
	if _, err := c.artifacts.Put(ctx, program.CollectionID+".json", data); err != nil {
		c.logger.Info("save program artifact failed",
			zap.String("collection_id", program.CollectionID),
			zap.Error(err),
		)
	}
}

func (c *Collector) exclude(id, reason string) {
	if c.excluded == nil {
		return
	}
	if err := c.excluded.Append(id); err != nil {
		c.logger.Error("append exclusion failed",
			zap.String("collection_id", id),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("collection excluded",
		zap.String("collection_id", id),
		zap.String("reason", reason),
	)
}
