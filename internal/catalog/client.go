package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/request"
)

// Getter issues classified GETs. Satisfied by *request.Client.
type Getter interface {
	SafeGet(ctx context.Context, url string, retryOnFailure bool) (*request.Response, error)
}

// ErrNoMatch is returned by Search when no result carries the exact title.
var ErrNoMatch = fmt.Errorf("no collection matches the search term")

// Client talks to the catalog API.
type Client struct {
	getter  Getter
	baseURL string
	country string
	logger  *zap.Logger
}

// New builds a Client. baseURL has no trailing slash.
func New(getter Getter, baseURL, country string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		country: country,
		logger:  logger,
	}
}

// TopChartURL composes the ranked chart endpoint for a genre.
func (c *Client) TopChartURL(genreID GenreID) string {
	return fmt.Sprintf("%s/%s/rss/toppodcasts/genre=%s/limit=200/json", c.baseURL, c.country, genreID)
}

// LookupURL composes the lookup endpoint for a collection.
func (c *Client) LookupURL(id CollectionID) string {
	return fmt.Sprintf("%s/lookup?id=%s", c.baseURL, id)
}

// SearchURL composes the search endpoint for a term.
func (c *Client) SearchURL(term string) string {
	return fmt.Sprintf("%s/search?media=podcast&limit=200&term=%s", c.baseURL, url.QueryEscape(term))
}

// TopChart fetches the ranked collection ids for one genre. Entries
// without a usable id are skipped.
func (c *Client) TopChart(ctx context.Context, genreID GenreID) ([]CollectionID, error) {
	resp, err := c.getter.SafeGet(ctx, c.TopChartURL(genreID), false)
	if err != nil {
		return nil, err
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body, &chart); err != nil {
		return nil, fmt.Errorf("decode top chart for genre %s: %w", genreID, err)
	}

	ids := make([]CollectionID, 0, len(chart.Feed.Entry))
	for _, entry := range chart.Feed.Entry {
		if id := entry.ID.Attributes.IMID; id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Lookup fetches one collection's detail. An empty result set is a valid
// "no longer published" signal and yields a Delisted detail, not an error.
func (c *Client) Lookup(ctx context.Context, id CollectionID) (Detail, error) {
	resp, err := c.getter.SafeGet(ctx, c.LookupURL(id), false)
	if err != nil {
		return Detail{}, err
	}

	var lookup lookupResponse
	if err := json.Unmarshal(resp.Body, &lookup); err != nil {
		return Detail{}, fmt.Errorf("decode lookup for collection %s: %w", id, err)
	}

	if lookup.ResultCount == 0 && len(lookup.Results) == 0 {
		c.logger.Info("empty lookup result", zap.String("collection_id", id))
		return Detail{CollectionID: id, Delisted: true}, nil
	}
	if len(lookup.Results) == 0 {
		return Detail{}, fmt.Errorf("lookup for collection %s: result count %d with no results", id, lookup.ResultCount)
	}

	return toDetail(id, lookup.Results[0]), nil
}

// Search fetches collections matching term and returns the one whose title
// matches exactly. waitAndRetry enables the request layer's single retry.
func (c *Client) Search(ctx context.Context, term string, waitAndRetry bool) (Detail, error) {
	resp, err := c.getter.SafeGet(ctx, c.SearchURL(term), waitAndRetry)
	if err != nil {
		return Detail{}, err
	}

	var lookup lookupResponse
	if err := json.Unmarshal(resp.Body, &lookup); err != nil {
		return Detail{}, fmt.Errorf("decode search for term %q: %w", term, err)
	}

	for _, result := range lookup.Results {
		if result.CollectionName == term {
			return toDetail("", result), nil
		}
	}

	c.logger.Info("no search match", zap.String("term", term), zap.Int("results", len(lookup.Results)))
	return Detail{}, ErrNoMatch
}

func toDetail(fallbackID CollectionID, r lookupResult) Detail {
	id := fallbackID
	if r.CollectionID != 0 {
		id = strconv.FormatInt(r.CollectionID, 10)
	}
	return Detail{
		CollectionID: id,
		Name:         strings.TrimSpace(r.CollectionName),
		ArtworkURL:   strings.TrimSpace(r.ArtworkURL600),
		FeedURL:      r.FeedURL,
		GenreIDs:     r.GenreIDs,
	}
}
