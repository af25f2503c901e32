// Package feed retrieves and parses RSS/Atom feeds, recovering from
// malformed XML by stripping illegal control characters and re-parsing.
package feed

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/metrics"
	"github.com/Baabao/insert-itunes-collector/internal/request"
	"github.com/Baabao/insert-itunes-collector/internal/storage"
)

// Result is the outcome of one feed fetch. Malformed is set when even the
// recovery re-parse could not produce well-formed XML; callers decide
// usability, typically via an entries-non-empty check.
type Result struct {
	Feed      *gofeed.Feed
	Malformed bool
	Encoding  string
	Raw       []byte
}

// Entries returns the parsed feed items, or nil for an unusable result.
func (r *Result) Entries() []*gofeed.Item {
	if r == nil || r.Feed == nil {
		return nil
	}
	return r.Feed.Items
}

// Requester issues classified GETs. Satisfied by *request.Client.
type Requester interface {
	Get(ctx context.Context, url string) (*request.Response, error)
	AdapterGet(ctx context.Context, url string) (*request.Response, error)
}

// Fetcher drives the feed retrieval state machine:
// REQUEST -> SAVE -> PARSE -> (if malformed) RECLEAN -> RESAVE -> REPARSE.
type Fetcher struct {
	requester    Requester
	artifacts    storage.Provider
	adapterHosts []string
	parser       *gofeed.Parser
	logger       *zap.Logger
}

// NewFetcher builds a Fetcher. adapterHosts lists host suffixes that are
// known to reject the default TLS configuration and go straight through
// the adapter path.
func NewFetcher(requester Requester, artifacts storage.Provider, adapterHosts []string, logger *zap.Logger) *Fetcher {
	if artifacts == nil {
		artifacts = storage.NoOpProvider{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		requester:    requester,
		artifacts:    artifacts,
		adapterHosts: adapterHosts,
		parser:       gofeed.NewParser(),
		logger:       logger,
	}
}

// Fetch retrieves and parses the feed at feedURL. The raw bytes are saved
// to a per-collection artifact as a side effect. HTTP-level failures end
// the state machine with a classified error; parse failures are soft and
// still yield a Result.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, collectionID string) (*Result, error) {
	resp, err := f.fetchRaw(ctx, feedURL)
	if err != nil {
		metrics.ObserveFeedFetch("unavailable")
		f.logger.Info("feed request failed",
			zap.String("collection_id", collectionID),
			zap.String("url", feedURL),
			zap.Error(err),
		)
		return nil, err
	}

	artifactPath := collectionID + ".xml"
	f.saveArtifact(ctx, artifactPath, resp.Body, collectionID, feedURL)

	parsed, parseErr := f.parser.Parse(bytes.NewReader(resp.Body))
	encoding := DetectEncoding(resp.Body, resp.Header.Get("Content-Type"))
	if parseErr == nil {
		metrics.ObserveFeedFetch("ok")
		return &Result{Feed: parsed, Encoding: encoding, Raw: resp.Body}, nil
	}

	// Malformed XML: default the encoding, strip illegal control
	// characters, re-save the original bytes, parse the cleaned text.
	if encoding == "" {
		f.logger.Info("no encoding reported, assuming utf-8",
			zap.String("collection_id", collectionID),
		)
		encoding = "utf-8"
	}
	f.logger.Info("malformed feed, trying control character strip",
		zap.String("collection_id", collectionID),
		zap.String("encoding", encoding),
		zap.Error(parseErr),
	)

	cleaned := StripControl(decodeWith(resp.Body, encoding))
	f.saveArtifact(ctx, artifactPath, resp.Body, collectionID, feedURL)

	parsed, reparseErr := f.parser.Parse(strings.NewReader(cleaned))
	if reparseErr == nil {
		metrics.ObserveFeedFetch("recovered")
		f.logger.Info("feed recovered after strip", zap.String("collection_id", collectionID))
		return &Result{Feed: parsed, Encoding: encoding, Raw: resp.Body}, nil
	}

	// Still malformed. Hand the latest parse back anyway; a malformed
	// but non-empty result is for the caller to judge.
	metrics.ObserveFeedFetch("malformed")
	f.logger.Info("feed still malformed after strip",
		zap.String("collection_id", collectionID),
		zap.String("encoding", encoding),
		zap.Error(reparseErr),
	)
	return &Result{Feed: parsed, Malformed: true, Encoding: encoding, Raw: resp.Body}, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, feedURL string) (*request.Response, error) {
	if f.isAdapterHost(feedURL) {
		return f.requester.AdapterGet(ctx, feedURL)
	}

	resp, err := f.requester.Get(ctx, feedURL)
	if err != nil && request.StatusOf(err) == 503 {
		f.logger.Info("got 503, falling back to adapter", zap.String("url", feedURL))
		return f.requester.AdapterGet(ctx, feedURL)
	}
	return resp, err
}

func (f *Fetcher) saveArtifact(ctx context.Context, path string, data []byte, collectionID, feedURL string) {
	if _, err := f.artifacts.Put(ctx, path, data); err != nil {
		f.logger.Info("save feed XML failed",
			zap.String("collection_id", collectionID),
			zap.String("url", feedURL),
			zap.Error(err),
		)
	}
}

func (f *Fetcher) isAdapterHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range f.adapterHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
