// Package request issues classified, retryable HTTP requests for the
// collector. It owns browser header rotation and TLS cipher fallback and
// surfaces exactly three failure kinds: Blocked, NotFound, Unavailable.
package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/metrics"
)

// Response is the raw successful result of a GET.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sleeper waits between the two attempts of a retried request.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// Config controls Client behavior.
type Config struct {
	Timeout   time.Duration
	RetryWait time.Duration
}

// Client executes GETs through per-request collector clones.
type Client struct {
	cfg       Config
	base      *colly.Collector
	transport http.RoundTripper
	headers   *HeaderPool
	sleeper   Sleeper
	logger    *zap.Logger
}

// New builds a Client.
func New(cfg Config, sleeper Sleeper, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true

	return &Client{
		cfg:       cfg,
		base:      c,
		transport: newHTTPTransport(),
		headers:   NewHeaderPool(time.Now().UnixNano()),
		sleeper:   sleeper,
		logger:    logger,
	}
}

// Get issues one GET with the fixed browser header set.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.SafeGet(ctx, rawURL, false)
}

// SafeGet issues one GET with the fixed browser header set. If
// retryOnFailure is set and the response is not successful, it sleeps the
// configured interval and retries exactly once before classifying.
func (c *Client) SafeGet(ctx context.Context, rawURL string, retryOnFailure bool) (*Response, error) {
	resp, status, err := c.do(ctx, rawURL, c.headers.Common(), c.transport)

	if retryOnFailure && (err != nil || resp == nil) {
		c.logger.Info("response not ok, retrying once",
			zap.String("url", rawURL),
			zap.Int("status", status),
			zap.Duration("wait", c.cfg.RetryWait),
		)
		c.sleeper.Sleep(ctx, c.cfg.RetryWait)
		resp, status, err = c.do(ctx, rawURL, c.headers.Common(), c.transport)
		c.logger.Info("request retried",
			zap.String("url", rawURL),
			zap.Int("status", status),
		)
	}

	if err == nil && resp != nil {
		metrics.ObserveRequest("default", "ok")
		return resp, nil
	}

	classified := classify(rawURL, status, err)
	metrics.ObserveRequest("default", string(classified.Kind))
	c.logger.Info("request failed",
		zap.String("url", rawURL),
		zap.Int("status", status),
		zap.String("kind", string(classified.Kind)),
	)
	return nil, classified
}

// AdapterGet walks a randomly ordered set of alternate TLS transport
// configurations for hosts that reject the default client, drawing a fresh
// header triple per attempt. The first success wins.
func (c *Client) AdapterGet(ctx context.Context, rawURL string) (*Response, error) {
	transports := fallbackTransports()
	for _, idx := range c.headers.shuffledIndexes(len(transports)) {
		at := transports[idx]
		c.logger.Info("trying adapter",
			zap.String("adapter", at.name),
			zap.String("url", rawURL),
		)
		resp, status, err := c.do(ctx, rawURL, c.headers.Random(), at.transport)
		if err == nil && resp != nil {
			metrics.ObserveRequest("adapter", "ok")
			return resp, nil
		}
		c.logger.Info("adapter attempt failed",
			zap.String("adapter", at.name),
			zap.String("url", rawURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	metrics.ObserveRequest("adapter", string(KindUnavailable))
	return nil, &Error{Kind: KindUnavailable, URL: rawURL, cause: errors.New("all adapters failed")}
}

// do runs a single visit on a collector clone and reports the terminal
// status alongside any transport or HTTP error.
func (c *Client) do(
	ctx context.Context,
	rawURL string,
	header http.Header,
	transport http.RoundTripper,
) (*Response, int, error) {
	collector := c.base.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if transport != nil {
		collector.WithTransport(transport)
	}

	var (
		resp     *Response
		status   int
		fetchErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range header {
			for _, value := range values {
				r.Headers.Set(key, value)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case err := <-done:
		if fetchErr == nil && err != nil {
			fetchErr = err
		}
	}

	if resp == nil && fetchErr == nil {
		fetchErr = fmt.Errorf("no response received for %s", rawURL)
	}
	if fetchErr != nil {
		return nil, status, fetchErr
	}
	return resp, status, nil
}
