package feed

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/request"
	"github.com/Baabao/insert-itunes-collector/internal/storage/memory"
)

const wellFormedRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Show</title>
    <link>https://example.com</link>
    <description>desc</description>
    <item>
      <title>Episode 1</title>
      <link>https://example.com/1</link>
      <guid>ep-1</guid>
    </item>
  </channel>
</rss>`

type fakeRequester struct {
	body         []byte
	contentType  string
	err          error
	getCalls     int
	adapterCalls int
	adapterBody  []byte
}

func (r *fakeRequester) Get(_ context.Context, url string) (*request.Response, error) {
	r.getCalls++
	if r.err != nil {
		return nil, r.err
	}
	header := http.Header{}
	if r.contentType != "" {
		header.Set("Content-Type", r.contentType)
	}
	return &request.Response{URL: url, StatusCode: 200, Header: header, Body: r.body}, nil
}

func (r *fakeRequester) AdapterGet(_ context.Context, url string) (*request.Response, error) {
	r.adapterCalls++
	body := r.adapterBody
	if body == nil {
		body = r.body
	}
	return &request.Response{URL: url, StatusCode: 200, Header: http.Header{}, Body: body}, nil
}

func TestFetchWellFormed(t *testing.T) {
	t.Parallel()

	store := memory.New()
	req := &fakeRequester{body: []byte(wellFormedRSS), contentType: "text/xml; charset=utf-8"}
	f := NewFetcher(req, store, nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/a.xml", "111")
	require.NoError(t, err)
	require.False(t, result.Malformed)
	require.Len(t, result.Entries(), 1)
	require.Equal(t, "Test Show", result.Feed.Title)

	saved, ok := store.Get("111.xml")
	require.True(t, ok)
	require.Equal(t, []byte(wellFormedRSS), saved)
}

func TestFetchRecoversFromControlCharacters(t *testing.T) {
	t.Parallel()

	// Illegal C0 bytes inside the document, no encoding reported.
	dirty := []byte("<rss version=\"2.0\"><channel><title>Dirty\x01Show</title>" +
		"<item><title>Ep\x00isode</title><guid>1</guid></item></channel></rss>")

	store := memory.New()
	req := &fakeRequester{body: dirty}
	f := NewFetcher(req, store, nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/dirty.xml", "222")
	require.NoError(t, err)
	require.False(t, result.Malformed, "strip + re-parse should recover")
	require.NotEmpty(t, result.Entries())
	require.Equal(t, "utf-8", result.Encoding)

	// The original, not the cleaned bytes, are re-saved.
	saved, ok := store.Get("222.xml")
	require.True(t, ok)
	require.Equal(t, dirty, saved)
}

func TestFetchStillMalformedReturnsResultAnyway(t *testing.T) {
	t.Parallel()

	truncated := []byte(`<rss version="2.0"><channel><title>Broken`)
	req := &fakeRequester{body: truncated}
	f := NewFetcher(req, memory.New(), nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/broken.xml", "333")
	require.NoError(t, err, "a malformed document is not a hard failure")
	require.NotNil(t, result)
	require.True(t, result.Malformed)
	require.Empty(t, result.Entries())
}

func TestFetchRequestFailureEndsStateMachine(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{err: &request.Error{Kind: request.KindUnavailable, Status: 500}}
	store := memory.New()
	f := NewFetcher(req, store, nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/down.xml", "444")
	require.Error(t, err)
	require.Nil(t, result)
	require.Zero(t, store.Len())
}

func TestFetch503FallsBackToAdapter(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{
		err:         &request.Error{Kind: request.KindUnavailable, Status: 503},
		adapterBody: []byte(wellFormedRSS),
	}
	f := NewFetcher(req, memory.New(), nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/b.xml", "555")
	require.NoError(t, err)
	require.Equal(t, 1, req.getCalls)
	require.Equal(t, 1, req.adapterCalls)
	require.False(t, result.Malformed)
}

func TestFetchAdapterHostSkipsDirectGet(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{body: []byte(wellFormedRSS)}
	f := NewFetcher(req, memory.New(), []string{"stubborn.example.com"}, zap.NewNop())

	_, err := f.Fetch(context.Background(), "https://rss.stubborn.example.com/feed", "666")
	require.NoError(t, err)
	require.Zero(t, req.getCalls)
	require.Equal(t, 1, req.adapterCalls)
}

func TestFetchSaveFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	req := &fakeRequester{body: []byte(wellFormedRSS)}
	f := NewFetcher(req, failingStore{}, nil, zap.NewNop())

	result, err := f.Fetch(context.Background(), "https://feeds.example.com/c.xml", "777")
	require.NoError(t, err)
	require.False(t, result.Malformed)
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) (string, error) {
	return "", context.DeadlineExceeded
}
