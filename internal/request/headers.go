package request

import (
	"math/rand"
	"net/http"
	"sync"
)

// Header triples mimic a desktop browser. The fixed triple is used on the
// default path; the randomized draw diversifies fingerprints on the
// adapter path against hosts that keep rejecting the same client.
var agentSamples = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_10_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/39.0.2171.95 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:95.0) Gecko/20100101 Firefox/95.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Safari/605.1.15",
}

var acceptSamples = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var langSamples = []string{
	"zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7",
	"en,zh-TW;q=0.5",
}

func buildHeader(accept, language, userAgent string) http.Header {
	h := http.Header{}
	h.Set("Accept", accept)
	h.Set("Accept-Language", language)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("User-Agent", userAgent)
	return h
}

// HeaderPool hands out browser-like header sets.
type HeaderPool struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeaderPool creates a pool seeded from seed.
func NewHeaderPool(seed int64) *HeaderPool {
	return &HeaderPool{rng: rand.New(rand.NewSource(seed))}
}

// Common returns the fixed browser header set.
func (p *HeaderPool) Common() http.Header {
	return buildHeader(acceptSamples[2], langSamples[1], agentSamples[0])
}

// Random draws one Accept/Accept-Language/User-Agent triple.
func (p *HeaderPool) Random() http.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return buildHeader(
		acceptSamples[p.rng.Intn(len(acceptSamples))],
		langSamples[p.rng.Intn(len(langSamples))],
		agentSamples[p.rng.Intn(len(agentSamples))],
	)
}

// shuffledIndexes returns a random permutation of [0, n).
func (p *HeaderPool) shuffledIndexes(n int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Perm(n)
}
