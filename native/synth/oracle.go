package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RoundData captures a single price observation from an upstream feed. Price
// is an integer scaled by the feed's implied decimal count (eight decimals for
// the default USD feeds).
type RoundData struct {
	Price     *big.Int
	UpdatedAt time.Time
}

// PriceFeed resolves the latest round for a single asset/USD pair.
type PriceFeed interface {
	LatestRound() (RoundData, error)
}

// FeedAdapter wraps a raw feed with the freshness policy and scale padding the
// engine requires. A stale or invalid round aborts the calling operation; the
// adapter never caches or retries.
type FeedAdapter struct {
	feed   PriceFeed
	maxAge time.Duration
	now    func() time.Time
}

// NewFeedAdapter constructs an adapter enforcing the supplied freshness
// window. A non-positive maxAge disables the staleness check.
func NewFeedAdapter(feed PriceFeed, maxAge time.Duration) *FeedAdapter {
	return &FeedAdapter{feed: feed, maxAge: maxAge, now: time.Now}
}

// SetClock overrides the wall clock used for staleness checks.
func (a *FeedAdapter) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.now = now
}

// PriceUsd returns the latest USD price per asset unit padded to the engine's
// 18-decimal fixed-point scale.
func (a *FeedAdapter) PriceUsd() (*big.Int, error) {
	if a == nil || a.feed == nil {
		return nil, ErrStalePrice
	}
	round, err := a.feed.LatestRound()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStalePrice, err)
	}
	if round.Price == nil || round.Price.Sign() <= 0 {
		return nil, ErrStalePrice
	}
	if a.maxAge > 0 {
		cutoff := a.now().Add(-a.maxAge)
		if round.UpdatedAt.Before(cutoff) {
			return nil, ErrStalePrice
		}
	}
	return new(big.Int).Mul(round.Price, additionalFeedPrecision), nil
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	round RoundData
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied price and observation timestamp.
func (m *ManualFeed) Set(price *big.Int, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.round = RoundData{Price: new(big.Int).Set(price), UpdatedAt: ts}
	m.set = true
	m.mu.Unlock()
}

// LatestRound returns the stored round.
func (m *ManualFeed) LatestRound() (RoundData, error) {
	if m == nil {
		return RoundData{}, fmt.Errorf("manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return RoundData{}, fmt.Errorf("manual feed: no round recorded")
	}
	return RoundData{Price: new(big.Int).Set(m.round.Price), UpdatedAt: m.round.UpdatedAt}, nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches rounds from a JSON price endpoint. The endpoint is expected
// to respond with {"price": "<integer>", "timestamp": <unix seconds>} where the
// price carries the feed's implied decimals.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	symbol   string
}

// NewHTTPFeed constructs a feed client for the given asset symbol. When the
// client is nil http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint, symbol string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

func (f *HTTPFeed) LatestRound() (RoundData, error) {
	if f == nil || f.endpoint == "" {
		return RoundData{}, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return RoundData{}, err
	}
	values := url.Values{}
	values.Set("symbol", f.symbol)
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return RoundData{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RoundData{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RoundData{}, fmt.Errorf("http feed: decode: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok || price.Sign() <= 0 {
		return RoundData{}, fmt.Errorf("http feed: invalid price %q", payload.Price)
	}
	return RoundData{Price: price, UpdatedAt: time.Unix(payload.Timestamp, 0)}, nil
}
