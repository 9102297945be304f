// Package source retrieves listings from the listings portal.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"kv_bot/internal/model"
)

// ErrUnavailable marks a failure to reach or parse the listings portal.
var ErrUnavailable = errors.New("listing source unavailable")

// maxBody caps how much of a response is read.
const maxBody = 5 * 1024 * 1024

// Source returns the listings currently matching a query.
type Source interface {
	Search(ctx context.Context, q Query) ([]model.Listing, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Query bounds the result volume of one search. Zero numeric fields are omitted.
type Query struct {
	DealType     model.DealType
	PropertyType model.PropertyType
	County       int
	PriceMin     int
	PriceMax     int
	AreaMin      float64
	AreaMax      float64
	RoomsMin     int
	RoomsMax     int
	PageSize     int
}

// Values encodes q as portal search parameters, restricted to listings
// posted directly by owners.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("act", "search.simple")
	v.Set("search_type", "new")
	v.Set("only_private_users", "1")
	if q.DealType != 0 {
		v.Set("deal_type", strconv.Itoa(int(q.DealType)))
	}
	if q.PropertyType != 0 {
		v.Set("property_type", strconv.Itoa(int(q.PropertyType)))
	}
	if q.County != 0 {
		v.Set("county", strconv.Itoa(q.County))
	}
	if q.PageSize != 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	setInt(v, "price_min", q.PriceMin)
	setInt(v, "price_max", q.PriceMax)
	setFloat(v, "area_min", q.AreaMin)
	setFloat(v, "area_max", q.AreaMax)
	setInt(v, "rooms_min", q.RoomsMin)
	setInt(v, "rooms_max", q.RoomsMax)
	return v
}

func setInt(v url.Values, key string, n int) {
	if n > 0 {
		v.Set(key, strconv.Itoa(n))
	}
}

func setFloat(v url.Values, key string, f float64) {
	if f > 0 {
		v.Set(key, strconv.FormatFloat(f, 'f', -1, 64))
	}
}

// get downloads rawURL after waiting for the limiter.
func get(ctx context.Context, client HTTPClient, limiter *rate.Limiter, rawURL string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "KVNotifyBot/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
