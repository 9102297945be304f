package source

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"kv_bot/internal/model"
)

var (
	trailingIDRe = regexp.MustCompile(`(\d+)\D*$`)
	titlePriceRe = regexp.MustCompile(`(\d[\d\s\x{00a0}]*)\s*€`)
	titleRoomsRe = regexp.MustCompile(`(?i)(\d+)\s*-?\s*(?:tuba|toaline|rooms?)`)
	titleAreaRe  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*m(?:²|2)`)
)

// Feed reads listings from an RSS or Atom feed of search results.
// The feed address already encodes the search, so only Query.PageSize applies.
type Feed struct {
	client  HTTPClient
	url     string
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewFeed creates a Feed source for the given feed URL. rps bounds requests
// per second to the feed host.
func NewFeed(client HTTPClient, feedURL string, rps float64, log *slog.Logger) *Feed {
	if rps <= 0 {
		rps = 2
	}
	return &Feed{
		client:  client,
		url:     feedURL,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

// Search downloads and parses the feed.
func (f *Feed) Search(ctx context.Context, q Query) ([]model.Listing, error) {
	body, err := get(ctx, f.client, f.limiter, f.url)
	if err != nil {
		return nil, fmt.Errorf("%w: feed: %w", ErrUnavailable, err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %w", ErrUnavailable, err)
	}

	var listings []model.Listing
	for _, item := range parsed.Items {
		l, ok := ItemListing(item)
		if !ok {
			f.log.Debug("skip feed item without listing id", "guid", item.GUID, "link", item.Link)
			continue
		}
		listings = append(listings, l)
		if q.PageSize > 0 && len(listings) == q.PageSize {
			break
		}
	}
	return listings, nil
}

// ItemListing converts a feed item into a listing. The id is taken from the
// trailing digits of the GUID or link; numeric fields come from custom item
// elements when present and from the title otherwise.
func ItemListing(item *gofeed.Item) (model.Listing, bool) {
	id, ok := trailingID(item.GUID)
	if !ok {
		id, ok = trailingID(item.Link)
	}
	if !ok {
		return model.Listing{}, false
	}

	l := model.Listing{
		ID:          id,
		URL:         item.Link,
		Description: strings.TrimSpace(item.Description),
	}

	if n, ok := customInt(item, "price"); ok {
		l.Price = n
	} else if m := titlePriceRe.FindStringSubmatch(item.Title); m != nil {
		l.Price, _ = strconv.Atoi(strings.Map(dropSpace, m[1]))
	}

	if n, ok := customInt(item, "rooms"); ok {
		l.Rooms = &n
	} else if m := titleRoomsRe.FindStringSubmatch(item.Title); m != nil {
		n, _ := strconv.Atoi(m[1])
		l.Rooms = &n
	}

	area := customValue(item, "area")
	if area == "" {
		if m := titleAreaRe.FindStringSubmatch(item.Title); m != nil {
			area = m[1]
		}
	}
	if area != "" {
		if v, err := strconv.ParseFloat(strings.Replace(area, ",", ".", 1), 64); err == nil {
			l.Area = &v
		}
	}

	return l, true
}

func trailingID(s string) (int64, bool) {
	m := trailingIDRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func customValue(item *gofeed.Item, key string) string {
	if item.Custom == nil {
		return ""
	}
	return strings.TrimSpace(item.Custom[key])
}

func customInt(item *gofeed.Item, key string) (int, bool) {
	v := strings.Map(dropSpace, customValue(item, key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func dropSpace(r rune) rune {
	if r == ' ' || r == '\u00a0' {
		return -1
	}
	return r
}
