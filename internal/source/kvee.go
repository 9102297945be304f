package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgraph-io/ristretto"
	"golang.org/x/time/rate"

	"kv_bot/internal/model"
)

// DefaultBaseURL is the portal the KVee source talks to.
const DefaultBaseURL = "https://www.kv.ee"

var (
	numberRe = regexp.MustCompile(`\d+`)
	areaRe   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	storyRe  = regexp.MustCompile(`(\d+)\s*/\s*\d+`)
	labelRe  = regexp.MustCompile(`[A-Z]`)
	coordRe  = regexp.MustCompile(`\d{2}\.\d{5,}`)
)

// KVee scrapes search results and listing pages from kv.ee.
// Parsed listing pages are cached so repeated searches only download new ones.
type KVee struct {
	client   HTTPClient
	baseURL  string
	limiter  *rate.Limiter
	cache    *ristretto.Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewKVee creates a KVee source. rps bounds requests per second to the portal.
func NewKVee(client HTTPClient, baseURL string, rps float64, log *slog.Logger) (*KVee, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = 2
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        100000,
		MaxCost:            10000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create listing cache: %w", err)
	}

	return &KVee{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		cache:    cache,
		cacheTTL: 6 * time.Hour,
		log:      log,
	}, nil
}

// Close releases the listing cache.
func (k *KVee) Close() {
	k.cache.Close()
}

// SearchURL returns the search page address for q.
func (k *KVee) SearchURL(q Query) string {
	return k.baseURL + "/?" + q.Values().Encode()
}

// Search downloads the search page for q and then every listing page on it.
// A listing page that cannot be read drops that listing only.
func (k *KVee) Search(ctx context.Context, q Query) ([]model.Listing, error) {
	searchURL := k.SearchURL(q)
	k.log.Debug("searching listings", "url", searchURL)

	body, err := get(ctx, k.client, k.limiter, searchURL)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrUnavailable, err)
	}
	ids, err := parseSearchPage(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	listings := make([]model.Listing, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		l, err := k.listing(ctx, id)
		if err != nil {
			k.log.Warn("fetch listing page", "listing_id", id, "error", err)
			continue
		}
		listings = append(listings, l)
	}

	k.log.Info("search finished", "found", len(ids), "parsed", len(listings))
	return listings, nil
}

func (k *KVee) listing(ctx context.Context, id int64) (model.Listing, error) {
	if v, ok := k.cache.Get(id); ok {
		if l, ok := v.(model.Listing); ok {
			return l, nil
		}
	}

	pageURL := fmt.Sprintf("%s/%d", k.baseURL, id)
	body, err := get(ctx, k.client, k.limiter, pageURL)
	if err != nil {
		return model.Listing{}, err
	}
	l, err := parseListingPage(id, pageURL, body)
	if err != nil {
		return model.Listing{}, err
	}

	k.cache.SetWithTTL(id, l, 1, k.cacheTTL)
	return l, nil
}

func parseSearchPage(body []byte) ([]int64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var ids []int64
	doc.Find("tr.object-item").Each(func(_ int, row *goquery.Selection) {
		raw, ok := row.Attr("id")
		if !ok {
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return
		}
		ids = append(ids, id)
	})
	return ids, nil
}

func parseListingPage(id int64, pageURL string, body []byte) (model.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Listing{}, fmt.Errorf("parse listing page: %w", err)
	}

	l := model.Listing{ID: id, URL: pageURL}

	priceText := doc.Find("div.object-price strong").First().Text()
	if n, ok := firstInt(strings.NewReplacer(" ", "", "\u00a0", "").Replace(priceText)); ok {
		l.Price = n
	}

	doc.Find("table.object-data-meta").Last().Find("tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(row.Find("th").First().Text()))
		val := strings.TrimSpace(row.Find("td").First().Text())
		if key == "" || val == "" {
			return
		}
		applyMetaRow(&l, key, val)
	})

	if href, ok := doc.Find("a.gtm-object-map").First().Attr("href"); ok {
		if c := coordRe.FindAllString(href, 2); len(c) == 2 {
			lat, errLat := strconv.ParseFloat(c[0], 64)
			lon, errLon := strconv.ParseFloat(c[1], 64)
			if errLat == nil && errLon == nil {
				l.Coordinates = &model.Coordinates{Lat: lat, Lon: lon}
			}
		}
	}

	l.Description = strings.TrimSpace(doc.Find("div.object-description").First().Text())
	return l, nil
}

func applyMetaRow(l *model.Listing, key, val string) {
	switch key {
	case "tube":
		if n, ok := firstInt(val); ok {
			l.Rooms = &n
		}
	case "üldpind", "õldpind":
		if m := areaRe.FindString(val); m != "" {
			if f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64); err == nil {
				l.Area = &f
			}
		}
	case "ehitusaasta":
		if n, ok := firstInt(val); ok {
			l.YearBuilt = &n
		}
	case "seisukord":
		if c, ok := model.ParseCondition(val); ok {
			l.Condition = &c
		}
	case "korrus/korruseid":
		if m := storyRe.FindStringSubmatch(val); m != nil {
			n, _ := strconv.Atoi(m[1])
			l.Story = &n
		}
	case "energiamärgis":
		if m := labelRe.FindString(val); m != "" && m != "P" {
			l.EnergyLabel = m
		}
	case "kulud suvel/talvel":
		costs := numberRe.FindAllString(val, -1)
		if len(costs) == 2 {
			summer, _ := strconv.Atoi(costs[0])
			winter, _ := strconv.Atoi(costs[1])
			l.CostSummer = &summer
			l.CostWinter = &winter
		}
	}
}

func firstInt(s string) (int, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
