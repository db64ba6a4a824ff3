// Package pagecache serves rendered pages through a popularity-gated cache.
//
// A request is a URL. It is cacheable when it names an item through the
// "item" query parameter, carries no "_" dynamic marker, and the item ranks
// among the most popular. Cacheable responses are stored under a fingerprint
// of the canonical URL for a fixed TTL.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/keyspace"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/metrics"
	"github.com/oriys/storefront/internal/observability"
)

// ErrNoGenerator is returned when a response must be rendered but no
// generator was supplied.
var ErrNoGenerator = errors.New("no page generator")

const (
	itemParam    = "item"
	dynamicParam = "_"
)

// Generator renders the response for a request.
type Generator func(ctx context.Context, request string) ([]byte, error)

// Ranker reports an item's 0-based popularity rank, most popular first.
type Ranker interface {
	Rank(ctx context.Context, item string) (rank int64, ok bool, err error)
}

// Config configures the page cache.
type Config struct {
	TTL          time.Duration
	CacheableTop int64
}

// Cache decides cacheability and serves cached pages.
type Cache struct {
	store  kv.Store
	keys   keyspace.Keys
	ranker Ranker
	cfg    Config
}

// New validates cfg and returns a Cache.
func New(store kv.Store, keys keyspace.Keys, ranker Ranker, cfg Config) (*Cache, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: page cache TTL must be positive", config.ErrInvalid)
	}
	if cfg.CacheableTop <= 0 {
		return nil, fmt.Errorf("%w: cacheable top must be positive", config.ErrInvalid)
	}
	if ranker == nil {
		return nil, fmt.Errorf("%w: page cache requires a ranker", config.ErrInvalid)
	}
	return &Cache{store: store, keys: keys, ranker: ranker, cfg: cfg}, nil
}

// CanCache reports whether request may be served from the cache.
func (c *Cache) CanCache(ctx context.Context, request string) (bool, error) {
	item := ItemID(request)
	if item == "" || IsDynamic(request) {
		return false, nil
	}
	rank, ok, err := c.ranker.Rank(ctx, item)
	if err != nil {
		return false, fmt.Errorf("rank %s: %w", item, err)
	}
	return ok && rank < c.cfg.CacheableTop, nil
}

// Serve returns the response for request. Cacheable requests are answered
// from the cache when possible; a miss renders with gen and stores the
// result. Store failures are returned, never treated as a miss.
func (c *Cache) Serve(ctx context.Context, request string, gen Generator) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "pagecache.serve",
		observability.AttrItem.String(ItemID(request)),
	)
	defer span.End()

	body, result, err := c.serve(ctx, request, gen)
	metrics.RecordPageRequest(result)
	span.SetAttributes(observability.AttrCacheResult.String(result))
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	observability.SetSpanOK(span)
	return body, nil
}

func (c *Cache) serve(ctx context.Context, request string, gen Generator) ([]byte, string, error) {
	cacheable, err := c.CanCache(ctx, request)
	if err != nil {
		return nil, metrics.PageError, err
	}
	if !cacheable {
		body, err := render(ctx, request, gen)
		if err != nil {
			return nil, metrics.PageError, err
		}
		return body, metrics.PageBypass, nil
	}

	key := c.keys.Page(Fingerprint(request))
	body, err := c.store.Get(ctx, key)
	if err == nil {
		return body, metrics.PageHit, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, metrics.PageError, fmt.Errorf("read page cache: %w", err)
	}

	body, err = render(ctx, request, gen)
	if err != nil {
		return nil, metrics.PageError, err
	}
	if err := c.store.Set(ctx, key, body, c.cfg.TTL); err != nil {
		return nil, metrics.PageError, fmt.Errorf("write page cache: %w", err)
	}
	return body, metrics.PageMiss, nil
}

func render(ctx context.Context, request string, gen Generator) ([]byte, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	start := time.Now()
	body, err := gen(ctx, request)
	metrics.RecordRender(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return body, nil
}

// Fingerprint returns a stable cache key for request. Query parameters are
// sorted and the fragment dropped, so equivalent URLs share a fingerprint.
// A request whose query does not parse cleanly is hashed verbatim.
func Fingerprint(request string) string {
	canonical := request
	if u, err := url.Parse(request); err == nil {
		if values, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = values.Encode()
			u.Fragment = ""
			canonical = u.String()
		}
	}
	return strconv.FormatUint(xxhash.Sum64String(canonical), 16)
}

// ItemID returns the item named by request, or "" when there is none or
// the query is malformed.
func ItemID(request string) string {
	values, err := query(request)
	if err != nil {
		return ""
	}
	return values.Get(itemParam)
}

// IsDynamic reports whether request carries the dynamic marker parameter.
// Malformed queries count as dynamic since the marker cannot be ruled out.
func IsDynamic(request string) bool {
	values, err := query(request)
	if err != nil {
		return true
	}
	return values.Has(dynamicParam)
}

func query(request string) (url.Values, error) {
	u, err := url.Parse(request)
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(u.RawQuery)
}
