package httpcache

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rmja/httpcache-fs/internal/cachecontrol"
	"github.com/rmja/httpcache-fs/internal/cachekey"
	"github.com/rmja/httpcache-fs/internal/filestore"
)

// Transport implements http.RoundTripper: the Cache Middleware (C6). It
// decides serve-from-cache vs. forward, sets conditional headers, handles
// 304s, and stores responses, wrapping an inner http.RoundTripper that
// performs the actual origin send.
type Transport struct {
	inner  http.RoundTripper
	facade *facade
	keyer  *cachekey.Computer
	store  *filestore.Store
	log    zerolog.Logger
}

// newStore opens the on-disk store for cfg and starts its purge loop unless
// disabled, shared by NewTransport and NewCache.
func newStore(cfg config) (*filestore.Store, error) {
	store, err := filestore.NewStore(cfg.Root, cfg.MaxEntries, cfg.Clock, cfg.Logger)
	if err != nil {
		return nil, err
	}
	if cfg.PurgeInterval > 0 {
		store.StartPurgeLoop(context.Background(), cfg.PurgeInterval)
	}
	return store, nil
}

// NewTransport returns a Transport rooted at root, an on-disk directory
// holding the cache, configured by opts. It panics if the cache directory
// cannot be created.
func NewTransport(root string, opts ...Option) *Transport {
	cfg := defaultConfig()
	cfg.Root = root
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := newStore(cfg)
	if err != nil {
		panic(err)
	}

	keyer := cachekey.NewComputer(cfg.RequireJWTToken)
	f := newFacade(store, keyer, cfg.Clock, cfg.Logger, cfg.InitialExpiration, cfg.RefreshExpiration)

	return &Transport{
		inner:  cfg.Transport,
		facade: f,
		keyer:  keyer,
		store:  store,
		log:    cfg.Logger,
	}
}

// NewCache returns the Cache Facade (C5) rooted at root, configured by opts,
// for callers that want to query or populate the cache directly without
// routing requests through a Transport's RoundTrip.
func NewCache(root string, opts ...Option) (Cache, error) {
	cfg := defaultConfig()
	cfg.Root = root
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	keyer := cachekey.NewComputer(cfg.RequireJWTToken)
	return newFacade(store, keyer, cfg.Clock, cfg.Logger, cfg.InitialExpiration, cfg.RefreshExpiration), nil
}

// Cache returns the Cache Facade (C5) view of t's underlying store, for
// callers that want to query or populate the cache independently of
// RoundTrip.
func (t *Transport) Cache() Cache {
	return t.facade
}

// KeyComputer returns the Key Computer (C1) t uses to derive cache keys.
func (t *Transport) KeyComputer() KeyComputer {
	return t.keyer
}

// Purge runs the store's capacity eviction, temp-dir cleanup, and orphan
// sweep immediately, outside its periodic schedule.
func (t *Transport) Purge() error {
	return t.store.Purge()
}

// Clear empties the cache.
func (t *Transport) Clear() error {
	return t.store.Clear()
}

// RoundTrip implements the cache middleware's request pipeline: cacheability
// gate, lookup, serve-vs-revalidate, origin send, 304 handling, cache-hit
// invalidation, store.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	reqCC := cachecontrol.Parse(req.Header.Values("Cache-Control"))

	cacheable := (req.Method == http.MethodGet || req.Method == http.MethodHead) && !reqCC.Has("no-cache")

	var cached *CachedResponse
	if cacheable {
		hit, err := t.facade.GetResponseWithVariation(ctx, req)
		if err != nil {
			t.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Cache lookup failed")
		} else {
			cached = hit
		}
	}

	if cached != nil {
		hitCC := cachecontrol.Parse(cached.Response.Header.Values("Cache-Control"))
		switch {
		case hitCC.Has("must-revalidate"):
			req = req.Clone(ctx)
			if etag := cached.Response.Header.Get("ETag"); etag != "" {
				req.Header.Set("If-None-Match", etag)
			} else if lm := cached.Response.Header.Get("Last-Modified"); lm != "" {
				req.Header.Set("If-Modified-Since", lm)
			}
		case hitCC.Has("no-cache"):
			// Fall through to the origin send without conditional headers.
		default:
			if err := t.facade.RefreshResponse(ctx, cached); err != nil {
				t.log.Warn().Err(err).Msg("Could not refresh cache entry")
			}
			res := cached.Response
			res.Request = withCacheType(req, cached.Variation.CacheType)
			return res, nil
		}
	}

	origin, err := t.inner.RoundTrip(req)
	if err != nil {
		if cached != nil {
			cached.Response.Body.Close()
		}
		return nil, err
	}
	origin.Request = req

	if cached != nil && origin.StatusCode == http.StatusNotModified {
		if err := t.facade.RefreshResponseFor304(ctx, cached, origin); err != nil {
			t.log.Warn().Err(err).Msg("Could not refresh cache entry for 304")
		}
		io.Copy(io.Discard, origin.Body)
		origin.Body.Close()

		res := cached.Response
		res.Request = withCacheType(req, cached.Variation.CacheType)
		return res, nil
	}

	if cached != nil {
		cached.Response.Body.Close()
	}

	stored, err := t.facade.SetResponse(ctx, origin)
	if err != nil {
		t.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Could not store response")
	}
	if stored != nil {
		return stored, nil
	}
	return origin, nil
}
