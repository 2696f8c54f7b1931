package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rmja/httpcache-fs/internal/cachecontrol"
	"github.com/rmja/httpcache-fs/internal/cachekey"
	"github.com/rmja/httpcache-fs/internal/clock"
	"github.com/rmja/httpcache-fs/internal/filestore"
	"github.com/rmja/httpcache-fs/internal/metrics"
	"github.com/rmja/httpcache-fs/internal/responsecodec"
	"github.com/rmja/httpcache-fs/internal/variation"
)

// Cache is the Cache Facade's external interface (C5): get, get-with-
// variation, set, and the two refresh overloads, independent of the
// RoundTripper-shaped Transport that normally drives them. Obtain one via
// Transport.Cache or the standalone NewCache.
type Cache interface {
	GetResponse(ctx context.Context, req *http.Request) (*http.Response, error)
	GetResponseWithVariation(ctx context.Context, req *http.Request) (*CachedResponse, error)
	SetResponse(ctx context.Context, res *http.Response) (*http.Response, error)
	RefreshResponse(ctx context.Context, cached *CachedResponse) error
	RefreshResponseFor304(ctx context.Context, cached *CachedResponse, notModified *http.Response) error
}

// KeyComputer is the Key Computer's external interface (C1): derive the
// cache key string for a request under a given Variation. Obtain one via
// Transport.KeyComputer.
type KeyComputer interface {
	ComputeKey(req *http.Request, v Variation) (string, bool)
}

var (
	_ Cache       = (*facade)(nil)
	_ KeyComputer = (*cachekey.Computer)(nil)
)

// CachedResponse is a cache hit: the reconstructed response, the variation
// that classified it, and enough bookkeeping to refresh the right on-disk
// file(s) later via RefreshResponse.
type CachedResponse struct {
	Response  *http.Response
	Variation variation.Variation

	entryPath    string // K1 file, always set
	responsePath string // K2 file, set only when entryPath names a variation indirection
}

// facade implements the Cache Facade (C5): get, get-with-variation, set,
// and refresh, composing the key computer and the file store.
type facade struct {
	store             *filestore.Store
	keyer             *cachekey.Computer
	clock             clock.Clock
	log               zerolog.Logger
	initialExpiration time.Duration
	refreshExpiration time.Duration
}

func newFacade(store *filestore.Store, keyer *cachekey.Computer, clk clock.Clock, log zerolog.Logger, initialExpiration, refreshExpiration time.Duration) *facade {
	return &facade{
		store:             store,
		keyer:             keyer,
		clock:             clk,
		log:               log,
		initialExpiration: initialExpiration,
		refreshExpiration: refreshExpiration,
	}
}

// GetResponseWithVariation resolves the two-level lookup for req: first the
// entry key K1 (neutral variation); if K1 names a variation indirection,
// the response key K2 computed from the loaded Variation.
func (f *facade) GetResponseWithVariation(ctx context.Context, req *http.Request) (*CachedResponse, error) {
	k1, ok := f.keyer.ComputeKey(req, variation.Neutral())
	if !ok {
		return nil, nil
	}

	hit, err := f.store.Lookup(k1)
	if err != nil {
		return nil, err
	}

	switch hit.Kind {
	case filestore.KindResponse:
		res, err := hit.Response.Meta.NewResponse(req, hit.Response.Body)
		if err != nil {
			return nil, err
		}
		metrics.Hits.WithLabelValues("direct").Inc()
		return &CachedResponse{
			Response:  res,
			Variation: variation.Neutral(),
			entryPath: hit.Path,
		}, nil

	case filestore.KindVariation:
		if err := f.store.TouchAccess(hit.Path); err != nil {
			f.log.Trace().Err(err).Str("path", hit.Path).Msg("Could not refresh variation access time")
		}

		loadedType, err := variation.Parse(hit.Variation.Meta.CacheType)
		if err != nil {
			f.log.Warn().Err(err).Str("path", hit.Path).Msg("Corrupt variation cache type")
			return nil, nil
		}
		loadedVariation := variation.Variation{
			CacheType:             loadedType,
			NormalizedVaryHeaders: hit.Variation.Meta.NormalizedVaryHeaders,
		}

		k2, ok := f.keyer.ComputeKey(req, loadedVariation)
		if !ok {
			return nil, nil
		}
		hit2, err := f.store.Lookup(k2)
		if err != nil {
			return nil, err
		}
		if hit2.Kind != filestore.KindResponse {
			metrics.Misses.Inc()
			return nil, nil
		}
		res, err := hit2.Response.Meta.NewResponse(req, hit2.Response.Body)
		if err != nil {
			return nil, err
		}
		metrics.Hits.WithLabelValues("variation").Inc()
		return &CachedResponse{
			Response:     res,
			Variation:    loadedVariation,
			entryPath:    hit.Path,
			responsePath: hit2.Path,
		}, nil

	default:
		metrics.Misses.Inc()
		return nil, nil
	}
}

// GetResponse is GetResponseWithVariation without the Variation metadata.
func (f *facade) GetResponse(ctx context.Context, req *http.Request) (*http.Response, error) {
	cached, err := f.GetResponseWithVariation(ctx, req)
	if err != nil || cached == nil {
		return nil, err
	}
	return cached.Response, nil
}

// SetResponse decides whether res is cacheable and, if so, publishes it
// (directly under K1 for an unvaried shared response, or under K2 with a
// K1 variation indirection otherwise), returning the stored response with
// a fresh, readable body. It returns (nil, nil) when res is not cacheable
// or no key could be derived.
func (f *facade) SetResponse(ctx context.Context, res *http.Response) (*http.Response, error) {
	if res.Request == nil {
		return nil, fmt.Errorf("httpcache: response has no originating request")
	}
	req := res.Request

	v := variation.Derive(req, res)
	if v.CacheType == variation.None {
		return nil, nil
	}

	k1, ok := f.keyer.ComputeKey(req, variation.Neutral())
	if !ok {
		return nil, nil
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	res.Body.Close()

	meta := responsecodec.EncodeResponse(res)
	modified := f.responseModified(res)
	etag := res.Header.Get("ETag")
	expires := f.responseExpiration(res)

	if v.CacheType == variation.Shared && len(v.NormalizedVaryHeaders) == 0 {
		if _, err := f.store.PublishResponse(k1, meta, bytes.NewReader(bodyBytes), modified, etag, expires); err != nil {
			res.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			return nil, err
		}
		res.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		return res, nil
	}

	k2, ok := f.keyer.ComputeKey(req, v)
	if !ok {
		res.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		return nil, nil
	}
	if _, err := f.store.PublishResponse(k2, meta, bytes.NewReader(bodyBytes), modified, etag, expires); err != nil {
		res.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		return nil, err
	}

	variationMeta := responsecodec.VariationMeta{
		Key:                   k1,
		CacheType:             v.CacheType.String(),
		NormalizedVaryHeaders: v.NormalizedVaryHeaders,
	}
	if _, err := f.store.PublishVariation(k1, variationMeta, modified, expires); err != nil {
		f.log.Warn().Err(err).Msg("Could not publish variation indirection")
	}

	res.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return res, nil
}

// RefreshResponse sets cached's expiration to now + DefaultRefreshExpiration.
func (f *facade) RefreshResponse(ctx context.Context, cached *CachedResponse) error {
	return f.refresh(cached, f.clock.Now().Add(f.refreshExpiration))
}

// RefreshResponseFor304 sets cached's expiration from notModified's
// max-age, falling back to DefaultRefreshExpiration. notModified must be a
// 304, or ErrInvalidArgument is returned.
func (f *facade) RefreshResponseFor304(ctx context.Context, cached *CachedResponse, notModified *http.Response) error {
	if notModified == nil || notModified.StatusCode != http.StatusNotModified {
		return ErrInvalidArgument
	}
	expiration := f.clock.Now().Add(f.refreshExpiration)
	if maxAge, ok := cachecontrol.Parse(notModified.Header.Values("Cache-Control")).MaxAge(); ok {
		expiration = f.clock.Now().Add(maxAge)
	}
	return f.refresh(cached, expiration)
}

func (f *facade) refresh(cached *CachedResponse, expiration time.Time) error {
	if cached == nil {
		return nil
	}
	if err := f.store.RefreshPath(cached.entryPath, expiration); err != nil {
		return err
	}
	if cached.responsePath != "" {
		if err := f.store.RefreshPath(cached.responsePath, expiration); err != nil {
			return err
		}
	}
	return nil
}

func (f *facade) responseModified(res *http.Response) time.Time {
	if lm := res.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			return t.UTC()
		}
	}
	return f.clock.Now()
}

func (f *facade) responseExpiration(res *http.Response) time.Time {
	cc := cachecontrol.Parse(res.Header.Values("Cache-Control"))
	if maxAge, ok := cc.MaxAge(); ok {
		return f.clock.Now().Add(maxAge)
	}
	return f.clock.Now().Add(f.initialExpiration)
}
