package httpcache

import (
	"context"
	"net/http"

	"github.com/rmja/httpcache-fs/internal/variation"
)

// CacheType classifies how broadly a served or stored response may be
// shared; see internal/variation.Derive for the classification rules.
type CacheType = variation.CacheType

// Variation is the classification of a cached response that determines
// which cache key it is stored under - its CacheType plus the request
// header names (if any) that partition it. See internal/variation.Derive.
type Variation = variation.Variation

const (
	CacheTypeNone    = variation.None
	CacheTypeShared  = variation.Shared
	CacheTypePrivate = variation.Private
)

type cacheTypeContextKey struct{}

// withCacheType annotates req's context with the CacheType the Transport
// resolved for it - the Go analogue of attaching a value under the
// "HttpClient.Cache.CacheType" request option key.
func withCacheType(req *http.Request, ct CacheType) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), cacheTypeContextKey{}, ct))
}

// CacheTypeFromResponse reports the CacheType the Transport annotated onto
// res's originating request, if any.
func CacheTypeFromResponse(res *http.Response) (CacheType, bool) {
	if res == nil || res.Request == nil {
		return CacheTypeNone, false
	}
	ct, ok := res.Request.Context().Value(cacheTypeContextKey{}).(CacheType)
	return ct, ok
}
