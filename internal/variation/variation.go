// Package variation classifies an HTTP response into a cache type and the
// set of request header fields a cache must vary its key on to serve it
// correctly.
package variation

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rmja/httpcache-fs/internal/cachecontrol"
)

// CacheType classifies how broadly a cached response may be shared.
type CacheType int

const (
	// None means the response is not cacheable at all.
	None CacheType = iota
	// Shared means the response may be served to any requester.
	Shared
	// Private means the response may only be served to the principal that
	// originally requested it.
	Private
)

func (c CacheType) String() string {
	switch c {
	case None:
		return "none"
	case Shared:
		return "shared"
	case Private:
		return "private"
	default:
		return "unknown"
	}
}

// Parse parses the on-disk/JSON string form of a CacheType.
func Parse(s string) (CacheType, error) {
	switch s {
	case "none":
		return None, nil
	case "shared":
		return Shared, nil
	case "private":
		return Private, nil
	default:
		return None, fmt.Errorf("variation: unknown cache type %q", s)
	}
}

// Variation is the classification of a response: its CacheType and the
// normalized set of request header names a cache must key on.
type Variation struct {
	CacheType             CacheType
	NormalizedVaryHeaders []string
}

// Neutral is the variation used to compute the entry key K1: Shared with no
// vary headers.
func Neutral() Variation {
	return Variation{CacheType: Shared}
}

// Equal reports whether v and other are structurally equal.
func (v Variation) Equal(other Variation) bool {
	if v.CacheType != other.CacheType {
		return false
	}
	if len(v.NormalizedVaryHeaders) != len(other.NormalizedVaryHeaders) {
		return false
	}
	for i, name := range v.NormalizedVaryHeaders {
		if other.NormalizedVaryHeaders[i] != name {
			return false
		}
	}
	return true
}

// Derive classifies res (which must have its originating request attached
// via res.Request) into a Variation.
//
// Derivation happens only for GET/HEAD with a 2xx status and no no-store in
// request or response; a response yields None when it is not cacheable,
// Private when the response declares Cache-Control: private or the request
// bears Authorization and the response does not assert Cache-Control:
// public, and Shared otherwise.
func Derive(req *http.Request, res *http.Response) Variation {
	if req == nil || res == nil {
		return Variation{CacheType: None}
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return Variation{CacheType: None}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Variation{CacheType: None}
	}

	reqCC := cachecontrol.Parse(req.Header.Values("Cache-Control"))
	resCC := cachecontrol.Parse(res.Header.Values("Cache-Control"))
	if reqCC.Has("no-store") || resCC.Has("no-store") {
		return Variation{CacheType: None}
	}

	var cacheType CacheType
	switch {
	case resCC.Has("private"):
		cacheType = Private
	case req.Header.Get("Authorization") != "" && !resCC.Has("public"):
		cacheType = Private
	default:
		cacheType = Shared
	}

	return Variation{
		CacheType:             cacheType,
		NormalizedVaryHeaders: normalizeVary(res.Header.Values("Vary")),
	}
}

// normalizeVary lowercases and byte-wise sorts the names in one or more Vary
// header field lines.
func normalizeVary(values []string) []string {
	var names []string
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
