// Package cachekey computes the cache key string for a request/variation
// pair, deriving a stable principal token from the Authorization header
// when the variation requires a private partition.
package cachekey

import (
	"bytes"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rmja/httpcache-fs/internal/variation"
)

// recordSeparator delimits the fields that make up a cache key, per the key
// grammar: method, scheme, host, port, path+query, principal, then one
// entry per vary header.
const recordSeparator = '\x1e'

// Computer computes cache keys for requests.
type Computer struct {
	// RequireJWTToken, when set, makes ComputeKey fail (return ok=false)
	// for a private variation whose Authorization bearer token cannot be
	// parsed as a JWT, instead of falling back to the raw header value.
	RequireJWTToken bool

	bufPool sync.Pool
}

// NewComputer returns a Computer with the given RequireJWTToken policy.
func NewComputer(requireJWTToken bool) *Computer {
	c := &Computer{RequireJWTToken: requireJWTToken}
	c.bufPool.New = func() any { return &bytes.Buffer{} }
	return c
}

// ComputeKey returns the cache key for req under v, or ok=false when a
// private variation's principal cannot be derived (no Authorization header,
// or an unparseable bearer token while RequireJWTToken is set).
func (c *Computer) ComputeKey(req *http.Request, v variation.Variation) (key string, ok bool) {
	buf := c.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufPool.Put(buf)

	buf.WriteString(strings.ToLower(req.Method))
	buf.WriteByte(recordSeparator)
	buf.WriteString(strings.ToLower(req.URL.Scheme))
	buf.WriteByte(recordSeparator)
	buf.WriteString(strings.ToLower(req.URL.Hostname()))
	buf.WriteByte(recordSeparator)
	buf.WriteString(effectivePort(req.URL))
	buf.WriteByte(recordSeparator)
	buf.WriteString(req.URL.RequestURI())
	buf.WriteByte(recordSeparator)

	if v.CacheType == variation.Private {
		principal, derived := derivePrincipal(req, c.RequireJWTToken)
		if !derived {
			return "", false
		}
		buf.WriteString(principal)
	} else {
		buf.WriteByte(0x00)
	}

	for _, name := range v.NormalizedVaryHeaders {
		buf.WriteByte(recordSeparator)
		buf.WriteString(name)
		buf.WriteByte('=')
		values := req.Header.Values(name)
		if len(values) == 0 {
			buf.WriteByte(0x00)
		} else {
			buf.WriteString(sortedJoin(values))
		}
	}

	return buf.String(), true
}

// effectivePort returns the decimal port that would be used for u, applying
// the scheme's default when the URL does not specify one explicitly -
// matching how a URL library reports default ports as concrete values.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		return "443"
	case "http", "ws":
		return "80"
	default:
		return ""
	}
}

func sortedJoin(values []string) string {
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// derivePrincipal extracts a stable principal token from the Authorization
// header: the JWT "sub" claim (prefixed "sub:"), falling back to
// "client_id" (prefixed "client_id:"), falling back to the raw header value
// unless requireJWT is set, in which case an unparseable bearer token
// yields ok=false. A missing Authorization header always yields ok=false.
func derivePrincipal(req *http.Request, requireJWT bool) (principal string, ok bool) {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	if len(auth) >= 7 && strings.EqualFold(auth[:7], "Bearer ") {
		token := strings.TrimSpace(auth[7:])
		if principal, ok := principalFromJWT(token); ok {
			return principal, true
		}
		if requireJWT {
			return "", false
		}
	}
	return auth, true
}

// principalFromJWT extracts a principal token from a JWT's claims without
// verifying its signature: the cache only needs a stable partition key, not
// proof of authenticity, so parsing is intentionally unverified.
func principalFromJWT(token string) (string, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", false
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return "sub:" + sub, true
	}
	if clientID, ok := claims["client_id"].(string); ok && clientID != "" {
		return "client_id:" + clientID, true
	}
	return "", false
}
