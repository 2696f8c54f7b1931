package cachekey

import (
	"net/http"
	"testing"

	"github.com/rmja/httpcache-fs/internal/variation"
)

func mustRequest(t *testing.T, rawurl string) *http.Request {
	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestComputeKeyStableForEquivalentRequests(t *testing.T) {
	c := NewComputer(false)
	a := mustRequest(t, "HTTP://Example.com/x?b=2&a=1")
	b := mustRequest(t, "http://example.com/x?b=2&a=1")

	ka, ok := c.ComputeKey(a, variation.Neutral())
	if !ok {
		t.Fatal("ComputeKey returned ok=false")
	}
	kb, ok := c.ComputeKey(b, variation.Neutral())
	if !ok {
		t.Fatal("ComputeKey returned ok=false")
	}
	if ka != kb {
		t.Fatalf("keys differ: %q vs %q", ka, kb)
	}
}

func TestComputeKeyDiffersByPath(t *testing.T) {
	c := NewComputer(false)
	a := mustRequest(t, "http://example.com/x")
	b := mustRequest(t, "http://example.com/y")

	ka, _ := c.ComputeKey(a, variation.Neutral())
	kb, _ := c.ComputeKey(b, variation.Neutral())
	if ka == kb {
		t.Fatal("keys for different paths are equal")
	}
}

func TestComputeKeyDefaultPort(t *testing.T) {
	c := NewComputer(false)
	withPort := mustRequest(t, "http://example.com:80/x")
	withoutPort := mustRequest(t, "http://example.com/x")

	k1, _ := c.ComputeKey(withPort, variation.Neutral())
	k2, _ := c.ComputeKey(withoutPort, variation.Neutral())
	if k1 != k2 {
		t.Fatalf("keys differ when only the default port is elided: %q vs %q", k1, k2)
	}
}

func TestComputeKeyPrivateWithoutAuthorizationFails(t *testing.T) {
	c := NewComputer(false)
	req := mustRequest(t, "http://example.com/x")
	_, ok := c.ComputeKey(req, variation.Variation{CacheType: variation.Private})
	if ok {
		t.Fatal("ComputeKey succeeded without an Authorization header")
	}
}

func TestComputeKeyPrivateUsesJWTSubject(t *testing.T) {
	c := NewComputer(false)
	// header/payload of an unsigned JWT with sub=u1 - signature is never
	// checked, only the claims are read.
	token := "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9."

	req1 := mustRequest(t, "http://example.com/x")
	req1.Header.Set("Authorization", "Bearer "+token)
	req2 := mustRequest(t, "http://example.com/x")
	req2.Header.Set("Authorization", "Bearer "+token)

	k1, ok1 := c.ComputeKey(req1, variation.Variation{CacheType: variation.Private})
	k2, ok2 := c.ComputeKey(req2, variation.Variation{CacheType: variation.Private})
	if !ok1 || !ok2 {
		t.Fatal("ComputeKey failed on a valid JWT bearer token")
	}
	if k1 != k2 {
		t.Fatalf("same-subject requests produced different keys: %q vs %q", k1, k2)
	}
}

func TestComputeKeyPrivateDiffersByJWTSubject(t *testing.T) {
	c := NewComputer(false)
	tokenU1 := "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9."
	tokenU2 := "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MiJ9."

	req1 := mustRequest(t, "http://example.com/x")
	req1.Header.Set("Authorization", "Bearer "+tokenU1)
	req2 := mustRequest(t, "http://example.com/x")
	req2.Header.Set("Authorization", "Bearer "+tokenU2)

	k1, _ := c.ComputeKey(req1, variation.Variation{CacheType: variation.Private})
	k2, _ := c.ComputeKey(req2, variation.Variation{CacheType: variation.Private})
	if k1 == k2 {
		t.Fatal("different subjects produced the same key")
	}
}

func TestComputeKeyRequireJWTTokenRejectsOpaqueBearer(t *testing.T) {
	c := NewComputer(true)
	req := mustRequest(t, "http://example.com/x")
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	_, ok := c.ComputeKey(req, variation.Variation{CacheType: variation.Private})
	if ok {
		t.Fatal("ComputeKey succeeded with RequireJWTToken set and an opaque bearer token")
	}
}

func TestComputeKeyIncludesVaryHeaders(t *testing.T) {
	c := NewComputer(false)
	da := mustRequest(t, "http://example.com/x")
	da.Header.Set("Accept-Language", "da")
	en := mustRequest(t, "http://example.com/x")
	en.Header.Set("Accept-Language", "en")

	v := variation.Variation{CacheType: variation.Shared, NormalizedVaryHeaders: []string{"accept-language"}}
	kda, _ := c.ComputeKey(da, v)
	ken, _ := c.ComputeKey(en, v)
	if kda == ken {
		t.Fatal("keys for different Accept-Language values are equal")
	}
}
