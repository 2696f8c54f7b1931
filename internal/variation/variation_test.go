package variation

import (
	"net/http"
	"testing"
)

func mustRequest(t *testing.T, method string) *http.Request {
	req, err := http.NewRequest(method, "http://example.com/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestDeriveNonGetMethod(t *testing.T) {
	req := mustRequest(t, http.MethodPost)
	res := &http.Response{StatusCode: 200, Header: http.Header{}}
	v := Derive(req, res)
	if v.CacheType != None {
		t.Fatalf("CacheType = %v, want None", v.CacheType)
	}
}

func TestDeriveNonSuccessStatus(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	res := &http.Response{StatusCode: 404, Header: http.Header{}}
	v := Derive(req, res)
	if v.CacheType != None {
		t.Fatalf("CacheType = %v, want None", v.CacheType)
	}
}

func TestDeriveNoStoreOnResponse(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Cache-Control": {"no-store"}},
	}
	v := Derive(req, res)
	if v.CacheType != None {
		t.Fatalf("CacheType = %v, want None", v.CacheType)
	}
}

func TestDeriveNoStoreOnRequest(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	req.Header.Set("Cache-Control", "no-store")
	res := &http.Response{StatusCode: 200, Header: http.Header{}}
	v := Derive(req, res)
	if v.CacheType != None {
		t.Fatalf("CacheType = %v, want None", v.CacheType)
	}
}

func TestDerivePrivateDirective(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Cache-Control": {"private"}},
	}
	v := Derive(req, res)
	if v.CacheType != Private {
		t.Fatalf("CacheType = %v, want Private", v.CacheType)
	}
}

func TestDeriveAuthorizationImpliesPrivate(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	req.Header.Set("Authorization", "Bearer abc")
	res := &http.Response{StatusCode: 200, Header: http.Header{}}
	v := Derive(req, res)
	if v.CacheType != Private {
		t.Fatalf("CacheType = %v, want Private", v.CacheType)
	}
}

func TestDeriveAuthorizationWithPublicIsShared(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	req.Header.Set("Authorization", "Bearer abc")
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Cache-Control": {"public"}},
	}
	v := Derive(req, res)
	if v.CacheType != Shared {
		t.Fatalf("CacheType = %v, want Shared", v.CacheType)
	}
}

func TestDeriveDefaultIsShared(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	res := &http.Response{StatusCode: 200, Header: http.Header{}}
	v := Derive(req, res)
	if v.CacheType != Shared {
		t.Fatalf("CacheType = %v, want Shared", v.CacheType)
	}
}

func TestDeriveNormalizesVary(t *testing.T) {
	req := mustRequest(t, http.MethodGet)
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Vary": {"Accept-Language, Accept-Encoding"}},
	}
	v := Derive(req, res)
	want := []string{"accept-encoding", "accept-language"}
	if len(v.NormalizedVaryHeaders) != len(want) {
		t.Fatalf("NormalizedVaryHeaders = %v, want %v", v.NormalizedVaryHeaders, want)
	}
	for i, name := range want {
		if v.NormalizedVaryHeaders[i] != name {
			t.Fatalf("NormalizedVaryHeaders = %v, want %v", v.NormalizedVaryHeaders, want)
		}
	}
}

func TestNeutralIsSharedWithNoVary(t *testing.T) {
	n := Neutral()
	if n.CacheType != Shared || len(n.NormalizedVaryHeaders) != 0 {
		t.Fatalf("Neutral() = %+v", n)
	}
}

func TestEqual(t *testing.T) {
	a := Variation{CacheType: Shared, NormalizedVaryHeaders: []string{"accept-language"}}
	b := Variation{CacheType: Shared, NormalizedVaryHeaders: []string{"accept-language"}}
	c := Variation{CacheType: Private, NormalizedVaryHeaders: []string{"accept-language"}}
	if !a.Equal(b) {
		t.Fatal("a.Equal(b) = false, want true")
	}
	if a.Equal(c) {
		t.Fatal("a.Equal(c) = true, want false")
	}
}

func TestParseCacheType(t *testing.T) {
	for s, want := range map[string]CacheType{"none": None, "shared": Shared, "private": Private} {
		got, err := Parse(s)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := Parse("bogus"); err == nil {
		t.Fatal("Parse(bogus) did not error")
	}
}
