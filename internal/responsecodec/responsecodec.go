// Package responsecodec serializes and deserializes the persisted form of a
// cached response and its variation indirection record, as ordered header
// lists in camelCase JSON, per the on-disk metadata format.
package responsecodec

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// HeaderField is one header field name with its (possibly multiple) values,
// preserving insertion order - both of the field itself among its siblings
// and of the values within it.
type HeaderField struct {
	Key   string   `json:"key"`
	Value []string `json:"value"`
}

// ResponseMeta is the persisted metadata of a cached response; its body is
// stored separately.
type ResponseMeta struct {
	URL             string        `json:"url"`
	Version         string        `json:"version"`
	StatusCode      int           `json:"statusCode"`
	ReasonPhrase    string        `json:"reasonPhrase"`
	ResponseHeaders []HeaderField `json:"responseHeaders"`
	ContentHeaders  []HeaderField `json:"contentHeaders"`
	TrailingHeaders []HeaderField `json:"trailingHeaders"`
}

// VariationMeta is the persisted variation indirection record.
type VariationMeta struct {
	Key                   string   `json:"key"`
	CacheType             string   `json:"cacheType"`
	NormalizedVaryHeaders []string `json:"normalizedVaryHeaders"`
}

// contentHeaderNames mirrors the split between "content" headers (those
// describing the representation itself) and general response headers that
// HTTP client libraries commonly draw between Content.Headers and
// Response.Headers.
var contentHeaderNames = map[string]bool{
	"Allow":                true,
	"Content-Disposition":  true,
	"Content-Encoding":     true,
	"Content-Language":     true,
	"Content-Length":       true,
	"Content-Location":     true,
	"Content-MD5":          true,
	"Content-Range":        true,
	"Content-Type":         true,
	"Expires":              true,
	"Last-Modified":        true,
}

// EncodeResponse builds the persisted ResponseMeta for res. The caller is
// responsible for persisting res.Body separately.
func EncodeResponse(res *http.Response) ResponseMeta {
	meta := ResponseMeta{
		Version:      res.Proto,
		StatusCode:   res.StatusCode,
		ReasonPhrase: strings.TrimSpace(strings.TrimPrefix(res.Status, fmt.Sprint(res.StatusCode))),
	}
	if res.Request != nil && res.Request.URL != nil {
		meta.URL = res.Request.URL.String()
	}
	for key, values := range res.Header {
		field := HeaderField{Key: key, Value: values}
		if contentHeaderNames[http.CanonicalHeaderKey(key)] {
			meta.ContentHeaders = append(meta.ContentHeaders, field)
		} else {
			meta.ResponseHeaders = append(meta.ResponseHeaders, field)
		}
	}
	for key, values := range res.Trailer {
		meta.TrailingHeaders = append(meta.TrailingHeaders, HeaderField{Key: key, Value: values})
	}
	// net/http has already discarded the wire order by the time res.Header is
	// populated, so range-over-map order is the only order available here.
	// Sort by canonical name instead, so re-encoding the same response twice
	// is at least stable - matching what http.Header.Write's headerSorter
	// does for the outgoing wire order.
	sortHeaderFields(meta.ResponseHeaders)
	sortHeaderFields(meta.ContentHeaders)
	sortHeaderFields(meta.TrailingHeaders)
	return meta
}

func sortHeaderFields(fields []HeaderField) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
}

// NewResponse reconstructs an *http.Response from meta and body, attaching
// req as the response's originating request.
func (meta ResponseMeta) NewResponse(req *http.Request, body io.ReadCloser) (*http.Response, error) {
	major, minor, ok := http.ParseHTTPVersion(meta.Version)
	if !ok {
		major, minor = 1, 1
	}
	header := make(http.Header)
	for _, field := range meta.ResponseHeaders {
		header[http.CanonicalHeaderKey(field.Key)] = field.Value
	}
	for _, field := range meta.ContentHeaders {
		header[http.CanonicalHeaderKey(field.Key)] = field.Value
	}
	var trailer http.Header
	if len(meta.TrailingHeaders) > 0 {
		trailer = make(http.Header)
		for _, field := range meta.TrailingHeaders {
			trailer[http.CanonicalHeaderKey(field.Key)] = field.Value
		}
	}
	res := &http.Response{
		Status:     fmt.Sprintf("%d %s", meta.StatusCode, meta.ReasonPhrase),
		StatusCode: meta.StatusCode,
		Proto:      meta.Version,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     header,
		Trailer:    trailer,
		Body:       body,
		Request:    req,
	}
	return res, nil
}

// WriteResponseMeta JSON-encodes meta to w.
func WriteResponseMeta(w io.Writer, meta ResponseMeta) error {
	return json.NewEncoder(w).Encode(meta)
}

// ReadResponseMeta JSON-decodes a ResponseMeta from r.
func ReadResponseMeta(r io.Reader) (ResponseMeta, error) {
	var meta ResponseMeta
	err := json.NewDecoder(r).Decode(&meta)
	return meta, err
}

// WriteVariationMeta JSON-encodes meta to w.
func WriteVariationMeta(w io.Writer, meta VariationMeta) error {
	return json.NewEncoder(w).Encode(meta)
}

// ReadVariationMeta JSON-decodes a VariationMeta from r.
func ReadVariationMeta(r io.Reader) (VariationMeta, error) {
	var meta VariationMeta
	err := json.NewDecoder(r).Decode(&meta)
	return meta, err
}
