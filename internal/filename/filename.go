// Package filename implements the on-disk filename grammar for cache
// entries: permanent names that encode (keyHash, modifiedUtc, etagHash?)
// plus a kind extension, and temporary UUID-named files used during atomic
// publication. Expiration and LRU position are encoded in the file's
// last-write-time and last-access-time respectively.
package filename

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extension identifies the kind of file a Name refers to.
type Extension string

const (
	ExtResponseMeta Extension = ".response.json"
	ExtResponseBody Extension = ".response.bin"
	ExtVariation    Extension = ".variation.json"
)

// timeLayout matches the grammar's "yyyy-MM-ddTHHmmssZ" block: a UTC,
// second-precision timestamp with a literal trailing "Z".
const timeLayout = "2006-01-02T150405Z"

// Name is a parsed cache filename.
type Name struct {
	// Temporary is true for UUID-named files staged under temp/.
	Temporary bool
	// UUID is set when Temporary is true.
	UUID string

	// KeyHash is the lowercase hex SHA-1 of the cache key string. Set when
	// Temporary is false.
	KeyHash string
	// ModifiedUTC is the response's Last-Modified time (or the time of
	// storage, absent that), at second precision. Set when Temporary is
	// false.
	ModifiedUTC time.Time
	// ETagHash is the lowercase hex SHA-1 of the quoted ETag header value,
	// or "" if the response has no ETag. Only meaningful when Temporary is
	// false.
	ETagHash string

	Ext Extension
}

// HashKey returns the lowercase hex SHA-1 hash of a cache key string.
func HashKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashETag returns the lowercase hex SHA-1 hash of a quoted ETag header
// value, or "" if etag is empty.
func HashETag(etag string) string {
	if etag == "" {
		return ""
	}
	sum := sha1.Sum([]byte(etag))
	return hex.EncodeToString(sum[:])
}

// Metadata builds the permanent Name for a response's metadata file.
func Metadata(key string, modified time.Time, etagHash string) Name {
	return Name{
		KeyHash:     HashKey(key),
		ModifiedUTC: modified.UTC().Truncate(time.Second),
		ETagHash:    etagHash,
		Ext:         ExtResponseMeta,
	}
}

// Variation builds the permanent Name for a variation indirection file.
func Variation(key string, modified time.Time, etagHash string) Name {
	return Name{
		KeyHash:     HashKey(key),
		ModifiedUTC: modified.UTC().Truncate(time.Second),
		ETagHash:    etagHash,
		Ext:         ExtVariation,
	}
}

// Temp builds a new temporary Name for staging a file of the given
// extension under temp/.
func Temp(ext Extension) Name {
	return Name{Temporary: true, UUID: uuid.NewString(), Ext: ext}
}

// ToResponseBodyName returns the body Name (.response.bin) sharing n's
// basename. n must be a metadata Name (.response.json), permanent or
// temporary.
func (n Name) ToResponseBodyName() Name {
	if n.Ext != ExtResponseMeta {
		panic("filename: ToResponseBodyName called on a non-metadata name")
	}
	body := n
	body.Ext = ExtResponseBody
	return body
}

// String formats n per the filename grammar.
func (n Name) String() string {
	if n.Temporary {
		return n.UUID + string(n.Ext)
	}
	s := n.KeyHash + "_" + n.ModifiedUTC.UTC().Format(timeLayout)
	if n.ETagHash != "" {
		s += "_" + n.ETagHash
	}
	return s + string(n.Ext)
}

// Parse parses a basename (no directory components) back into a Name.
func Parse(basename string) (Name, error) {
	ext, base, err := splitExtension(basename)
	if err != nil {
		return Name{}, err
	}

	if len(base) == 36 {
		if id, err := uuid.Parse(base); err == nil {
			return Name{Temporary: true, UUID: id.String(), Ext: ext}, nil
		}
	}

	us := strings.IndexByte(base, '_')
	if us < 0 {
		return Name{}, fmt.Errorf("filename: missing key hash separator in %q", basename)
	}
	keyHash := base[:us]
	rest := base[us+1:]
	if len(rest) < len(timeLayout) {
		return Name{}, fmt.Errorf("filename: truncated timestamp in %q", basename)
	}
	modified, err := time.Parse(timeLayout, rest[:len(timeLayout)])
	if err != nil {
		return Name{}, fmt.Errorf("filename: malformed timestamp in %q: %w", basename, err)
	}
	etagHash := ""
	if remainder := rest[len(timeLayout):]; remainder != "" {
		if remainder[0] != '_' {
			return Name{}, fmt.Errorf("filename: malformed etag section in %q", basename)
		}
		etagHash = remainder[1:]
	}

	return Name{
		KeyHash:     keyHash,
		ModifiedUTC: modified.UTC(),
		ETagHash:    etagHash,
		Ext:         ext,
	}, nil
}

func splitExtension(name string) (Extension, string, error) {
	for _, ext := range []Extension{ExtResponseMeta, ExtResponseBody, ExtVariation} {
		if strings.HasSuffix(name, string(ext)) {
			return ext, strings.TrimSuffix(name, string(ext)), nil
		}
	}
	return "", "", fmt.Errorf("filename: unrecognized extension in %q", name)
}
