// Package filestore implements the two-level on-disk cache engine: atomic
// publication of (metadata, body) pairs and variation indirection records,
// lookup by key with expiration-on-read, capacity-bounded eviction, and
// crash-safe cleanup of orphaned bodies.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rmja/httpcache-fs/internal/clock"
	"github.com/rmja/httpcache-fs/internal/filename"
	"github.com/rmja/httpcache-fs/internal/metrics"
	"github.com/rmja/httpcache-fs/internal/responsecodec"
)

// Kind tags the result of a Lookup.
type Kind int

const (
	KindNotFound Kind = iota
	KindResponse
	KindVariation
)

// ResponseHit is the payload of a KindResponse lookup result.
type ResponseHit struct {
	Meta responsecodec.ResponseMeta
	Body io.ReadCloser
}

// VariationHit is the payload of a KindVariation lookup result.
type VariationHit struct {
	Meta responsecodec.VariationMeta
}

// LookupResult is the tagged union returned by Lookup.
type LookupResult struct {
	Kind Kind
	// Path is the absolute path of the winning permanent file, usable with
	// RefreshPath and DeletePath.
	Path      string
	Response  ResponseHit
	Variation VariationHit
}

// Store is the on-disk cache engine rooted at a single directory.
type Store struct {
	root       string
	tempDir    string
	maxEntries int
	clock      clock.Clock
	log        zerolog.Logger
}

// NewStore opens (creating if necessary) a Store rooted at root, with
// root/temp/ as its staging area on the same volume as root so that renames
// are atomic.
func NewStore(root string, maxEntries int, clk clock.Clock, log zerolog.Logger) (*Store, error) {
	tempDir := filepath.Join(root, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: could not create temp dir: %w", err)
	}
	return &Store{
		root:       root,
		tempDir:    tempDir,
		maxEntries: maxEntries,
		clock:      clk,
		log:        log,
	}, nil
}

// Lookup finds the permanent entry for key, selecting the lexicographically
// greatest (newest) candidate among {hash}_*.json files and skipping
// unparseable ones. An expired candidate is deleted and reported as
// KindNotFound.
func (s *Store) Lookup(key string) (LookupResult, error) {
	hash := filename.HashKey(key)
	matches, err := filepath.Glob(filepath.Join(s.root, hash+"_*.json"))
	if err != nil {
		return LookupResult{}, err
	}
	sort.Strings(matches)

	var best string
	var bestName filename.Name
	var sawResponse, sawVariation bool
	for i := len(matches) - 1; i >= 0; i-- {
		name, err := filename.Parse(filepath.Base(matches[i]))
		if err != nil {
			s.log.Trace().Err(err).Str("path", matches[i]).Msg("Skipping corrupt filename")
			continue
		}
		switch name.Ext {
		case filename.ExtResponseMeta:
			sawResponse = true
		case filename.ExtVariation:
			sawVariation = true
		}
		if best == "" {
			best, bestName = matches[i], name
		}
	}
	if sawResponse && sawVariation {
		s.log.Error().Str("keyHash", hash).Msg("Both a response and a variation entry exist for the same key hash")
	}
	if best == "" {
		return LookupResult{Kind: KindNotFound}, nil
	}

	expiration, err := filename.GetExpiration(best)
	if err != nil {
		s.log.Trace().Err(err).Str("path", best).Msg("Could not stat candidate entry")
		return LookupResult{Kind: KindNotFound}, nil
	}
	if !expiration.After(s.clock.Now()) {
		metrics.Expirations.Inc()
		s.deletePermanent(bestName)
		return LookupResult{Kind: KindNotFound}, nil
	}

	switch bestName.Ext {
	case filename.ExtResponseMeta:
		return s.loadResponse(best, bestName)
	case filename.ExtVariation:
		return s.loadVariation(best)
	default:
		return LookupResult{Kind: KindNotFound}, nil
	}
}

func (s *Store) loadResponse(metaPath string, name filename.Name) (LookupResult, error) {
	f, err := os.Open(metaPath)
	if err != nil {
		return LookupResult{Kind: KindNotFound}, nil
	}
	defer f.Close()

	meta, err := responsecodec.ReadResponseMeta(f)
	if err != nil {
		s.log.Trace().Err(err).Str("path", metaPath).Msg("Corrupt response metadata")
		return LookupResult{Kind: KindNotFound}, nil
	}

	bodyPath := filepath.Join(filepath.Dir(metaPath), name.ToResponseBodyName().String())
	body, err := os.Open(bodyPath)
	if err != nil {
		// A metadata file without a body violates the store's invariant;
		// treat it as absent rather than serving a bodyless response.
		s.log.Trace().Err(err).Str("path", bodyPath).Msg("Metadata present without body")
		return LookupResult{Kind: KindNotFound}, nil
	}

	return LookupResult{Kind: KindResponse, Path: metaPath, Response: ResponseHit{Meta: meta, Body: body}}, nil
}

func (s *Store) loadVariation(path string) (LookupResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LookupResult{Kind: KindNotFound}, nil
	}
	defer f.Close()

	meta, err := responsecodec.ReadVariationMeta(f)
	if err != nil {
		s.log.Trace().Err(err).Str("path", path).Msg("Corrupt variation metadata")
		return LookupResult{Kind: KindNotFound}, nil
	}

	return LookupResult{Kind: KindVariation, Path: path, Variation: VariationHit{Meta: meta}}, nil
}

// PublishResponse atomically publishes a response's body and metadata under
// key, expiring at expires. The body is published before the metadata so
// that any observer that can see the metadata can also open the body.
func (s *Store) PublishResponse(key string, meta responsecodec.ResponseMeta, body io.Reader, modified time.Time, etag string, expires time.Time) (filename.Name, error) {
	tempBody := filename.Temp(filename.ExtResponseBody)
	tempMeta := filename.Temp(filename.ExtResponseMeta)
	tempMeta.UUID = tempBody.UUID // keep the staged pair's basenames aligned

	tempBodyPath := filepath.Join(s.tempDir, tempBody.String())
	tempMetaPath := filepath.Join(s.tempDir, tempMeta.String())

	if err := writeFile(tempBodyPath, body); err != nil {
		return filename.Name{}, fmt.Errorf("filestore: could not stage body: %w", err)
	}
	if err := writeJSON(tempMetaPath, func(w io.Writer) error { return responsecodec.WriteResponseMeta(w, meta) }); err != nil {
		os.Remove(tempBodyPath)
		return filename.Name{}, fmt.Errorf("filestore: could not stage metadata: %w", err)
	}
	if err := filename.SetExpiration(tempMetaPath, expires); err != nil {
		s.log.Warn().Err(err).Msg("Could not set expiration on staged metadata")
	}

	permanent := filename.Metadata(key, modified, filename.HashETag(etag))
	permanentBody := permanent.ToResponseBodyName()

	if err := os.Rename(tempBodyPath, filepath.Join(s.root, permanentBody.String())); err != nil {
		s.log.Trace().Err(err).Msg("Body publish race; leaving staged pair for next purge")
		return filename.Name{}, err
	}
	if err := os.Rename(tempMetaPath, filepath.Join(s.root, permanent.String())); err != nil {
		s.log.Trace().Err(err).Msg("Metadata publish race; leaving staged pair for next purge")
		return filename.Name{}, err
	}

	metrics.Stores.Inc()
	return permanent, nil
}

// PublishVariation atomically publishes a variation indirection record
// under key, expiring at expires (matching the response it refers to).
func (s *Store) PublishVariation(key string, meta responsecodec.VariationMeta, modified time.Time, expires time.Time) (filename.Name, error) {
	temp := filename.Temp(filename.ExtVariation)
	tempPath := filepath.Join(s.tempDir, temp.String())

	if err := writeJSON(tempPath, func(w io.Writer) error { return responsecodec.WriteVariationMeta(w, meta) }); err != nil {
		return filename.Name{}, fmt.Errorf("filestore: could not stage variation: %w", err)
	}
	if err := filename.SetExpiration(tempPath, expires); err != nil {
		s.log.Warn().Err(err).Msg("Could not set expiration on staged variation")
	}

	permanent := filename.Variation(key, modified, "")
	if err := os.Rename(tempPath, filepath.Join(s.root, permanent.String())); err != nil {
		s.log.Trace().Err(err).Msg("Variation publish race; leaving staged file for next purge")
		return filename.Name{}, err
	}
	return permanent, nil
}

// RefreshPath touches path's last-access time to now and sets its
// last-write time (expiration) to newExpiration. No file move.
func (s *Store) RefreshPath(path string, newExpiration time.Time) error {
	if err := filename.Refresh(path, s.clock.Now()); err != nil {
		return err
	}
	return filename.SetExpiration(path, newExpiration)
}

// TouchAccess updates path's last-access time to now without touching its
// expiration, for the variation-indirection hop of a lookup.
func (s *Store) TouchAccess(path string) error {
	return filename.Refresh(path, s.clock.Now())
}

// DeletePath deletes the permanent entry at path (and its body, for a
// response metadata path), tolerating failures per the store's delete
// protocol.
func (s *Store) DeletePath(path string) {
	name, err := filename.Parse(filepath.Base(path))
	if err != nil {
		s.deleteFile(path, "unknown")
		return
	}
	s.deletePermanent(name)
}

func (s *Store) deletePermanent(name filename.Name) {
	s.deleteFile(filepath.Join(s.root, name.String()), "metadata")
	if name.Ext == filename.ExtResponseMeta {
		s.deleteFile(filepath.Join(s.root, name.ToResponseBodyName().String()), "body")
	}
}

func (s *Store) deleteFile(path, kind string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Trace().Err(err).Str("path", path).Str("kind", kind).Msg("Could not remove file")
	}
}

// Purge enforces the soft MaxEntries capacity, clears temp/, and sweeps
// orphaned bodies. It is run on demand and on a periodic timer started by
// StartPurgeLoop.
func (s *Store) Purge() error {
	if err := s.evictOverCapacity(); err != nil {
		s.log.Warn().Err(err).Msg("Eviction pass failed")
	}
	s.clearTemp()
	s.sweepOrphans()
	s.updateEntryGauge()
	return nil
}

func (s *Store) evictOverCapacity() error {
	paths, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err != nil {
		return err
	}

	type scored struct {
		path   string
		access time.Time
	}
	scoredEntries := make([]scored, 0, len(paths))
	for _, path := range paths {
		access, err := filename.GetAccessTime(path)
		if err != nil {
			continue
		}
		scoredEntries = append(scoredEntries, scored{path, access})
	}
	sort.Slice(scoredEntries, func(i, j int) bool {
		return scoredEntries[i].access.After(scoredEntries[j].access)
	})
	if len(scoredEntries) <= s.maxEntries {
		return nil
	}
	for _, e := range scoredEntries[s.maxEntries:] {
		name, err := filename.Parse(filepath.Base(e.path))
		if err != nil {
			continue
		}
		s.deletePermanent(name)
		metrics.Evictions.Inc()
	}
	return nil
}

func (s *Store) clearTemp() {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not list temp directory")
		return
	}
	for _, e := range entries {
		path := filepath.Join(s.tempDir, e.Name())
		if err := os.Remove(path); err != nil {
			s.log.Trace().Err(err).Str("path", path).Msg("Could not remove straggling temp file")
		}
	}
}

func (s *Store) sweepOrphans() {
	bodies, err := filepath.Glob(filepath.Join(s.root, "*"+string(filename.ExtResponseBody)))
	if err != nil {
		return
	}
	for _, bodyPath := range bodies {
		metaPath := strings.TrimSuffix(bodyPath, string(filename.ExtResponseBody)) + string(filename.ExtResponseMeta)
		if _, err := os.Stat(metaPath); os.IsNotExist(err) {
			if rmErr := os.Remove(bodyPath); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.Trace().Err(rmErr).Str("path", bodyPath).Msg("Could not remove orphan body")
			} else {
				metrics.Orphans.Inc()
			}
		}
	}
}

func (s *Store) updateEntryGauge() {
	entries, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err == nil {
		metrics.Entries.Set(float64(len(entries)))
	}
}

// Clear deletes every metadata and variation file, then sweeps orphans.
func (s *Store) Clear() error {
	paths, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		name, err := filename.Parse(filepath.Base(path))
		if err != nil {
			continue
		}
		s.deletePermanent(name)
	}
	s.sweepOrphans()
	s.updateEntryGauge()
	return nil
}

// StartPurgeLoop runs Purge on the given interval until ctx is done.
func (s *Store) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Purge(); err != nil {
					s.log.Warn().Err(err).Msg("Periodic purge failed")
				}
			}
		}
	}()
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func writeJSON(path string, encode func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return encode(f)
}
