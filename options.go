package httpcache

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rmja/httpcache-fs/internal/clock"
)

const (
	// DefaultMaxEntries is the soft capacity bound enforced by purge.
	DefaultMaxEntries = 1000
	// DefaultInitialExpiration is used when a stored response carries no
	// max-age directive.
	DefaultInitialExpiration = 48 * time.Hour
	// DefaultRefreshExpiration is used by RefreshResponse, and by
	// RefreshResponseFor304 when the 304 carries no max-age.
	DefaultRefreshExpiration = 48 * time.Hour
	// DefaultPurgeInterval is how often the store's purge loop runs.
	DefaultPurgeInterval = 5 * time.Minute
)

// config holds a Transport's resolved settings after defaults and Options
// are applied.
type config struct {
	Root              string
	MaxEntries        int
	InitialExpiration time.Duration
	RefreshExpiration time.Duration
	RequireJWTToken   bool
	Logger            zerolog.Logger
	Clock             clock.Clock
	Transport         http.RoundTripper
	PurgeInterval     time.Duration
}

// DefaultRoot returns the default cache root directory used when no root
// directory is supplied explicitly.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "HttpClient.FileCache")
}

func defaultConfig() config {
	return config{
		Root:              DefaultRoot(),
		MaxEntries:        DefaultMaxEntries,
		InitialExpiration: DefaultInitialExpiration,
		RefreshExpiration: DefaultRefreshExpiration,
		RequireJWTToken:   false,
		Logger:            zerolog.Nop(),
		Clock:             clock.Real{},
		Transport:         http.DefaultTransport,
		PurgeInterval:     DefaultPurgeInterval,
	}
}

// Option configures a Transport built by NewTransport.
type Option func(*config)

// WithMaxEntries overrides the soft entry-count capacity enforced by purge.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.MaxEntries = n }
}

// WithInitialExpiration overrides the expiration applied to a stored
// response that carries no Cache-Control max-age.
func WithInitialExpiration(d time.Duration) Option {
	return func(c *config) { c.InitialExpiration = d }
}

// WithRefreshExpiration overrides the expiration applied by RefreshResponse
// and by RefreshResponseFor304 when the 304 carries no max-age.
func WithRefreshExpiration(d time.Duration) Option {
	return func(c *config) { c.RefreshExpiration = d }
}

// WithRequireJWTToken makes the key computer refuse (rather than fall back
// to the raw header value) a private variation whose Authorization bearer
// token does not parse as a JWT.
func WithRequireJWTToken(require bool) Option {
	return func(c *config) { c.RequireJWTToken = require }
}

// WithLogger sets the logger the Transport and its store use.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.Logger = log }
}

// WithClock overrides the Transport's time source, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.Clock = clk }
}

// WithTransport sets the inner http.RoundTripper used for origin sends,
// overriding the default of http.DefaultTransport.
func WithTransport(inner http.RoundTripper) Option {
	return func(c *config) { c.Transport = inner }
}

// WithPurgeInterval overrides how often the store's background purge runs.
// A non-positive interval disables the purge loop entirely; callers must
// then invoke Transport.Purge explicitly.
func WithPurgeInterval(d time.Duration) Option {
	return func(c *config) { c.PurgeInterval = d }
}
