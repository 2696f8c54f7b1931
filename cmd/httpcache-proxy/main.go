package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"flag"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpcache "github.com/rmja/httpcache-fs"
)

var (
	originFlag         string
	addrFlag           string
	rootFlag           string
	configFlag         string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config file)")
	flag.StringVar(&addrFlag, "addr", ":8080", "Address to listen on")
	flag.StringVar(&rootFlag, "root", "", "Cache root directory (defaults to an OS temp dir)")
	flag.StringVar(&configFlag, "config", "", "Optional YAML config file")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := defaultCLIConfig()
	if configFlag != "" {
		loaded, err := loadCLIConfig(configFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not load config")
		}
		cfg = loaded
	}
	if originFlag != "" {
		cfg.Origin = originFlag
	}
	if rootFlag != "" {
		cfg.Root = rootFlag
	}
	if cfg.Root == "" {
		cfg.Root = httpcache.DefaultRoot()
	}
	if cfg.Origin == "" {
		log.Fatal().Msg("Please specify -origin or an origin in the config file")
	}

	originURL, err := url.Parse(cfg.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	transport := httpcache.NewTransport(cfg.Root,
		httpcache.WithLogger(log.Logger),
		httpcache.WithMaxEntries(cfg.MaxEntries),
		httpcache.WithInitialExpiration(cfg.InitialExpiration),
		httpcache.WithRefreshExpiration(cfg.RefreshExpiration),
	)

	proxy := httputil.NewSingleHostReverseProxy(originURL)
	proxy.Transport = transport

	r := chi.NewRouter()
	r.Get("/debug/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/debug/purge", func(w http.ResponseWriter, req *http.Request) {
		if err := transport.Purge(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/debug/clear", func(w http.ResponseWriter, req *http.Request) {
		if err := transport.Clear(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.NotFound(proxy.ServeHTTP)

	log.Info().Str("origin", cfg.Origin).Str("root", cfg.Root).Msgf("Proxying %s to %s", addrFlag, cfg.Origin)
	if err := http.ListenAndServe(addrFlag, r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
