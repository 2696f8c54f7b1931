package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	httpcache "github.com/rmja/httpcache-fs"
)

// cliConfig is the demo proxy's config file shape, loadable via -config.
// Flags passed on the command line override the corresponding fields.
type cliConfig struct {
	Origin            string        `yaml:"origin"`
	Root              string        `yaml:"root"`
	MaxEntries        int           `yaml:"maxEntries"`
	InitialExpiration time.Duration `yaml:"initialExpiration"`
	RefreshExpiration time.Duration `yaml:"refreshExpiration"`
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		MaxEntries:        httpcache.DefaultMaxEntries,
		InitialExpiration: httpcache.DefaultInitialExpiration,
		RefreshExpiration: httpcache.DefaultRefreshExpiration,
	}
}

func loadCLIConfig(filename string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(raw, &cfg)
	return cfg, err
}
