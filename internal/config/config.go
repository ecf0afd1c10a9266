// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"os"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/logger"
	"github.com/DylanMunyard/bf1942-stats-sub007/internal/vars"
	"github.com/jessevdk/go-flags"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Poll    Poll          `group:"Polling Options" namespace:"poll" env-namespace:"BFSTATS_POLL"`
	Storage Storage       `group:"Storage Options" namespace:"db" env-namespace:"BFSTATS_DB"`
	Geo     Geo           `group:"Geolocation Options" namespace:"geo" env-namespace:"BFSTATS_GEO"`
	Sweep   Sweep         `group:"Sweep Options" namespace:"sweep" env-namespace:"BFSTATS_SWEEP"`
	Logger  logger.Config `group:"Logger Options" namespace:"log" env-namespace:"BFSTATS_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Poll holds server-list polling configuration.
type Poll struct {
	// betteralign:ignore

	APIBase  string        `long:"api-base" env:"API_BASE" description:"Server-list API base URL" default:"https://api.bflist.io"`
	Games    []string      `short:"G" long:"game" env:"GAMES" description:"Game variants to poll" default:"bf1942" default:"fh2" default:"bfvietnam" env-delim:","`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Poll cycle interval" default:"15s"`
	Timeout  time.Duration `long:"timeout" env:"TIMEOUT" description:"Server-list fetch timeout" default:"10s"`
}

// Storage holds database configuration and one-shot maintenance flags.
type Storage struct {
	// betteralign:ignore

	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"bfstats.db"`
	CloseIdle     bool   `long:"close-idle-sessions" description:"Run the idle-session sweep once and exit"`
	MarkOffline   bool   `long:"mark-offline" description:"Run the offline-server sweep once and exit"`
	PruneEmpty    bool   `long:"prune-empty-servers" description:"Delete servers that never reported a name, then exit"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// Geo holds reverse-geolocation configuration.
type Geo struct {
	// betteralign:ignore

	URL           string        `long:"url" env:"URL" description:"Reverse-geolocation lookup base URL" default:"http://ip-api.com/json"`
	MMDBPath      string        `long:"mmdb-path" env:"MMDB_PATH" description:"Path to local MMDB fallback database" default:"bfstats.mmdb"`
	MMDBURL       string        `long:"mmdb-url" env:"MMDB_URL" description:"URL to download the MMDB fallback (empty disables)" default:"https://git.io/GeoLite2-City.mmdb"`
	MMDBInterval  time.Duration `long:"mmdb-interval" env:"MMDB_INTERVAL" description:"MMDB update interval check" default:"24h"`
	MinInterval   time.Duration `long:"min-interval" env:"MIN_INTERVAL" description:"Minimum spacing between lookup calls" default:"1500ms"`
	Timeout       time.Duration `long:"timeout" env:"TIMEOUT" description:"Lookup timeout" default:"5s"`
	MaxConcurrent int           `long:"max-concurrent" env:"MAX_CONCURRENT" description:"Max concurrent lookup calls" default:"2"`
	Disable       bool          `long:"disable" env:"DISABLE" description:"Disable geolocation enrichment entirely"`
}

// Sweep holds idle/offline sweep configuration.
type Sweep struct {
	// betteralign:ignore

	Interval      time.Duration `long:"interval" env:"INTERVAL" description:"How often the sweeps run" default:"1m"`
	IdleWindow    time.Duration `long:"idle-window" env:"IDLE_WINDOW" description:"Close sessions unseen for this long" default:"5m"`
	OfflineWindow time.Duration `long:"offline-window" env:"OFFLINE_WINDOW" description:"Mark servers offline after this long" default:"5m"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return &cfg
}
