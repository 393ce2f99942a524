// Package config loads the settings of the credentials node. Values are
// applied in layers, each one overriding the previous: defaults, the TOML
// file, the .env file and process environment (VOCDONI_CREDENTIALS_*), and
// finally the command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/vocdoni-credentials/log"
)

// EnvPrefix prefixes every environment variable read by Load. The rest of
// the name is the flag name upper cased, with dots as underscores, e.g.
// VOCDONI_CREDENTIALS_API_PORT for --api.port.
const EnvPrefix = "VOCDONI_CREDENTIALS_"

// Storage and ledger backends.
const (
	DBTypePebble = "pebble"
	DBTypeMemory = "memory"

	LedgerKV       = "kv"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Config is the full node configuration.
type Config struct {
	API       APIConfig     `toml:"api"`
	Storage   StorageConfig `toml:"storage"`
	Ledger    LedgerConfig  `toml:"ledger"`
	Log       LogConfig     `toml:"log"`
	CacheSize int           `toml:"cacheSize"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	AdminToken string `toml:"adminToken"`
}

// StorageConfig configures the credential store.
type StorageConfig struct {
	DataDir string `toml:"dataDir"`
	DBType  string `toml:"dbType"`
}

// LedgerConfig selects the vote ledger backend. DSN is ignored by the kv
// backend and defaults to a file in the data dir for sqlite.
type LedgerConfig struct {
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
}

// LogConfig configures the log package.
type LogConfig struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dataDir := ".vocdoni-credentials"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, dataDir)
	}
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			DBType:  DBTypePebble,
		},
		Ledger: LedgerConfig{
			Backend: LedgerKV,
		},
		Log: LogConfig{
			Level:  log.LogLevelInfo,
			Output: "stdout",
		},
		CacheSize: 128,
	}
}

// fields maps every setting name to the field holding it.
func (c *Config) fields() map[string]any {
	return map[string]any{
		"api.host":        &c.API.Host,
		"api.port":        &c.API.Port,
		"api.adminToken":  &c.API.AdminToken,
		"storage.dataDir": &c.Storage.DataDir,
		"storage.dbType":  &c.Storage.DBType,
		"ledger.backend":  &c.Ledger.Backend,
		"ledger.dsn":      &c.Ledger.DSN,
		"log.level":       &c.Log.Level,
		"log.output":      &c.Log.Output,
		"cacheSize":       &c.CacheSize,
	}
}

var usages = map[string]string{
	"api.host":        "API listen host",
	"api.port":        "API listen port",
	"api.adminToken":  "bearer token required by the admin endpoints (prefer env)",
	"storage.dataDir": "directory for the credential database",
	"storage.dbType":  "credential database type (pebble or memory)",
	"ledger.backend":  "vote ledger backend (kv, sqlite or postgres)",
	"ledger.dsn":      "vote ledger data source name (sqlite or postgres)",
	"log.level":       "log level (debug, info, warn, error)",
	"log.output":      "log output (stdout, stderr or a file path)",
	"cacheSize":       "number of election trees kept in memory",
}

// EnvName returns the environment variable of a setting.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the configuration from the command line arguments (without
// the program name), the files they point to and the environment.
func Load(args []string) (*Config, error) {
	fromFlags := Default()
	fs := flag.NewFlagSet("credentials-node", flag.ContinueOnError)
	configFile := fs.String("config", os.Getenv(EnvName("config")), "TOML configuration file")
	envFile := fs.String("env-file", ".env", "dotenv file loaded into the environment if present")
	keys := sortedKeys(fromFlags.fields())
	for _, key := range keys {
		switch p := fromFlags.fields()[key].(type) {
		case *string:
			fs.StringVar(p, key, *p, usages[key])
		case *int:
			fs.IntVar(p, key, *p, usages[key])
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", *configFile, err)
		}
	}
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", *envFile, err)
	}
	fields := cfg.fields()
	for _, key := range keys {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			if err := setField(fields[key], v); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", EnvName(key), err)
			}
		}
	}
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if ptr, ok := fields[f.Name]; ok && flagErr == nil {
			flagErr = setField(ptr, f.Value.String())
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings are consistent and fills the defaults that
// depend on other settings.
func (c *Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}
	switch c.Storage.DBType {
	case DBTypePebble:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("a data dir is required by the %s database", DBTypePebble)
		}
	case DBTypeMemory:
	default:
		return fmt.Errorf("invalid database type %q", c.Storage.DBType)
	}
	switch c.Ledger.Backend {
	case LedgerKV:
	case LedgerSQLite:
		if c.Ledger.DSN == "" {
			if c.Storage.DataDir == "" {
				return fmt.Errorf("the %s ledger needs a DSN or a data dir", LedgerSQLite)
			}
			c.Ledger.DSN = "file:" + filepath.Join(c.Storage.DataDir, "ledger.db") + "?_pragma=busy_timeout(5000)"
		}
	case LedgerPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("the %s ledger needs a DSN", LedgerPostgres)
		}
	default:
		return fmt.Errorf("invalid ledger backend %q", c.Ledger.Backend)
	}
	switch c.Log.Level {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid cache size %d", c.CacheSize)
	}
	return nil
}

func setField(ptr any, value string) error {
	switch p := ptr.(type) {
	case *string:
		*p = value
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*p = n
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
