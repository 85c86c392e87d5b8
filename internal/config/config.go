// Package config handles loading and resolving kpiboard configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json or config.yaml in the current working directory (or --config)
//  3. .env files (./.env, then ~/.kpiboard/.env); they never override the real environment
//  4. KPIBOARD_* environment variables
//  5. CLI flags, applied by the cmd package after Load
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultYAMLFile    = "config.yaml"
	DefaultFormat      = "table"
	DefaultTimeout     = 15 * time.Second
	DefaultConcurrency = 4
	DefaultRate        = 5.0
	DefaultBaseURL     = "http://localhost:8000/"
	DefaultStore       = "bolt"
	DefaultPoints      = 10
	DefaultRefresh     = 60 * time.Second
	DefaultCasing      = "server"
	DefaultListenAddr  = ":8080"
	EnvPrefix          = "KPIBOARD"
)

// File is the on-disk representation of config.json / config.yaml.
type File struct {
	BaseURL         string            `json:"base_url" yaml:"base_url"`
	DefaultFormat   string            `json:"default_format" yaml:"default_format"`
	Timeout         string            `json:"timeout" yaml:"timeout"`
	Concurrency     int               `json:"concurrency" yaml:"concurrency"`
	Rate            float64           `json:"rate" yaml:"rate"`
	Store           string            `json:"store" yaml:"store"`
	DBPath          string            `json:"db_path" yaml:"db_path"`
	RedisAddr       string            `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	InsightPoints   int               `json:"insight_points" yaml:"insight_points"`
	RefreshInterval string            `json:"refresh_interval" yaml:"refresh_interval"`
	FilterCasing    string            `json:"filter_casing" yaml:"filter_casing"`
	ListenAddr      string            `json:"listen_addr" yaml:"listen_addr"`
	Endpoints       map[string]string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// env mirrors the KPIBOARD_* variables. Zero values mean "not set".
type env struct {
	BaseURL         string        `split_words:"true"`
	Format          string        `split_words:"true"`
	Timeout         time.Duration `split_words:"true"`
	Concurrency     int           `split_words:"true"`
	Rate            float64       `split_words:"true"`
	Store           string        `split_words:"true"`
	DBPath          string        `split_words:"true"`
	RedisAddr       string        `split_words:"true"`
	InsightPoints   int           `split_words:"true"`
	RefreshInterval time.Duration `split_words:"true"`
	FilterCasing    string        `split_words:"true"`
	ListenAddr      string        `split_words:"true"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; File is only read during loading.
type Config struct {
	BaseURL         string            `validate:"required,url"`
	Format          string            `validate:"oneof=table json jsonl csv tsv md"`
	Timeout         time.Duration     `validate:"gt=0"`
	Concurrency     int               `validate:"min=1,max=64"`
	Rate            float64           `validate:"gt=0"`
	Store           string            `validate:"oneof=bolt redis sqlite memory"`
	DBPath          string            `validate:"required_unless=Store memory"`
	RedisAddr       string            `validate:"required_if=Store redis"`
	InsightPoints   int               `validate:"min=0"`
	RefreshInterval time.Duration     `validate:"gte=0"`
	FilterCasing    string            `validate:"oneof=server lower upper"`
	ListenAddr      string            `validate:"required"`
	Endpoints       map[string]string `validate:"dive,keys,required,endkeys,required"`
	ConfigPath      string            // path of the config file that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	NoCache bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Defaults returns a Config holding only built-in defaults.
func Defaults() *Config {
	cfg := &Config{
		BaseURL:         DefaultBaseURL,
		Format:          DefaultFormat,
		Timeout:         DefaultTimeout,
		Concurrency:     DefaultConcurrency,
		Rate:            DefaultRate,
		Store:           DefaultStore,
		InsightPoints:   DefaultPoints,
		RefreshInterval: DefaultRefresh,
		FilterCasing:    DefaultCasing,
		ListenAddr:      DefaultListenAddr,
		Endpoints:       map[string]string{},
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DBPath = filepath.Join(home, ".kpiboard", "kpiboard.db")
	}
	return cfg
}

// Load resolves configuration from all sources. path names an explicit
// config file; empty searches the working directory. A missing file is not
// an error unless it was named explicitly.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Layer 1: config file
	f, found, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if f != nil {
		applyFile(cfg, f, found)
	}

	// Layer 2: .env files, then the environment
	loadDotEnv()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config:\n  %s", strings.Join(msgs, "\n  "))
}

// LogPath returns the TUI log file location, next to the database.
func (c *Config) LogPath() string {
	dir := filepath.Dir(c.DBPath)
	if c.DBPath == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "kpiboard.log")
}

// ─── Layers ───────────────────────────────────────────────────────────────────

// loadFile reads the named config file, or config.json then config.yaml from
// the working directory.
func loadFile(explicit string) (*File, string, error) {
	candidates := []string{DefaultConfigFile, DefaultYAMLFile}
	if explicit != "" {
		candidates = []string{explicit}
	}
	for _, name := range candidates {
		path, err := filepath.Abs(name)
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && explicit == "" {
				continue
			}
			return nil, "", fmt.Errorf("reading %s: %w", name, err)
		}
		f, err := parseFile(path, data)
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}
	return nil, "", nil
}

func parseFile(path string, data []byte) (*File, error) {
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	setString(&cfg.BaseURL, f.BaseURL)
	setString(&cfg.Format, f.DefaultFormat)
	setDuration(&cfg.Timeout, f.Timeout)
	setInt(&cfg.Concurrency, f.Concurrency)
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	setString(&cfg.Store, f.Store)
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.RedisAddr, f.RedisAddr)
	setInt(&cfg.InsightPoints, f.InsightPoints)
	setDuration(&cfg.RefreshInterval, f.RefreshInterval)
	setString(&cfg.FilterCasing, f.FilterCasing)
	setString(&cfg.ListenAddr, f.ListenAddr)
	for k, v := range f.Endpoints {
		cfg.Endpoints[k] = v
	}
}

// loadDotEnv loads ./.env and ~/.kpiboard/.env. godotenv never overrides a
// variable that is already set, so the first file wins over the second.
func loadDotEnv() {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".kpiboard", ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	setString(&cfg.BaseURL, e.BaseURL)
	setString(&cfg.Format, e.Format)
	if e.Timeout > 0 {
		cfg.Timeout = e.Timeout
	}
	setInt(&cfg.Concurrency, e.Concurrency)
	if e.Rate > 0 {
		cfg.Rate = e.Rate
	}
	setString(&cfg.Store, e.Store)
	setString(&cfg.DBPath, e.DBPath)
	setString(&cfg.RedisAddr, e.RedisAddr)
	setInt(&cfg.InsightPoints, e.InsightPoints)
	if e.RefreshInterval > 0 {
		cfg.RefreshInterval = e.RefreshInterval
	}
	setString(&cfg.FilterCasing, e.FilterCasing)
	setString(&cfg.ListenAddr, e.ListenAddr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// ─── Template ─────────────────────────────────────────────────────────────────

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config file via `kpiboard config init`.
func Template() File {
	return File{
		BaseURL:         DefaultBaseURL,
		DefaultFormat:   DefaultFormat,
		Timeout:         DefaultTimeout.String(),
		Concurrency:     DefaultConcurrency,
		Rate:            DefaultRate,
		Store:           DefaultStore,
		InsightPoints:   DefaultPoints,
		RefreshInterval: DefaultRefresh.String(),
		FilterCasing:    DefaultCasing,
		ListenAddr:      DefaultListenAddr,
	}
}

// WriteFile serialises a File to path as YAML or JSON, chosen by extension.
func WriteFile(path string, f File) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(f)
	default:
		data, err = json.MarshalIndent(f, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
