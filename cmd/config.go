package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/config"
	"github.com/derickschaefer/kpiboard/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage kpiboard configuration",
	Long: `Read and write kpiboard configuration stored in config.json or config.yaml.

Values are resolved from built-in defaults, the config file, .env files,
KPIBOARD_* environment variables and finally command-line flags.`,
}

var configInitYAML bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config file in the current directory",
	Example: `  kpiboard config init
  kpiboard config init --yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if configInitYAML {
			path = config.DefaultYAMLFile
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit base_url to point at your analytics backend.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current resolved configuration",
	Example: `  kpiboard config show
  kpiboard --store redis config show --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// An invalid config is still shown so it can be fixed.
		verr := cfg.Validate()

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			type configOut struct {
				BaseURL         string            `json:"base_url"`
				Format          string            `json:"default_format"`
				Timeout         string            `json:"timeout"`
				Concurrency     int               `json:"concurrency"`
				Rate            float64           `json:"rate"`
				Store           string            `json:"store"`
				DBPath          string            `json:"db_path"`
				RedisAddr       string            `json:"redis_addr,omitempty"`
				InsightPoints   int               `json:"insight_points"`
				RefreshInterval string            `json:"refresh_interval"`
				FilterCasing    string            `json:"filter_casing"`
				ListenAddr      string            `json:"listen_addr"`
				Endpoints       map[string]string `json:"endpoints,omitempty"`
				ConfigFile      string            `json:"config_file"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(configOut{
				BaseURL:         cfg.BaseURL,
				Format:          cfg.Format,
				Timeout:         cfg.Timeout.String(),
				Concurrency:     cfg.Concurrency,
				Rate:            cfg.Rate,
				Store:           cfg.Store,
				DBPath:          cfg.DBPath,
				RedisAddr:       cfg.RedisAddr,
				InsightPoints:   cfg.InsightPoints,
				RefreshInterval: cfg.RefreshInterval.String(),
				FilterCasing:    cfg.FilterCasing,
				ListenAddr:      cfg.ListenAddr,
				Endpoints:       cfg.Endpoints,
				ConfigFile:      src,
			}); err != nil {
				return err
			}
			return verr
		}

		rows := [][]string{
			{"base_url", cfg.BaseURL},
			{"default_format", cfg.Format},
			{"timeout", cfg.Timeout.String()},
			{"concurrency", strconv.Itoa(cfg.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"store", cfg.Store},
			{"db_path", cfg.DBPath},
		}
		if cfg.RedisAddr != "" {
			rows = append(rows, []string{"redis_addr", cfg.RedisAddr})
		}
		rows = append(rows,
			[]string{"insight_points", strconv.Itoa(cfg.InsightPoints)},
			[]string{"refresh_interval", cfg.RefreshInterval.String()},
			[]string{"filter_casing", cfg.FilterCasing},
			[]string{"listen_addr", cfg.ListenAddr},
		)
		names := make([]string, 0, len(cfg.Endpoints))
		for name := range cfg.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, []string{"endpoints." + name, cfg.Endpoints[name]})
		}
		rows = append(rows, []string{"config_file", src})
		printKVTable(cmd.OutOrStdout(), rows)
		return verr
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVar(&configInitYAML, "yaml", false, "write config.yaml instead of config.json")
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
