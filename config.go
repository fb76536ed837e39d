package main

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "WIKIEXPORT"

// config is the merged configuration: flags over WIKIEXPORT_* environment
// variables over wikiexport.yaml over flag defaults.
type config struct {
	URL             string        `mapstructure:"url"`
	Username        string        `mapstructure:"username"`
	Token           string        `mapstructure:"token"`
	OutDir          string        `mapstructure:"out_dir"`
	GitlabWikisPath string        `mapstructure:"gitlab_wikis_path"`
	Spaces          []string      `mapstructure:"spaces"`
	SkipAttachments bool          `mapstructure:"skip_attachments"`
	NoFetch         bool          `mapstructure:"no_fetch"`
	SkipDiagrams    bool          `mapstructure:"skip_diagrams"`
	DrawioBin       string        `mapstructure:"drawio_bin"`
	DiagramMaxWidth int           `mapstructure:"diagram_max_width"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Proxy           string        `mapstructure:"proxy"`
	BlockPrivate    bool          `mapstructure:"block_private"`
	MaxResponseSize int64         `mapstructure:"max_response_size"`
	FrontMatter     bool          `mapstructure:"front_matter"`
	Silent          bool          `mapstructure:"silent"`
}

// addConfigFlags registers every config key as a flag. Flag names use
// dashes; the matching config key uses underscores.
func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default: ./wikiexport.yaml)")
	flags.String("url", "", "Confluence base URL, e.g. https://example.atlassian.net/wiki")
	flags.String("username", "", "Confluence user name")
	flags.String("token", "", "Confluence API token or password")
	flags.String("out-dir", "export", "directory for exported HTML and converted Markdown")
	flags.String("gitlab-wikis-path", "", "path prefix for links between pages, e.g. /group/project/-/wikis")
	flags.StringSlice("spaces", nil, "space keys to export (default: all)")
	flags.Bool("skip-attachments", false, "do not download attachments")
	flags.Bool("no-fetch", false, "only convert an existing export")
	flags.Bool("skip-diagrams", false, "leave draw.io diagrams unrasterized")
	flags.String("drawio-bin", defaultDrawioBin, "draw.io desktop binary used to rasterize diagrams")
	flags.Int("diagram-max-width", 1600, "max pixel width of rasterized diagrams (0 = unlimited)")
	flags.Int("concurrency", runtime.NumCPU(), "files converted or attachments downloaded in parallel")
	flags.Duration("timeout", 30*time.Second, "HTTP request timeout")
	flags.String("proxy", "", "HTTP proxy URL (e.g. http://proxy:8080)")
	flags.Bool("block-private", false, "refuse connections to private and loopback addresses")
	flags.Int64("max-response-size", defaultMaxResponseBytes, "max bytes per API response or attachment (0 = unlimited)")
	flags.Bool("front-matter", false, "prepend YAML front matter to each page")
	flags.Bool("silent", false, "suppress all output except errors")
}

func configKey(flagName string) string {
	return strings.ReplaceAll(flagName, "-", "_")
}

// loadConfig merges .env, the config file, the environment and flags into
// a config. flags must already be parsed.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfgFile, _ := flags.GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("wikiexport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(configKey(f.Name), f)
	})
	if bindErr != nil {
		return config{}, bindErr
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		logf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Spaces = splitList(cfg.Spaces)
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

// splitList flattens comma separated entries, as given by environment
// variables and config files, into one trimmed list.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateFetch checks the keys the fetch phase cannot run without.
func (c config) validateFetch() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "url")
	}
	if c.OutDir == "" {
		missing = append(missing, "out_dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c config) transport() httpOptions {
	return httpOptions{timeout: c.Timeout, proxy: c.Proxy, blockPrivate: c.BlockPrivate}
}
