package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for popmap.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
}

type GeneralConfig struct {
	LogLevel      string `json:"logLevel" yaml:"logLevel" env:"POPMAP_LOG_LEVEL"`
	LogFile       string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"POPMAP_LOG_FILE"`
	WebsiteURL    string `json:"websiteURL" yaml:"websiteURL" env:"POPMAP_WEBSITE_URL"`
	GithubURL     string `json:"githubURL" yaml:"githubURL"`
	SupportInvite string `json:"supportInvite,omitempty" yaml:"supportInvite,omitempty"`
	// OwnerID is the only user allowed to run owner commands such as promote.
	OwnerID string `json:"ownerID,omitempty" yaml:"ownerID,omitempty" env:"POPMAP_OWNER_ID"`
}

type DiscordConfig struct {
	Token            string         `json:"token" yaml:"token" env:"POPMAP_DISCORD_TOKEN"`
	SupportGuildID   string         `json:"supportGuildID,omitempty" yaml:"supportGuildID,omitempty" env:"POPMAP_SUPPORT_GUILD_ID"`
	PersonalGuildIDs FlexStringList `json:"personalGuildIDs,omitempty" yaml:"personalGuildIDs,omitempty"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers. Discord snowflakes are often pasted unquoted.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		// json.Number keeps snowflakes above 2^53 exact.
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			if i, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
				result = append(result, strconv.FormatUint(i, 10))
				continue
			}
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type StoreConfig struct {
	DBPath string `json:"dbPath" yaml:"dbPath" env:"POPMAP_DB_PATH"`
}

type DispatchConfig struct {
	HandlerTimeoutSeconds int `json:"handlerTimeoutSeconds" yaml:"handlerTimeoutSeconds" env:"POPMAP_HANDLER_TIMEOUT_SECONDS"`
	MaxInFlight           int `json:"maxInFlight" yaml:"maxInFlight" env:"POPMAP_MAX_IN_FLIGHT"`
	BusSize               int `json:"busSize" yaml:"busSize"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"POPMAP_METRICS_ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"POPMAP_METRICS_ADDR"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig configures span export over OTLP/HTTP.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" env:"POPMAP_OTEL_ENABLED"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"POPMAP_OTEL_ENDPOINT"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio" env:"POPMAP_OTEL_SAMPLE_RATIO"`
}

// DefaultConfigDir returns the default config directory (~/.popmap).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".popmap"
	}
	return filepath.Join(home, ".popmap")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// Load reads the config file, expands ${VAR} references, applies POPMAP_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields tagged with env:"POPMAP_*" from the process
// environment. Unset variables leave the file value in place.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, ok := os.LookupEnv(groups[1])
		if !ok || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file holds the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}

	if cfg.Dispatch.HandlerTimeoutSeconds < 1 || cfg.Dispatch.HandlerTimeoutSeconds > 900 {
		errs = append(errs, "dispatch.handlerTimeoutSeconds must be between 1 and 900")
	}
	if cfg.Dispatch.MaxInFlight < 1 || cfg.Dispatch.MaxInFlight > 1024 {
		errs = append(errs, "dispatch.maxInFlight must be between 1 and 1024")
	}
	if cfg.Dispatch.BusSize < 1 {
		errs = append(errs, "dispatch.busSize must be >= 1")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, "metrics.path must start with /")
		}
	}

	if cfg.Tracing.Enabled {
		if u, err := url.Parse(cfg.Tracing.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "tracing.endpoint must be an http(s) URL when tracing is enabled")
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.serviceName is required when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}

	for _, id := range cfg.Discord.PersonalGuildIDs {
		if !isSnowflake(id) {
			errs = append(errs, fmt.Sprintf("discord.personalGuildIDs: %q is not a Discord ID", id))
		}
	}
	if cfg.Discord.SupportGuildID != "" && !isSnowflake(cfg.Discord.SupportGuildID) {
		errs = append(errs, fmt.Sprintf("discord.supportGuildID: %q is not a Discord ID", cfg.Discord.SupportGuildID))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isSnowflake(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// CommandGuildIDs returns the guilds that receive guild-scoped commands:
// the support guild followed by the personal guilds, without duplicates.
func (c *Config) CommandGuildIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range append([]string{c.Discord.SupportGuildID}, c.Discord.PersonalGuildIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
