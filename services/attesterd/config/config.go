package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/retry"
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for attesterd.
type Config struct {
	ListenAddress string    `yaml:"listen" toml:"listen"`
	Environment   string    `yaml:"env" toml:"env"`
	Variant       string    `yaml:"variant" toml:"variant"`
	Chains        []Chain   `yaml:"chains" toml:"chains"`
	Sources       []Source  `yaml:"sources" toml:"sources"`
	Aliases       []Alias   `yaml:"aliases" toml:"aliases"`
	Tolerance     Tolerance `yaml:"tolerance" toml:"tolerance"`
	Retry         Retry     `yaml:"retry" toml:"retry"`
	Signer        Signer    `yaml:"signer" toml:"signer"`
	Verify        Verify    `yaml:"verify" toml:"verify"`
	Journal       Journal   `yaml:"journal" toml:"journal"`
	Auth          Auth      `yaml:"auth" toml:"auth"`
	RateLimit     RateLimit `yaml:"rate_limit" toml:"rate_limit"`
	Telemetry     Telemetry `yaml:"telemetry" toml:"telemetry"`
	Log           Log       `yaml:"log" toml:"log"`
}

// Chain binds a chain id to an RPC endpoint and the deployed contract.
type Chain struct {
	ID       uint64 `yaml:"id" toml:"id"`
	RPC      string `yaml:"rpc" toml:"rpc"`
	Contract string `yaml:"contract" toml:"contract"`
}

// Source describes an upstream market-data venue.
type Source struct {
	Name          string   `yaml:"name" toml:"name"`
	Type          string   `yaml:"type" toml:"type"`
	Endpoint      string   `yaml:"endpoint" toml:"endpoint"`
	Reference     bool     `yaml:"reference" toml:"reference"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"`
	RatePerSecond float64  `yaml:"rate_per_second" toml:"rate_per_second"`
	Burst         int      `yaml:"burst" toml:"burst"`
}

// Alias maps a venue listing onto a contract symbol.
type Alias struct {
	Source     string `yaml:"source" toml:"source"`
	From       string `yaml:"from" toml:"from"`
	To         string `yaml:"to" toml:"to"`
	Multiplier string `yaml:"multiplier" toml:"multiplier"`
	KeepSource bool   `yaml:"keep_source" toml:"keep_source"`
}

// Tolerance holds decimal ratios, e.g. "0.005" for half a percent.
type Tolerance struct {
	// Price bounds seed price agreement.
	Price string `yaml:"price" toml:"price"`
	// PnL bounds seed uPnl and loss agreement relative to notional.
	PnL string `yaml:"pnl" toml:"pnl"`
	// Validation bounds cross-venue deviation. Under the strict variant it
	// only applies to symbols without a leverage figure.
	Validation string `yaml:"validation" toml:"validation"`
}

// Retry bounds outbound calls.
type Retry struct {
	Attempts int      `yaml:"attempts" toml:"attempts"`
	Initial  Duration `yaml:"initial" toml:"initial"`
	Max      Duration `yaml:"max" toml:"max"`
	Timeout  Duration `yaml:"timeout" toml:"timeout"`
}

// Signer locates the node key. Exactly one of KeyHex and Keystore is set.
type Signer struct {
	KeyHex        string `yaml:"key_hex" toml:"key_hex"`
	Keystore      string `yaml:"keystore" toml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env" toml:"passphrase_env"`
}

// Verify names the address whose signatures unlock the verify method.
type Verify struct {
	Signer string `yaml:"signer" toml:"signer"`
}

// Journal configures the optional attestation audit log.
type Journal struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// Auth configures bearer token checks on the HTTP surface.
type Auth struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	HMACSecret string `yaml:"hmac_secret" toml:"hmac_secret"`
	Issuer     string `yaml:"issuer" toml:"issuer"`
	Audience   string `yaml:"audience" toml:"audience"`
}

// RateLimit caps requests per client. Zero disables limiting.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" toml:"per_second"`
	Burst     int     `yaml:"burst" toml:"burst"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool    `yaml:"insecure" toml:"insecure"`
	Headers     string  `yaml:"headers" toml:"headers"`
	Traces      bool    `yaml:"traces" toml:"traces"`
	Metrics     bool    `yaml:"metrics" toml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// Log configures the service logger.
type Log struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Load reads configuration from the supplied path. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Config{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if err := Decode(raw, filepath.Ext(path), &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode parses raw according to the file extension ext.
func Decode(raw []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(raw), cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("SYMM_ENV"); ok && v != "" {
		cfg.Environment = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_HEADERS"); ok && v != "" {
		cfg.Telemetry.Headers = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_INSECURE"); ok {
		cfg.Telemetry.Insecure = strings.EqualFold(v, "true")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.Variant == "" {
		cfg.Variant = "standard"
	}
	if cfg.Tolerance.Price == "" {
		cfg.Tolerance.Price = "0.001"
	}
	if cfg.Tolerance.PnL == "" {
		cfg.Tolerance.PnL = "0.001"
	}
	if cfg.Tolerance.Validation == "" && !strings.EqualFold(cfg.Variant, "strict") {
		cfg.Tolerance.Validation = "0.005"
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.Initial.Duration == 0 {
		cfg.Retry.Initial.Duration = 200 * time.Millisecond
	}
	if cfg.Retry.Max.Duration == 0 {
		cfg.Retry.Max.Duration = 2 * time.Second
	}
	if cfg.Retry.Timeout.Duration == 0 {
		cfg.Retry.Timeout.Duration = 5 * time.Second
	}
	if cfg.Auth.Enabled && cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "symmoracle"
	}
	if cfg.RateLimit.PerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.PerSecond) + 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for i, c := range cfg.Chains {
		if c.ID == 0 {
			return fmt.Errorf("chains[%d]: id required", i)
		}
		if strings.TrimSpace(c.RPC) == "" {
			return fmt.Errorf("chains[%d]: rpc required", i)
		}
		if !common.IsHexAddress(c.Contract) {
			return fmt.Errorf("chains[%d]: invalid contract address %q", i, c.Contract)
		}
		if common.HexToAddress(c.Contract) == (common.Address{}) {
			return fmt.Errorf("chains[%d]: contract address required", i)
		}
	}
	if len(cfg.Sources) < 2 {
		return fmt.Errorf("at least two market-data sources must be configured")
	}
	if _, err := cfg.ReferenceSource(); err != nil {
		return err
	}
	if _, err := cfg.AliasRules(); err != nil {
		return err
	}
	if _, err := cfg.Tolerances(); err != nil {
		return err
	}
	if cfg.Signer.KeyHex != "" && cfg.Signer.Keystore != "" {
		return fmt.Errorf("signer: key_hex and keystore are mutually exclusive")
	}
	if cfg.Verify.Signer != "" && !common.IsHexAddress(cfg.Verify.Signer) {
		return fmt.Errorf("verify: invalid signer address %q", cfg.Verify.Signer)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: hmac_secret must be configured when auth is enabled")
	}
	return nil
}

// ReferenceSource returns the name of the single source flagged as reference.
func (c Config) ReferenceSource() (string, error) {
	ref := ""
	for _, s := range c.Sources {
		if !s.Reference {
			continue
		}
		if ref != "" {
			return "", fmt.Errorf("sources: more than one reference (%s, %s)", ref, s.Name)
		}
		ref = s.Name
		if ref == "" {
			ref = s.Type
		}
	}
	if ref == "" {
		return "", fmt.Errorf("sources: one source must be marked reference")
	}
	return ref, nil
}

// SourceConfigs converts the source list for marketdata.Registry.
func (c Config) SourceConfigs() []marketdata.SourceConfig {
	out := make([]marketdata.SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, marketdata.SourceConfig{
			Name:          s.Name,
			Type:          s.Type,
			Endpoint:      s.Endpoint,
			Timeout:       s.Timeout.Duration,
			RatePerSecond: s.RatePerSecond,
			Burst:         s.Burst,
		})
	}
	return out
}

// AliasRules parses the alias table.
func (c Config) AliasRules() ([]marketdata.AliasRule, error) {
	out := make([]marketdata.AliasRule, 0, len(c.Aliases))
	for i, a := range c.Aliases {
		rule := marketdata.AliasRule{Source: a.Source, From: a.From, To: a.To, KeepSource: a.KeepSource}
		if a.Multiplier != "" {
			m, err := fixed.ParseDecimal(a.Multiplier)
			if err != nil {
				return nil, fmt.Errorf("aliases[%d]: multiplier: %w", i, err)
			}
			rule.Multiplier = m
		}
		out = append(out, rule)
	}
	if _, err := marketdata.NewAliasTable(out...); err != nil {
		return nil, err
	}
	return out, nil
}

// Tolerances are the parsed tolerance ratios.
type Tolerances struct {
	Price      fixed.Int
	PnL        fixed.Int
	Validation fixed.Int
}

// Tolerances parses the tolerance section. An empty validation ratio is zero.
func (c Config) Tolerances() (Tolerances, error) {
	var out Tolerances
	var err error
	if out.Price, err = ratio("price", c.Tolerance.Price); err != nil {
		return out, err
	}
	if out.PnL, err = ratio("pnl", c.Tolerance.PnL); err != nil {
		return out, err
	}
	if c.Tolerance.Validation != "" {
		if out.Validation, err = ratio("validation", c.Tolerance.Validation); err != nil {
			return out, err
		}
	}
	return out, nil
}

func ratio(name, raw string) (fixed.Int, error) {
	v, err := fixed.ParseDecimal(raw)
	if err != nil {
		return fixed.Zero, fmt.Errorf("tolerance.%s: %w", name, err)
	}
	if v.Sign() < 0 {
		return fixed.Zero, fmt.Errorf("tolerance.%s: must not be negative", name)
	}
	return v, nil
}

// Policy converts the retry section.
func (c Config) Policy() retry.Policy {
	return retry.Policy{
		Attempts: c.Retry.Attempts,
		Initial:  c.Retry.Initial.Duration,
		Max:      c.Retry.Max.Duration,
		Timeout:  c.Retry.Timeout.Duration,
	}
}
