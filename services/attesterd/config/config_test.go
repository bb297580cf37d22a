package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"symmoracle/fixed"
)

const yamlConfig = `
listen: ":9000"
variant: strict
chains:
  - id: 56
    rpc: https://bsc.example/rpc
    contract: "0x00000000000000000000000000000000000000aa"
sources:
  - name: kucoin
    type: kucoin
    reference: true
    timeout: 3s
  - name: binance
    type: binance
    rate_per_second: 5
aliases:
  - source: binance
    from: 1000SHIBUSDT
    to: SHIBUSDT
    multiplier: "0.001"
tolerance:
  pnl: "0.002"
retry:
  attempts: 5
  initial: 100ms
`

const tomlConfig = `
listen = ":9001"

[[chains]]
id = 1
rpc = "https://eth.example/rpc"
contract = "0x00000000000000000000000000000000000000bb"

[[sources]]
name = "binance"
type = "binance"
reference = true
timeout = "2s"

[[sources]]
name = "mexc"
type = "mexc"

[tolerance]
validation = "0.01"

[retry]
max = "1s"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "attesterd.yaml", yamlConfig))
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "strict", cfg.Variant)
	require.Equal(t, 3*time.Second, cfg.Sources[0].Timeout.Duration)

	ref, err := cfg.ReferenceSource()
	require.NoError(t, err)
	require.Equal(t, "kucoin", ref)

	rules, err := cfg.AliasRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, 0, rules[0].Multiplier.Cmp(fixed.MustParseDecimal("0.001")))

	tol, err := cfg.Tolerances()
	require.NoError(t, err)
	require.Equal(t, 0, tol.PnL.Cmp(fixed.MustParseDecimal("0.002")))
	require.True(t, tol.Validation.IsZero(), "strict keeps validation unset by default")

	policy := cfg.Policy()
	require.Equal(t, 5, policy.Attempts)
	require.Equal(t, 100*time.Millisecond, policy.Initial)
	require.Equal(t, 2*time.Second, policy.Max)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.yaml"))
	require.NoError(t, err)
	for _, c := range cfg.Chains {
		require.NotEqual(t, common.Address{}, common.HexToAddress(c.Contract))
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "attesterd.toml", tomlConfig))
	require.NoError(t, err)

	require.Equal(t, ":9001", cfg.ListenAddress)
	require.Equal(t, "standard", cfg.Variant)
	require.Equal(t, 2*time.Second, cfg.Sources[0].Timeout.Duration)
	require.Equal(t, time.Second, cfg.Retry.Max.Duration)

	tol, err := cfg.Tolerances()
	require.NoError(t, err)
	require.Equal(t, 0, tol.Validation.Cmp(fixed.MustParseDecimal("0.01")))
	require.Equal(t, 0, tol.Price.Cmp(fixed.MustParseDecimal("0.001")))

	sources := cfg.SourceConfigs()
	require.Len(t, sources, 2)
	require.Equal(t, "mexc", sources[1].Type)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SYMM_ENV":                    "prod",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_EXPORTER_OTLP_INSECURE": "true",
	}
	var cfg Config
	applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
	require.True(t, cfg.Telemetry.Insecure)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var cfg Config
		require.NoError(t, Decode([]byte(yamlConfig), ".yaml", &cfg))
		applyDefaults(&cfg)
		return cfg
	}
	require.NoError(t, validate(base()))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no chains", func(c *Config) { c.Chains = nil }, "at least one chain"},
		{"bad contract", func(c *Config) { c.Chains[0].Contract = "0x12" }, "invalid contract"},
		{"zero contract", func(c *Config) { c.Chains[0].Contract = "0x0000000000000000000000000000000000000000" }, "contract address required"},
		{"one source", func(c *Config) { c.Sources = c.Sources[:1] }, "at least two"},
		{"no reference", func(c *Config) { c.Sources[0].Reference = false }, "marked reference"},
		{"two references", func(c *Config) { c.Sources[1].Reference = true }, "more than one reference"},
		{"bad alias", func(c *Config) { c.Aliases[0].To = "" }, "requires from and to"},
		{"negative tolerance", func(c *Config) { c.Tolerance.Price = "-0.1" }, "must not be negative"},
		{"two keys", func(c *Config) { c.Signer.KeyHex, c.Signer.Keystore = "aa", "key.json" }, "mutually exclusive"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "hmac_secret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var cfg Config
	err := Decode([]byte("retry:\n  initial: soon\n"), ".yml", &cfg)
	require.Error(t, err)
}
