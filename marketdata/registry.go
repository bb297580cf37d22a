package marketdata

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"symmoracle/retry"
)

// SourceConfig describes one venue.
type SourceConfig struct {
	Name     string
	Type     string
	Endpoint string
	// Timeout bounds a single attempt. Zero keeps the registry policy.
	Timeout time.Duration
	// RatePerSecond caps outbound requests. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// Registry constructs sources based on configuration.
type Registry struct {
	HTTPClient HTTPDoer
	Retry      retry.Policy
}

// NewRegistry builds a registry whose client traces every outbound request.
func NewRegistry(policy retry.Policy) *Registry {
	return &Registry{
		HTTPClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Retry: policy,
	}
}

// Build creates a source from the supplied configuration.
func (r *Registry) Build(cfg SourceConfig) (Source, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	name := label(cfg.Name, typ)
	f := &fetcher{source: name, client: r.client(), retry: r.Retry}
	if cfg.Timeout > 0 {
		f.retry.Timeout = cfg.Timeout
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	switch typ {
	case "binance":
		return &binanceSource{name: name, endpoint: endpoint(cfg.Endpoint, defaultBinanceEndpoint), fetch: f, names: binanceNames}, nil
	case "kucoin":
		return &kucoinSource{name: name, endpoint: endpoint(cfg.Endpoint, defaultKucoinEndpoint), fetch: f, names: kucoinNames}, nil
	case "mexc":
		return &mexcSource{name: name, endpoint: endpoint(cfg.Endpoint, defaultMexcEndpoint), fetch: f, names: mexcNames}, nil
	default:
		return nil, fmt.Errorf("unknown market data source type %q", cfg.Type)
	}
}

func (r *Registry) client() HTTPDoer {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func endpoint(configured, fallback string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	return fallback
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
