// Package attesterd wires the attestation engine into a long running HTTP
// service.
package attesterd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/attestation"
	"symmoracle/chain"
	"symmoracle/crypto"
	"symmoracle/marketdata"
	"symmoracle/observability"
	"symmoracle/observability/logging"
	telemetry "symmoracle/observability/otel"
	"symmoracle/router"
	"symmoracle/services/attesterd/config"
	"symmoracle/services/attesterd/server"
	"symmoracle/services/attesterd/storage"
)

const serviceName = "attesterd"

// Main runs the attester daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/attesterd/config.yaml", "path to attesterd config (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	var signer *crypto.PrivateKey
	if signer, err = LoadSigner(cfg.Signer); err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Variant:     cfg.Variant,
		ChainIDs:    chainIDs(cfg),
		Signer:      signerHex(signer),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	svc, err := Build(cfg, logger, signer, observability.Attesterd())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Server.Run(stopCtx)
}

// chainConn is a dialed RPC client. The Service closes it.
type chainConn interface {
	chain.ChainClient
	Close()
}

var dialChain = func(rpc string) (chainConn, error) { return chain.Dial(rpc) }

// Service is a fully wired daemon.
type Service struct {
	Server  *server.Server
	Router  *router.Router
	conns   []chainConn
	journal *storage.Journal
}

// Close releases the chain connections and the journal.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
	var err error
	if s.journal != nil {
		err = s.journal.Close()
		s.journal = nil
	}
	return err
}

// LoadSigner resolves the node key. An empty section leaves signing disabled.
func LoadSigner(cfg config.Signer) (*crypto.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.KeyHex) != "":
		key, err := crypto.PrivateKeyFromHex(cfg.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("load signer key: %w", err)
		}
		return key, nil
	case strings.TrimSpace(cfg.Keystore) != "":
		passphrase, err := crypto.NewPassphraseSource(cfg.PassphraseEnv).Get()
		if err != nil {
			return nil, fmt.Errorf("signer passphrase: %w", err)
		}
		key, err := crypto.LoadFromKeystore(cfg.Keystore, passphrase)
		if err != nil {
			return nil, fmt.Errorf("load signer keystore: %w", err)
		}
		return key, nil
	default:
		return nil, nil
	}
}

// Build constructs every component from cfg. signer may be nil, in which
// case /v1/sign is unavailable.
func Build(cfg config.Config, logger *slog.Logger, signer *crypto.PrivateKey, metrics *observability.AttesterdMetrics) (_ *Service, err error) {
	svc := &Service{}
	defer func() {
		if err != nil {
			err = errors.Join(err, svc.Close())
		}
	}()
	if logger == nil {
		logger = slog.Default()
	}
	variant, err := router.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	tol, err := cfg.Tolerances()
	if err != nil {
		return nil, err
	}
	policy := cfg.Policy()

	endpoints := make([]chain.Endpoint, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		client, err := dialChain(c.RPC)
		if err != nil {
			return nil, fmt.Errorf("dial chain %d: %w", c.ID, err)
		}
		svc.conns = append(svc.conns, client)
		logger.Info("chain configured",
			"chain_id", c.ID,
			logging.MaskURL("rpc", c.RPC),
			"contract", common.HexToAddress(c.Contract).Hex())
		endpoints = append(endpoints, chain.Endpoint{
			ChainID:  c.ID,
			Client:   client,
			Contract: common.HexToAddress(c.Contract),
		})
	}
	chains, err := chain.NewRegistry(policy, endpoints...)
	if err != nil {
		return nil, err
	}

	venues := marketdata.NewRegistry(policy)
	sources := make([]marketdata.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.SourceConfigs() {
		src, err := venues.Build(sc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	rules, err := cfg.AliasRules()
	if err != nil {
		return nil, err
	}
	aliases, err := marketdata.NewAliasTable(rules...)
	if err != nil {
		return nil, err
	}
	reference, err := cfg.ReferenceSource()
	if err != nil {
		return nil, err
	}
	market, err := marketdata.NewAggregator(sources, reference,
		marketdata.WithLogger(logger),
		marketdata.WithAliases(aliases),
		marketdata.WithObserver(metrics))
	if err != nil {
		return nil, err
	}

	verifySigner := common.HexToAddress(cfg.Verify.Signer)
	if cfg.Verify.Signer == "" && signer != nil {
		verifySigner = signer.Address()
	}
	engine, err := router.New(chains, market, router.Config{
		Variant:        variant,
		PriceTolerance: tol.Validation,
		VerifySigner:   verifySigner,
	}, router.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	builder, err := attestation.NewBuilder(tol.PnL, tol.Price)
	if err != nil {
		return nil, err
	}

	svc.Router = engine
	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(metrics)}
	if signer != nil {
		opts = append(opts, server.WithSigner(signer))
	}
	if strings.TrimSpace(cfg.Journal.DSN) != "" {
		journal, err := storage.Open(cfg.Journal.DSN, logger)
		if err != nil {
			return nil, err
		}
		svc.journal = journal
		opts = append(opts, server.WithJournal(journal))
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Auth: server.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: server.RateLimitConfig{
			PerSecond: cfg.RateLimit.PerSecond,
			Burst:     cfg.RateLimit.Burst,
		},
	}, engine, builder, opts...)
	if err != nil {
		return nil, err
	}
	svc.Server = srv
	logger.Info("attesterd configured",
		"variant", variant.String(),
		"source", reference,
		"signer", signerHex(signer))
	return svc, nil
}

func chainIDs(cfg config.Config) []uint64 {
	ids := make([]uint64, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		ids = append(ids, c.ID)
	}
	return ids
}

func signerHex(k *crypto.PrivateKey) string {
	if k == nil {
		return ""
	}
	return k.Address().Hex()
}
