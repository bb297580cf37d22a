package attesterd

import (
	"context"
	"encoding/hex"
	"math/big"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"

	"symmoracle/crypto"
	"symmoracle/router"
	"symmoracle/services/attesterd/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, config.Decode([]byte(`
chains:
  - id: 56
    rpc: http://127.0.0.1:1/rpc
    contract: "0x00000000000000000000000000000000000000aa"
sources:
  - name: kucoin
    type: kucoin
    reference: true
  - name: binance
    type: binance
tolerance:
  price: "0.001"
  pnl: "0.001"
  validation: "0.005"
`), ".yaml", &cfg))
	cfg.Journal.DSN = filepath.Join(t.TempDir(), "journal.sqlite")
	return cfg
}

func TestBuildWiresService(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	svc, err := Build(testConfig(t), logger, key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.Equal(t, router.Standard, svc.Router.Variant())

	rec := httptest.NewRecorder()
	svc.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRejectsUnknownVariant(t *testing.T) {
	cfg := testConfig(t)
	cfg.Variant = "lenient"
	_, err := Build(cfg, nil, nil, nil)
	require.Error(t, err)
}

func TestBuildStandardNeedsValidationTolerance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tolerance.Validation = ""
	_, err := Build(cfg, nil, nil, nil)
	require.Error(t, err)

	cfg.Variant = "strict"
	svc, err := Build(cfg, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.Equal(t, router.Strict, svc.Router.Variant())
}

type countingConn struct{ closed *int }

func (countingConn) BlockNumber(context.Context) (uint64, error) { return 1, nil }

func (countingConn) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (c countingConn) Close() { *c.closed++ }

func stubDial(t *testing.T) *int {
	t.Helper()
	closed := 0
	prev := dialChain
	dialChain = func(string) (chainConn, error) { return countingConn{closed: &closed}, nil }
	t.Cleanup(func() { dialChain = prev })
	return &closed
}

func TestBuildFailureClosesChains(t *testing.T) {
	closed := stubDial(t)
	cfg := testConfig(t)
	cfg.Chains = append(cfg.Chains, config.Chain{ID: 1, RPC: "http://127.0.0.1:1/rpc", Contract: "0x00000000000000000000000000000000000000bb"})
	cfg.Sources[1].Type = "coinbase"

	_, err := Build(cfg, nil, nil, nil)
	require.Error(t, err)
	require.Equal(t, 2, *closed)
}

func TestServiceCloseReleasesChains(t *testing.T) {
	closed := stubDial(t)
	svc, err := Build(testConfig(t), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	require.Equal(t, 1, *closed)
}

func TestLoadSigner(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	none, err := LoadSigner(config.Signer{})
	require.NoError(t, err)
	require.Nil(t, none)

	loaded, err := LoadSigner(config.Signer{KeyHex: hex.EncodeToString(key.Bytes())})
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, crypto.SaveToKeystore(path, key, "hunter2", true))
	t.Setenv("ATTESTERD_TEST_PASSPHRASE", "hunter2")
	loaded, err = LoadSigner(config.Signer{Keystore: path, PassphraseEnv: "ATTESTERD_TEST_PASSPHRASE"})
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())
}
