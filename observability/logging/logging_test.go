package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsServiceFields(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	logger := New(&buf, "attesterd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("hello", "method", "price")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "attesterd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "price", line["method"])
	require.Contains(t, line, "timestamp")

	buf.Reset()
	log.Print("from std log")
	require.Contains(t, buf.String(), `"message":"from std log"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMasking(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("hmac_secret", "abc").Value.String())
	require.Equal(t, "price", MaskField("method", "price").Value.String())
	require.Equal(t, "", MaskField("hmac_secret", "").Value.String())

	require.Equal(t, "https://rpc.example/"+RedactedValue,
		MaskURL("rpc", "https://rpc.example/v3/abcdef").Value.String())
	require.Equal(t, "https://rpc.example", MaskURL("rpc", "https://rpc.example").Value.String())
	require.Equal(t, RedactedValue, MaskURL("rpc", "not a url").Value.String())
}
