package gnomebot

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.Error(t, structValidator.Struct(cfg))

	cfg.Discord.Token = "token"
	cfg.Discord.ApplicationID = "app"
	require.NoError(t, structValidator.Struct(cfg))

	cfg.Wikipedia.RequestsPerSecond = 0
	assert.Error(t, structValidator.Struct(cfg))
}

func TestValidateConfig_Server(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Server.Enabled = true
	cfg.Server.Listen = ""
	assert.Error(t, structValidator.Struct(cfg))

	cfg.Server.Listen = DefaultServerListen
	cfg.Server.ListenNetwork = "udp"
	assert.Error(t, structValidator.Struct(cfg))

	cfg.Server.ListenNetwork = "tcp4"
	assert.NoError(t, structValidator.Struct(cfg))
}

func TestValidateConfig_Durations(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Activity.Interval = 500 * time.Millisecond
	assert.Error(t, structValidator.Struct(cfg))
}

func TestDiscordConfig_GuildIDs(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		value    string
		expected []string
	}{
		{"", nil},
		{"123", []string{"123"}},
		{" 123 , ,456,", []string{"123", "456"}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, DiscordConfig{GuildID: tc.value}.GuildIDs(), tc.value)
	}
}

func TestConfig_LogValue(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Discord.Token = "very-secret-token"
	cfg.GitHub.Token = "ghp_secret"
	cfg.Report.WebhookURL = testReportWebhook

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "config", cfg)

	out := buf.String()
	assert.NotContains(t, out, "very-secret-token")
	assert.NotContains(t, out, "ghp_secret")
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "[redacted]")
	assert.Contains(t, out, `"application_id":"app"`)
}

func TestNewLogWriter(t *testing.T) {
	t.Parallel()
	var stdout bytes.Buffer
	w, closer := newLogWriter(&stdout, LogFileConfig{})
	assert.Same(t, &stdout, w)
	assert.Nil(t, closer)

	path := filepath.Join(t.TempDir(), "gnomebot.log")
	w, closer = newLogWriter(&stdout, LogFileConfig{Path: path, MaxSizeMB: 1})
	require.NotNil(t, closer)
	_, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, "hello\n", stdout.String())
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(
		t, func() {
			m.prefixDispatch(RoleMember, "help", outcomeOK)
			m.slashDispatch("ping", outcomeOK)
			m.classifierVerdict(ClassificationResult{Step: StepNone})
			m.mascotOutcome(mascotOutcomeCorrect)
			m.wikipediaLookup(wikipediaEndpointSearch, "hit")
			m.devlogSend(nil)
			m.httpRequest("GET", "/healthz", 200)
			m.gatewayConnected(true)
		},
	)
}

func TestMetrics_Registry(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.slashDispatch("help", outcomeOK)
	m.gatewayConnected(true)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "gnomebot_slash_commands_total")
	assert.Contains(t, names, "gnomebot_gateway_connected")
	assert.Contains(t, names, "go_goroutines")
}
