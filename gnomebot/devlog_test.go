package gnomebot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingExecutor struct {
	mu    sync.Mutex
	sent  []*discordgo.WebhookParams
	err   error
	token string
}

func (r *recordingExecutor) WebhookExecute(
	_ string,
	token string,
	_ bool,
	data *discordgo.WebhookParams,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	r.sent = append(r.sent, data)
	return nil, r.err
}

func (r *recordingExecutor) Sent() []*discordgo.WebhookParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.WebhookParams(nil), r.sent...)
}

func newTestDevlog(t *testing.T, level slog.Level) (*devlogSink, *recordingExecutor, *fakeClock, *bytes.Buffer) {
	t.Helper()
	executor := &recordingExecutor{}
	stderr := &bytes.Buffer{}
	sink, err := newDevlogSink(
		"https://discord.com/api/webhooks/42/devtoken",
		executor,
		newLevelVar(level),
		NewMetrics(),
		stderr,
	)
	require.NoError(t, err)
	clock := newFakeClock()
	sink.clock = clock
	sink.lastSend = clock.Now()
	return sink, executor, clock, stderr
}

func TestNewDevlogSink_InvalidURL(t *testing.T) {
	t.Parallel()
	_, err := newDevlogSink("https://example.com/nope", &recordingExecutor{}, slog.LevelInfo, nil, nil)
	assert.ErrorIs(t, err, errInvalidWebhookURL)
}

func TestDevlogChunks(t *testing.T) {
	t.Parallel()
	assert.Nil(t, devlogChunks(nil))
	assert.Equal(t, []string{"```prolog\na\nb\n```"}, devlogChunks([]string{"a", "b"}))

	line := strings.Repeat("x", 1000)
	chunks := devlogChunks([]string{line, line, "tail"})
	require.Len(t, chunks, 2)
	assert.Equal(t, "```prolog\n"+line+"\n```", chunks[0])
	assert.Equal(t, "```prolog\n"+line+"\ntail\n```", chunks[1])

	huge := strings.Repeat("y", 3000)
	chunks = devlogChunks([]string{"before", huge, "after"})
	require.Len(t, chunks, 3)
	assert.Equal(t, "```prolog\nbefore\n```", chunks[0])
	assert.Equal(t, "```yaml\n"+strings.Repeat("y", devlogTruncateAt)+"\n... [content truncated]\n```", chunks[1])
	assert.Equal(t, "```prolog\nafter\n```", chunks[2])
}

func TestDevlogHash(t *testing.T) {
	t.Parallel()
	assert.Equal(
		t,
		devlogHash("time=2025-03-01T12:00:00Z level=INFO msg=hello"),
		devlogHash("time=2025-03-01T12:00:05Z level=INFO msg=hello"),
	)
	assert.NotEqual(t, devlogHash("level=INFO msg=hello"), devlogHash("level=INFO msg=world"))

	head := strings.Repeat("h", 50)
	tail := strings.Repeat("t", 50)
	assert.Equal(
		t,
		devlogHash(head+"middle one"+tail),
		devlogHash(head+"a different middle"+tail),
	)
}

func TestDevlogSink_AddDedupes(t *testing.T) {
	t.Parallel()
	sink, _, _, _ := newTestDevlog(t, slog.LevelInfo)

	sink.add("\x1b[2mtime=1\x1b[0m level=INFO msg=hi\n")
	sink.add("time=2 level=INFO msg=hi")
	sink.add("\n")
	sink.add("level=WARN msg=other")

	assert.Equal(t, []string{"time=1 level=INFO msg=hi", "level=WARN msg=other"}, sink.entries)

	for i := range devlogHashLimit {
		sink.add(fmt.Sprintf("line %d", i))
	}
	sink.cleanHashes()
	assert.Empty(t, sink.hashes)
	sink.add("level=WARN msg=other")
	assert.Len(t, sink.entries, devlogHashLimit+3)
}

func TestDevlogSink_Handler(t *testing.T) {
	t.Parallel()
	sink, _, _, _ := newTestDevlog(t, slog.LevelInfo)
	logger := slog.New(sink.Handler()).With("logger", "test").WithGroup("g")

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.Empty(t, sink.flushCh)

	logger.Error("broken")
	assert.Len(t, sink.flushCh, 1)

	require.Len(t, sink.entries, 2)
	assert.Contains(t, sink.entries[0], "msg=shown")
	assert.Contains(t, sink.entries[0], "logger=test")
	assert.Contains(t, sink.entries[0], "g.k=v")
	assert.Contains(t, sink.entries[1], "level=ERROR")
}

func TestDevlogSink_Flush(t *testing.T) {
	t.Parallel()
	sink, executor, clock, _ := newTestDevlog(t, slog.LevelInfo)
	ctx := context.Background()

	sink.add("one")
	sink.flush(ctx, false)
	assert.Empty(t, executor.Sent(), "not due yet")

	clock.Advance(devlogMaxWait)
	sink.flush(ctx, false)
	sent := executor.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, devlogUsername, sent[0].Username)
	assert.Equal(t, "```prolog\none\n```", sent[0].Content)
	assert.Equal(t, "devtoken", executor.token)
	assert.Empty(t, sink.entries)

	for i := range devlogBatchSize {
		sink.add(fmt.Sprintf("batch %d", i))
	}
	sink.flush(ctx, false)
	assert.Len(t, executor.Sent(), 2, "a full batch is sent right away")

	sink.flush(ctx, true)
	assert.Len(t, executor.Sent(), 2, "nothing buffered")
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.metrics.DevlogSends.WithLabelValues(outcomeOK)))
}

func TestDevlogSink_FlushSpacesChunks(t *testing.T) {
	t.Parallel()
	sink, executor, clock, _ := newTestDevlog(t, slog.LevelInfo)
	line := strings.Repeat("z", 1000)
	sink.add(line + "1")
	sink.add(line + "2")

	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.flush(context.Background(), true)
	}()

	require.Eventually(t, func() bool { return clock.Timers() == 1 }, 5*time.Second, time.Millisecond)
	assert.Len(t, executor.Sent(), 1)
	clock.Advance(devlogSendGap)
	<-done
	assert.Len(t, executor.Sent(), 2)
}

func TestDevlogSink_FlushError(t *testing.T) {
	t.Parallel()
	sink, executor, _, stderr := newTestDevlog(t, slog.LevelInfo)
	executor.err = errors.New("rate limited")

	sink.add("x")
	sink.flush(context.Background(), true)
	assert.Contains(t, stderr.String(), "devlog: error sending logs to webhook: rate limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.metrics.DevlogSends.WithLabelValues(outcomeError)))
}

func TestDevlogSink_StartStop(t *testing.T) {
	t.Parallel()
	sink, executor, _, _ := newTestDevlog(t, slog.LevelInfo)
	require.NoError(t, sink.Start(context.Background()))

	logger := slog.New(sink.Handler())
	logger.Error("first failure")
	require.Eventually(
		t,
		func() bool { return len(executor.Sent()) == 1 },
		5*time.Second,
		10*time.Millisecond,
	)
	assert.Contains(t, executor.Sent()[0].Content, "first failure")

	logger.Info("left over")
	sink.Stop()
	sent := executor.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Content, "left over")

	// stopping twice is harmless
	sink.Stop()
}
