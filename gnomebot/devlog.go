package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"hash/fnv"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	devlogUsername      = "Bot Logger"
	devlogChunkSize     = 1900
	devlogTruncateAt    = 1950
	devlogSendGap       = 500 * time.Millisecond
	devlogMaxWait       = 60 * time.Second
	devlogBatchSize     = 15
	devlogHashLimit     = 100
	devlogFlushSchedule = "@every 15s"
	devlogCleanSchedule = "@every 60s"
	devlogStopTimeout   = 10 * time.Second
)

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	timestampPattern = regexp.MustCompile(`time=\S+\s*`)
)

// webhookExecutor posts messages through a discord webhook
type webhookExecutor interface {
	WebhookExecute(
		webhookID string,
		token string,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// devlogSink buffers log lines and ships them to a developer webhook in
// batches. Logging never waits on the network: records are appended to
// the buffer, and sends happen on the sink's own goroutines.
type devlogSink struct {
	webhookID string
	token     string
	executor  webhookExecutor
	level     slog.Leveler
	clock     Clock
	metrics   *Metrics
	stderr    io.Writer

	mu       sync.Mutex
	entries  []string
	hashes   map[uint64]struct{}
	lastSend time.Time

	sendMu    sync.Mutex
	flushCh   chan struct{}
	scheduler *cron.Cron
	cancel    context.CancelFunc
	done      chan struct{}
}

func newDevlogSink(
	webhookURL string,
	executor webhookExecutor,
	level slog.Leveler,
	metrics *Metrics,
	stderr io.Writer,
) (*devlogSink, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("devlog: %w", err)
	}
	return &devlogSink{
		webhookID: id,
		token:     token,
		executor:  executor,
		level:     level,
		clock:     realClock{},
		metrics:   metrics,
		stderr:    stderr,
		hashes:    map[uint64]struct{}{},
		flushCh:   make(chan struct{}, 1),
	}, nil
}

// Handler returns a slog.Handler feeding the sink, one logfmt line per
// record. ERROR records trigger a flush.
func (s *devlogSink) Handler() slog.Handler {
	return &devlogHandler{
		Handler: slog.NewTextHandler(devlogWriter{s}, &slog.HandlerOptions{Level: s.level}),
		sink:    s,
	}
}

// Start schedules the periodic flush and hash cleanup
func (s *devlogSink) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(devlogFlushSchedule, func() { s.flush(ctx, false) }); err != nil {
		cancel()
		return err
	}
	if _, err := scheduler.AddFunc(devlogCleanSchedule, s.cleanHashes); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.scheduler = scheduler
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastSend = s.clock.Now()
	s.mu.Unlock()

	go s.run(ctx)
	scheduler.Start()
	return nil
}

func (s *devlogSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.flushCh:
			s.flush(ctx, true)
		}
	}
}

// Stop halts the schedule and sends whatever is still buffered
func (s *devlogSink) Stop() {
	s.mu.Lock()
	scheduler, cancel, done := s.scheduler, s.cancel, s.done
	s.scheduler = nil
	s.mu.Unlock()
	if scheduler == nil {
		return
	}
	<-scheduler.Stop().Done()
	cancel()
	<-done

	ctx, stop := context.WithTimeout(context.Background(), devlogStopTimeout)
	defer stop()
	s.flush(ctx, true)
}

// add buffers a line unless an equivalent one was seen recently
func (s *devlogSink) add(line string) {
	line = strings.TrimRight(ansiPattern.ReplaceAllString(line, ""), "\n")
	if line == "" {
		return
	}
	h := devlogHash(line)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.hashes[h]; seen {
		return
	}
	s.hashes[h] = struct{}{}
	s.entries = append(s.entries, line)
}

func (s *devlogSink) requestFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

func (s *devlogSink) cleanHashes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.hashes) > devlogHashLimit {
		s.hashes = map[uint64]struct{}{}
	}
}

// flush sends the buffer when forced, when enough entries have piled up,
// or when the last send was long enough ago.
func (s *devlogSink) flush(ctx context.Context, force bool) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	now := s.clock.Now()
	due := force || len(s.entries) >= devlogBatchSize || now.Sub(s.lastSend) >= devlogMaxWait
	if len(s.entries) == 0 || !due {
		s.mu.Unlock()
		return
	}
	entries := s.entries
	s.entries = nil
	s.lastSend = now
	s.mu.Unlock()

	for i, chunk := range devlogChunks(entries) {
		if i > 0 {
			timer := s.clock.NewTimer(devlogSendGap)
			select {
			case <-timer.C():
			case <-ctx.Done():
			}
			timer.Stop()
		}
		_, err := s.executor.WebhookExecute(
			s.webhookID,
			s.token,
			false,
			&discordgo.WebhookParams{Username: devlogUsername, Content: chunk},
			discordgo.WithContext(ctx),
		)
		s.metrics.devlogSend(err)
		if err != nil {
			_, _ = fmt.Fprintf(s.stderr, "devlog: error sending logs to webhook: %v\n", err)
		}
	}
}

// devlogChunks joins entries into code blocks of at most devlogChunkSize
// characters. A single entry longer than that is truncated.
func devlogChunks(entries []string) []string {
	var chunks []string
	var current strings.Builder
	emit := func() {
		if current.Len() > 0 {
			chunks = append(chunks, "```prolog\n"+current.String()+"\n```")
			current.Reset()
		}
	}
	for _, e := range entries {
		if len(e) > devlogChunkSize {
			emit()
			chunks = append(chunks, "```yaml\n"+truncate(e, devlogTruncateAt)+"\n... [content truncated]\n```")
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(e) > devlogChunkSize {
			emit()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(e)
	}
	emit()
	return chunks
}

// devlogHash identifies a line regardless of its timestamp. Long lines
// are identified by their first and last 50 characters.
func devlogHash(line string) uint64 {
	normalized := timestampPattern.ReplaceAllString(line, "")
	if r := []rune(normalized); len(r) > 100 {
		normalized = string(r[:50]) + string(r[len(r)-50:])
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	return h.Sum64()
}

type devlogWriter struct {
	sink *devlogSink
}

func (w devlogWriter) Write(p []byte) (int, error) {
	w.sink.add(string(p))
	return len(p), nil
}

type devlogHandler struct {
	slog.Handler
	sink *devlogSink
}

func (h *devlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= slog.LevelError {
		h.sink.requestFlush()
	}
	return nil
}

func (h *devlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &devlogHandler{Handler: h.Handler.WithAttrs(attrs), sink: h.sink}
}

func (h *devlogHandler) WithGroup(name string) slog.Handler {
	return &devlogHandler{Handler: h.Handler.WithGroup(name), sink: h.sink}
}
