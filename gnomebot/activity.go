package gnomebot

import (
	_ "embed"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
	"log/slog"
	"strings"
	"sync"
	"time"
)

//go:embed activities.yaml
var activitiesYAML []byte

var activityTypes = map[string]discordgo.ActivityType{
	"PLAYING":   discordgo.ActivityTypeGame,
	"STREAMING": discordgo.ActivityTypeStreaming,
	"LISTENING": discordgo.ActivityTypeListening,
	"WATCHING":  discordgo.ActivityTypeWatching,
	"COMPETING": discordgo.ActivityTypeCompeting,
}

// Activity is one presence entry shown under the bot's name
type Activity struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func (a Activity) discordActivity() (*discordgo.Activity, error) {
	t, ok := activityTypes[strings.ToUpper(a.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown activity type %q for %q", a.Type, a.Name)
	}
	return &discordgo.Activity{Name: a.Name, Type: t}, nil
}

// parseActivities decodes a YAML list of activities, rejecting entries
// with an empty name or unknown type.
func parseActivities(data []byte) ([]Activity, error) {
	var activities []Activity
	if err := yaml.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("error parsing activities: %w", err)
	}
	for _, a := range activities {
		if a.Name == "" {
			return nil, fmt.Errorf("activity with empty name (type %q)", a.Type)
		}
		if _, err := a.discordActivity(); err != nil {
			return nil, err
		}
	}
	return activities, nil
}

// activityRotator cycles the bot's presence through a fixed list on a
// cron schedule.
type activityRotator struct {
	session    DiscordSessionHandler
	activities []Activity
	interval   time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	next      int
}

func newActivityRotator(
	session DiscordSessionHandler,
	activities []Activity,
	interval time.Duration,
	logger *slog.Logger,
) *activityRotator {
	return &activityRotator{
		session:    session,
		activities: activities,
		interval:   interval,
		logger:     logger,
	}
}

// Start sets the first activity immediately, then schedules the rest.
// Calling Start while already running restarts the schedule, which
// happens when the gateway reconnects.
func (a *activityRotator) Start() error {
	a.Stop()
	if len(a.activities) == 0 {
		return nil
	}

	scheduler := cron.New(
		cron.WithChain(cron.Recover(cronLogger{a.logger})),
		cron.WithLogger(cronLogger{a.logger}),
	)
	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", a.interval), a.rotate)
	if err != nil {
		return fmt.Errorf("error scheduling activity rotation: %w", err)
	}

	a.mu.Lock()
	a.scheduler = scheduler
	a.mu.Unlock()

	a.rotate()
	scheduler.Start()
	a.logger.Info("activity rotation started", "count", len(a.activities), "interval", a.interval)
	return nil
}

func (a *activityRotator) Stop() {
	a.mu.Lock()
	scheduler := a.scheduler
	a.scheduler = nil
	a.mu.Unlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

func (a *activityRotator) rotate() {
	a.mu.Lock()
	entry := a.activities[a.next%len(a.activities)]
	a.next = (a.next + 1) % len(a.activities)
	a.mu.Unlock()

	activity, err := entry.discordActivity()
	if err != nil {
		a.logger.Error("invalid activity", tint.Err(err))
		return
	}
	err = a.session.UpdateStatusComplex(
		discordgo.UpdateStatusData{
			Activities: []*discordgo.Activity{activity},
			Status:     string(discordgo.StatusOnline),
		},
	)
	if err != nil {
		a.logger.Warn("error updating presence", "activity", entry.Name, tint.Err(err))
		return
	}
	a.logger.Debug("updated presence", "activity", entry.Name, "type", entry.Type)
}

// cronLogger adapts a slog.Logger to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append(keysAndValues, tint.Err(err))...)
}
