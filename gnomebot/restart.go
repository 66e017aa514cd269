package gnomebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// restartMarkerMaxAge is how old a restart marker may be and still
// produce a "restarted" notice
const restartMarkerMaxAge = 5 * time.Minute

// restartMarker is written by `$packman restart` right before the bot
// restarts, so the new process can tell the initiator it's back.
type restartMarker struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`

	// Unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

func writeRestartMarker(path string, marker restartMarker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// readRestartMarker returns the marker at path, or nil if there isn't one
func readRestartMarker(path string) (*restartMarker, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var marker restartMarker
	if err = json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("error parsing restart marker %s: %w", path, err)
	}
	return &marker, nil
}

// processRestartMarker notifies the restart initiator, if the marker is
// recent, and removes the marker file either way.
func (b *GnomeBot) processRestartMarker(ctx context.Context) {
	path := b.config.RestartMarker
	logger := b.logger.With(loggerNameKey, "restart")

	marker, err := readRestartMarker(path)
	if err != nil {
		logger.ErrorContext(ctx, "error handling restart notification", tint.Err(err))
	}
	if marker == nil {
		if err != nil {
			removeRestartMarker(logger, path)
		}
		return
	}
	defer removeRestartMarker(logger, path)

	age := b.clock.Now().Sub(time.UnixMilli(marker.Timestamp))
	if age >= restartMarkerMaxAge {
		logger.InfoContext(ctx, "ignoring stale restart marker", "age", age)
		return
	}
	_, err = b.discord.session.ChannelMessageSendComplex(
		marker.ChannelID,
		&discordgo.MessageSend{
			Content: fmt.Sprintf("<@%s>, the bot has been restarted successfully!", marker.UserID),
		},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error sending restart notification", tint.Err(err))
		return
	}
	logger.InfoContext(ctx, "sent restart notification", "channel_id", marker.ChannelID, "user_id", marker.UserID)
}

func removeRestartMarker(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("error removing restart marker", "path", path, tint.Err(err))
	}
}

// scheduleRestart stops the bot after delay and flags it for restart.
// The caller of Run is responsible for re-executing the process.
func (b *GnomeBot) scheduleRestart(ctx context.Context, logger *slog.Logger, delay time.Duration) {
	timer := b.clock.NewTimer(delay)
	b.spawn(ctx, func() {
		defer timer.Stop()
		select {
		case <-timer.C():
		case <-ctx.Done():
			return
		}
		logger.Warn("restarting on request")
		b.restartRequested.Store(true)
		b.Stop()
	})
}

// RestartRequested reports whether the last Run ended because a
// maintainer asked for a restart.
func (b *GnomeBot) RestartRequested() bool {
	return b.restartRequested.Load()
}
