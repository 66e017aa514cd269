package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	statusTitle       = "📊 Bot Latency Information and Contributors"
	statusErrorNotice = "There was an error fetching the contributors list. " +
		"Please check if the repository is public or the GitHub token is valid."
)

// runtimeStats is a snapshot of the process and gateway state shown by
// the ping commands
type runtimeStats struct {
	GatewayLatency time.Duration
	HandlerLatency time.Duration
	Uptime         time.Duration
	ServerCount    int
	HeapMB         float64
	SysMB          float64
	Goroutines     int
}

func (b *GnomeBot) runtimeStats(received time.Time) runtimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	session := b.discord.session
	now := b.clock.Now()
	return runtimeStats{
		GatewayLatency: session.HeartbeatLatency(),
		HandlerLatency: now.Sub(received),
		Uptime:         now.Sub(b.startedAt),
		ServerCount:    session.GuildCount(),
		HeapMB:         float64(mem.HeapAlloc) / 1024 / 1024,
		SysMB:          float64(mem.Sys) / 1024 / 1024,
		Goroutines:     runtime.NumGoroutine(),
	}
}

// statusEmbed builds the ping embed. The GitHub contributor lookup is the
// only part that can fail.
func (b *GnomeBot) statusEmbed(
	ctx context.Context,
	received time.Time,
	color int,
	description string,
) (*discordgo.MessageEmbed, error) {
	contributors, err := b.github.RepoContributors(ctx)
	if err != nil {
		return nil, err
	}
	stats := b.runtimeStats(received)

	return &discordgo.MessageEmbed{
		Color:       color,
		Title:       statusTitle,
		Description: description,
		Fields: []*discordgo.MessageEmbedField{
			embedField("💓 Gateway Latency", fmt.Sprintf("%dms", stats.GatewayLatency.Milliseconds()), false),
			embedField("⚙️ Handler Latency", fmt.Sprintf("%dms", stats.HandlerLatency.Milliseconds()), false),
			embedField("⏱️ Uptime", fmt.Sprintf("%d seconds", int(stats.Uptime.Seconds())), false),
			embedField("🌍 Server Count", strconv.Itoa(stats.ServerCount), false),
			embedField("💾 Memory Usage", fmt.Sprintf("%.2f MB", stats.HeapMB), false),
			embedField("🗄️ Reserved Memory", fmt.Sprintf("%.2f MB", stats.SysMB), false),
			embedField("🧵 Goroutines", strconv.Itoa(stats.Goroutines), false),
			embedField("🤖 Bot Version", Version, false),
			embedField("📦 discordgo Version", discordgo.VERSION, false),
			embedField("🐹 Go Version", runtime.Version(), false),
			embedField("👥 Contributor Count (Discord Bot Repo)", strconv.Itoa(len(contributors)), false),
		},
		Footer: embedFooter(
			"Data fetched from Hosting Environment & GitHub API | Top 3 Contributors: " +
				strings.Join(topContributorLogins(contributors, 3), ", "),
		),
	}, nil
}
