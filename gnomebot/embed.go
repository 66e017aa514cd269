package gnomebot

import (
	"github.com/bwmarrin/discordgo"
	"strconv"
	"time"
)

// Embed colors
const (
	colorDefault = 0x62a0ea
	colorSuccess = 0x33d17a
	colorError   = 0xe01b24
	colorWarning = 0xf6d32d

	// colorTeal is used by the help and status embeds
	colorTeal = 0x00ae86

	colorMemberHelp      = 0x00ae86
	colorContributorHelp = 0x3498db
	colorMaintainerHelp  = 0xe74c3c

	colorMascotCorrect = 0x00ff00
	colorMascotMixed   = 0xffff00
	colorMascotValid   = 0x808080
)

// collectorTimeout is the lifetime of most interactive messages
const collectorTimeout = 100 * time.Second

// countdownTick is how often countdown text on interactive messages is
// refreshed. Message edits are rate limited.
const countdownTick = 5 * time.Second

// maxEmbedDescription is discord's limit on embed descriptions
const maxEmbedDescription = 4096

func embedField(name, value string, inline bool) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func embedFooter(text string) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: text}
}

func embedThumbnail(u string) *discordgo.MessageEmbedThumbnail {
	if u == "" {
		return nil
	}
	return &discordgo.MessageEmbedThumbnail{URL: u}
}

func embedTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func embeds(e ...*discordgo.MessageEmbed) *[]*discordgo.MessageEmbed {
	return &e
}

func components(c ...discordgo.MessageComponent) *[]discordgo.MessageComponent {
	if c == nil {
		c = []discordgo.MessageComponent{}
	}
	return &c
}

// actionRow wraps the given components in a single action row
func actionRow(c ...discordgo.MessageComponent) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: c}
}

func linkButton(label, u string, emoji *discordgo.ComponentEmoji) discordgo.Button {
	return discordgo.Button{
		Label: label,
		Style: discordgo.LinkButton,
		URL:   u,
		Emoji: emoji,
	}
}

// countdownText renders the remaining time in whole seconds
func countdownText(prefix string, remaining time.Duration) string {
	return prefix + formatSeconds(remaining) + " seconds"
}

func formatSeconds(d time.Duration) string {
	return strconv.Itoa(int((d + time.Second - 1) / time.Second))
}
