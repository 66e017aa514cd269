package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	mascotFooter       = "UBUCON Asia 2025 - Guess the Mascot"
	mascotCorrectEmoji = "✅"

	mascotOutcomeCorrect = "correct"
	mascotOutcomeMixed   = "mixed"
	mascotOutcomeValid   = "valid"
	mascotOutcomeNone    = "none"
)

// AnimalInfoSource provides descriptive info for a recognized animal
type AnimalInfoSource interface {
	Summary(ctx context.Context, title string) (*PageSummary, error)
}

// AnimalInfo is what the mascot game shows about a recognized animal
type AnimalInfo struct {
	Name        string
	Description string
	ImageURL    string
	WikiURL     string
}

// MascotGame runs the "Guess the Mascot" game in a single channel. Every
// message there is classified: messages naming an animal get an info
// reply, an audit entry and a reaction, and anything else is removed
// with a short-lived prompt to try again.
type MascotGame struct {
	session    DiscordSessionHandler
	classifier *Classifier
	info       AnimalInfoSource
	config     MascotConfig
	mascot     string
	clock      Clock
	logger     *slog.Logger
	metrics    *Metrics
}

// NewMascotGame returns a game for the given config. A game that is
// enabled without a channel or mascot phrase is disabled with a warning.
func NewMascotGame(
	cfg MascotConfig,
	session DiscordSessionHandler,
	classifier *Classifier,
	info AnimalInfoSource,
	logger *slog.Logger,
	metrics *Metrics,
) *MascotGame {
	g := &MascotGame{
		session:    session,
		classifier: classifier,
		info:       info,
		config:     cfg,
		mascot:     strings.ToLower(strings.TrimSpace(cfg.Mascot)),
		clock:      realClock{},
		logger:     logger,
		metrics:    metrics,
	}
	switch {
	case !cfg.Enabled:
		logger.Info("Guess the Mascot is disabled, set mascot.enabled to enable it")
	case cfg.ChannelID == "":
		logger.Warn("Guess the Mascot: no monitored channel ID configured, disabling")
		g.config.Enabled = false
	case g.mascot == "":
		logger.Warn("Guess the Mascot: no mascot configured, disabling")
		g.config.Enabled = false
	default:
		logger.Info(fmt.Sprintf("Guess the Mascot: Monitoring channel %s", cfg.ChannelID))
	}
	return g
}

func (g *MascotGame) Enabled() bool {
	return g.config.Enabled
}

// IsCorrectGuess reports whether content names the mascot: either the
// whole phrase appears, or, for a multi-word mascot, every word of it.
func (g *MascotGame) IsCorrectGuess(content string) bool {
	return isCorrectGuess(g.mascot, content)
}

func isCorrectGuess(mascot string, content string) bool {
	if mascot == "" {
		return false
	}
	lowerContent := strings.ToLower(content)
	if strings.Contains(lowerContent, mascot) {
		return true
	}
	if !strings.Contains(mascot, " ") {
		return false
	}
	return containsAll(lowerContent, strings.Split(mascot, " "))
}

// HandleMessage plays one round for m. It returns false without doing
// anything when the game is disabled, or m isn't a user message in the
// monitored channel.
func (g *MascotGame) HandleMessage(ctx context.Context, m *discordgo.Message) bool {
	if !g.config.Enabled || m.Author == nil || m.Author.Bot || m.ChannelID != g.config.ChannelID {
		return false
	}
	logger := contextLoggerOr(ctx, g.logger).With(slog.Group("message", messageLogAttrs(m)...))

	result := g.classifier.Classify(ctx, m.Content)
	if !result.IsAnimal {
		g.metrics.mascotOutcome(mascotOutcomeNone)
		g.promptRetry(ctx, logger, m)
		return true
	}

	correct := g.IsCorrectGuess(m.Content)
	info := g.animalInfo(ctx, result.AnimalName)

	_, err := replyToMessage(
		g.session,
		m,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{g.replyEmbed(info)},
			Components: []discordgo.MessageComponent{
				actionRow(linkButton("View Full Article", info.WikiURL, nil)),
			},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error replying to guess", tint.Err(err))
	}

	outcome := mascotOutcomeValid
	switch {
	case correct:
		outcome = mascotOutcomeCorrect
	case len(result.NonAnimalWords) > 0:
		outcome = mascotOutcomeMixed
	}
	g.metrics.mascotOutcome(outcome)

	if g.config.LogChannelID != "" {
		_, err = g.session.ChannelMessageSendComplex(
			g.config.LogChannelID,
			&discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{logEmbed(m, result, outcome, g.clock.Now())},
			},
		)
		if err != nil {
			logger.ErrorContext(ctx, "error sending mascot log entry", tint.Err(err))
		}
	}

	reaction := g.config.WrongGuessEmoji
	if correct {
		reaction = mascotCorrectEmoji
	}
	if err = g.session.MessageReactionAdd(m.ChannelID, m.ID, reaction); err != nil {
		logger.ErrorContext(ctx, "error reacting to guess", "emoji", reaction, tint.Err(err))
	}

	logger.InfoContext(ctx, "mascot guess", "animal", result.AnimalName, "outcome", outcome)
	return true
}

// promptRetry removes m and posts a prompt asking for an animal name,
// which is deleted again after PromptDeleteDelay.
func (g *MascotGame) promptRetry(ctx context.Context, logger *slog.Logger, m *discordgo.Message) {
	if err := g.session.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		logger.ErrorContext(ctx, "error deleting message", tint.Err(err))
	}
	prompt, err := g.session.ChannelMessageSendComplex(
		m.ChannelID,
		&discordgo.MessageSend{
			Content: fmt.Sprintf("%s, Please include an animal name in your guess!", m.Author.Mention()),
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error sending prompt", tint.Err(err))
		return
	}

	timer := g.clock.NewTimer(g.config.PromptDeleteDelay)
	go func() {
		defer func() {
			handleRecover(ctx, logger, recover())
		}()
		defer timer.Stop()
		select {
		case <-timer.C():
		case <-ctx.Done():
		}
		if err := g.session.ChannelMessageDelete(prompt.ChannelID, prompt.ID); err != nil {
			logger.Error("error deleting prompt", tint.Err(err))
		}
	}()
}

// animalInfo looks up a summary for the animal, substituting generic
// text when the lookup fails.
func (g *MascotGame) animalInfo(ctx context.Context, animal string) AnimalInfo {
	fallback := AnimalInfo{
		Name:        animal,
		Description: fmt.Sprintf("The %s is a fascinating creature!", animal),
		WikiURL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(cases.Title(language.English).String(animal)),
	}
	if g.info == nil {
		return fallback
	}

	summary, err := g.info.Summary(ctx, animal)
	if err != nil {
		contextLoggerOr(ctx, g.logger).WarnContext(ctx, "error getting animal summary", "animal", animal, tint.Err(err))
		return fallback
	}
	info := AnimalInfo{
		Name:        animal,
		Description: orDefault(summary.Extract, fmt.Sprintf("Learn about %s on Wikipedia!", animal)),
		ImageURL:    summary.ThumbnailURL(),
		WikiURL:     orDefault(summary.ContentURLs.Desktop.Page, fallback.WikiURL),
	}
	return info
}

func (g *MascotGame) replyEmbed(info AnimalInfo) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "**" + cases.Upper(language.English).String(info.Name) + "**",
		Description: truncate(info.Description, 2000),
		Thumbnail:   embedThumbnail(info.ImageURL),
		Fields: []*discordgo.MessageEmbedField{
			embedField(" Wikipedia Article", fmt.Sprintf("[Read More](%s)", info.WikiURL), true),
		},
		Footer:    embedFooter(mascotFooter),
		Timestamp: embedTimestamp(g.clock.Now()),
	}
}

func logEmbed(
	m *discordgo.Message,
	result ClassificationResult,
	outcome string,
	now time.Time,
) *discordgo.MessageEmbed {
	var color int
	var description string
	switch outcome {
	case mascotOutcomeCorrect:
		color = colorMascotCorrect
		description = "**Correct Guess**: " + result.AnimalName
	case mascotOutcomeMixed:
		color = colorMascotMixed
		description = fmt.Sprintf(
			"**Mixed Content**: %s (Non-animal words: %s)",
			result.AnimalName,
			strings.Join(result.NonAnimalWords, ", "),
		)
	default:
		color = colorMascotValid
		description = "**Valid Animal**: " + result.AnimalName
	}

	return &discordgo.MessageEmbed{
		Color: color,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    m.Author.String(),
			IconURL: m.Author.AvatarURL(""),
		},
		Description: description,
		Fields: []*discordgo.MessageEmbedField{
			embedField("Channel", "<#"+m.ChannelID+">", true),
			embedField("Message ID", m.ID, true),
		},
		Footer:    embedFooter(mascotFooter),
		Timestamp: embedTimestamp(now),
	}
}
