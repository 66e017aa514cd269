package gnomebot

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
	"time"
)

type fakeInfoSource struct {
	summaries map[string]*PageSummary
}

func (f fakeInfoSource) Summary(_ context.Context, title string) (*PageSummary, error) {
	s, ok := f.summaries[title]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (d *mockDiscordSession) Reactions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reactions...)
}

func newTestMascotGame(t *testing.T, session *mockDiscordSession) (*MascotGame, *fakeClock) {
	t.Helper()
	redPanda := &PageSummary{Title: "Red panda", Extract: "The red panda is a small mammal."}
	redPanda.ContentURLs.Desktop.Page = "https://en.wikipedia.org/wiki/Red_panda"

	g := NewMascotGame(
		MascotConfig{
			Enabled:           true,
			ChannelID:         "mascot-chan",
			Mascot:            " Red Panda ",
			LogChannelID:      "audit",
			WrongGuessEmoji:   "wrong:123",
			PromptDeleteDelay: 5 * time.Second,
		},
		session,
		newClassifierWithKeywords(nil, []string{"red panda", "cat", "lion"}, nil, nil),
		fakeInfoSource{summaries: map[string]*PageSummary{"red panda": redPanda}},
		slog.Default(),
		NewMetrics(),
	)
	clock := newFakeClock()
	g.clock = clock
	return g, clock
}

func guess(id string, content string) *discordgo.Message {
	return &discordgo.Message{ID: id, ChannelID: "mascot-chan", GuildID: "guild", Author: testUser, Content: content}
}

func TestIsCorrectGuess(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		mascot   string
		content  string
		expected bool
	}{
		{"red panda", "Is it a RED PANDA?", true},
		{"red panda", "panda that is red", true},
		{"red panda", "a panda", false},
		{"lion", "lionfish", true},
		{"lion", "tiger", false},
		{"", "anything", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, isCorrectGuess(tc.mascot, tc.content), "%q in %q", tc.mascot, tc.content)
	}
}

func TestNewMascotGame_Disabled(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	for _, cfg := range []MascotConfig{
		{Enabled: false, ChannelID: "c", Mascot: "cat"},
		{Enabled: true, Mascot: "cat"},
		{Enabled: true, ChannelID: "c", Mascot: "  "},
	} {
		g := NewMascotGame(cfg, session, NewClassifier(nil, nil, nil), nil, slog.Default(), nil)
		assert.False(t, g.Enabled())
		assert.False(t, g.HandleMessage(context.Background(), &discordgo.Message{ChannelID: "c", Author: testUser}))
	}
}

func TestMascotGame_IgnoresOtherMessages(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	g, _ := newTestMascotGame(t, session)
	ctx := context.Background()

	other := guess("1", "red panda")
	other.ChannelID = "general"
	assert.False(t, g.HandleMessage(ctx, other))

	bot := guess("2", "red panda")
	bot.Author = &discordgo.User{ID: "9", Bot: true}
	assert.False(t, g.HandleMessage(ctx, bot))

	assert.Empty(t, session.Sent())
}

func TestMascotGame_CorrectGuess(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	g, _ := newTestMascotGame(t, session)

	require.True(t, g.HandleMessage(context.Background(), guess("m1", "red panda")))

	sent := session.Sent()
	require.Len(t, sent, 2)

	reply := sent[0]
	assert.Equal(t, "mascot-chan", reply.ChannelID)
	assert.Equal(t, "m1", reply.Data.Reference.MessageID)
	embed := reply.Data.Embeds[0]
	assert.Equal(t, "**RED PANDA**", embed.Title)
	assert.Equal(t, "The red panda is a small mammal.", embed.Description)
	assert.Equal(t, "[Read More](https://en.wikipedia.org/wiki/Red_panda)", embed.Fields[0].Value)

	audit := sent[1]
	assert.Equal(t, "audit", audit.ChannelID)
	assert.Equal(t, colorMascotCorrect, audit.Data.Embeds[0].Color)
	assert.Equal(t, "**Correct Guess**: red panda", audit.Data.Embeds[0].Description)

	assert.Equal(t, []string{"m1:" + mascotCorrectEmoji}, session.Reactions())
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.MascotOutcomes.WithLabelValues(mascotOutcomeCorrect)))
}

func TestMascotGame_OtherAnimal(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name        string
		content     string
		outcome     string
		color       int
		description string
	}{
		{
			name:        "valid",
			content:     "lion",
			outcome:     mascotOutcomeValid,
			color:       colorMascotValid,
			description: "**Valid Animal**: lion",
		},
		{
			name:        "mixed",
			content:     "maybe a cat here",
			outcome:     mascotOutcomeMixed,
			color:       colorMascotMixed,
			description: "**Mixed Content**: cat (Non-animal words: maybe, here)",
		},
	}
	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				t.Parallel()
				session := newMockDiscordSession()
				g, _ := newTestMascotGame(t, session)

				require.True(t, g.HandleMessage(context.Background(), guess("m1", tc.content)))
				sent := session.Sent()
				require.Len(t, sent, 2)

				// no summary available, so the reply falls back to generic text
				assert.Contains(t, sent[0].Data.Embeds[0].Description, "is a fascinating creature!")
				assert.Equal(t, tc.color, sent[1].Data.Embeds[0].Color)
				assert.Equal(t, tc.description, sent[1].Data.Embeds[0].Description)
				assert.Equal(t, []string{"m1:wrong:123"}, session.Reactions())
				assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.MascotOutcomes.WithLabelValues(tc.outcome)))
			},
		)
	}
}

func TestMascotGame_NotAnAnimal(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	g, clock := newTestMascotGame(t, session)

	require.True(t, g.HandleMessage(context.Background(), guess("m1", "hello everyone")))

	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "<@100>, Please include an animal name in your guess!", sent[0].Data.Content)
	assert.Equal(t, []deletedMessage{{ChannelID: "mascot-chan", MessageID: "m1"}}, session.Deleted())

	require.Eventually(t, func() bool { return clock.Timers() == 1 }, 5*time.Second, time.Millisecond)
	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return len(session.Deleted()) == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, "1001", session.Deleted()[1].MessageID)
	assert.Empty(t, session.Reactions())
}

func TestMascotGame_AnimalInfoFallback(t *testing.T) {
	t.Parallel()
	g, _ := newTestMascotGame(t, newMockDiscordSession())
	g.info = nil

	info := g.animalInfo(context.Background(), "snow leopard")
	assert.Equal(t, "https://en.wikipedia.org/wiki/Snow%20Leopard", info.WikiURL)
	assert.Equal(t, "The snow leopard is a fascinating creature!", info.Description)
	assert.Empty(t, info.ImageURL)
}
