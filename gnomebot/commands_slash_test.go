package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func selectInteraction(messageID string, user *discordgo.User, values ...string) *discordgo.InteractionCreate {
	i := componentInteraction(messageID, customIDSocialSelect, user)
	i.Data = discordgo.MessageComponentInteractionData{
		CustomID:      customIDSocialSelect,
		ComponentType: discordgo.SelectMenuComponent,
		Values:        values,
	}
	return i
}

func lastEdit(t *testing.T, session *mockDiscordSession) *discordgo.WebhookEdit {
	t.Helper()
	edits := session.InteractionEdits()
	require.NotEmpty(t, edits)
	return edits[len(edits)-1]
}

func TestSlashHelp(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)

	r := newTestResponder(session, slashInteraction("help", testUser))
	require.NoError(t, b.slashHelp().Handler(context.Background(), r))

	responses := session.Responses()
	require.Len(t, responses, 1)
	embed := responses[0].Data.Embeds[0]
	assert.Equal(t, "Help - Command List", embed.Title)
	require.Len(t, embed.Fields, len(slashHelpEntries))
	assert.Equal(t, "/help", embed.Fields[0].Name)
	assert.Equal(t, "/report", embed.Fields[5].Name)
}

func TestSlashAbout(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	b.github = newTestGitHub(t, "")

	r := newTestResponder(session, slashInteraction("about", testUser))
	require.NoError(t, b.slashAbout().Handler(context.Background(), r))

	responses := session.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, responses[0].Type)

	embed := (*lastEdit(t, session).Embeds)[0]
	assert.Equal(t, "About GNOME-Nepal", embed.Title)
	assert.Equal(t, "GNOME Nepal", embed.Description)
	assert.Equal(t, "12", embed.Fields[0].Value)
	assert.Equal(t, "40", embed.Fields[1].Value)
	assert.Equal(t, "N/A", embed.Fields[2].Value)
	assert.Equal(t, "https://github.com/gnome-nepal", embed.Fields[5].Value)
}

func TestSlashAbout_Error(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	b.github = newTestGitHub(t, "")
	b.github.org = "missing"

	r := newTestResponder(session, slashInteraction("about", testUser))
	require.NoError(t, b.slashAbout().Handler(context.Background(), r))
	assert.Equal(t, organizationErrorNotice, *lastEdit(t, session).Content)
}

func TestSlashPing(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	b.github = newTestGitHub(t, "")

	r := newTestResponder(session, slashInteraction("ping", testUser))
	require.NoError(t, b.slashPing().Handler(context.Background(), r))

	embed := (*lastEdit(t, session).Embeds)[0]
	assert.Equal(t, statusTitle, embed.Title)
	assert.Equal(t, "42ms", embed.Fields[0].Value)
	assert.Equal(t, "3", embed.Fields[len(embed.Fields)-1].Value)
	assert.Contains(t, embed.Footer.Text, "Top 3 Contributors: a, b, c")
}

func TestSlashPing_Error(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	b.github = newTestGitHub(t, "")
	b.github.repo = "missing"

	r := newTestResponder(session, slashInteraction("ping", testUser))
	require.NoError(t, b.slashPing().Handler(context.Background(), r))
	assert.Equal(t, statusErrorNotice, *lastEdit(t, session).Content)
}

func TestSocialLinkByValue(t *testing.T) {
	t.Parallel()
	link, ok := socialLinkByValue("instagram")
	require.True(t, ok)
	assert.Equal(t, "Instagram", link.Label)

	_, ok = socialLinkByValue("myspace")
	assert.False(t, ok)
}

func TestSlashSocial(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	clock := newFakeClock()
	b.clock = clock
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := newTestResponder(session, slashInteraction("social", testUser))
	require.NoError(t, b.slashSocial().Handler(ctx, r))

	responses := session.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, "Time remaining: 100 seconds", responses[0].Data.Content)
	menu := responses[0].Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Len(t, menu.Options, len(socialLinks))
	assert.False(t, menu.Disabled)

	stranger := &discordgo.User{ID: "200", Username: "ram"}
	require.True(t, b.collectors.RouteComponent(newTestResponder(session, selectInteraction("response-i-social", stranger, "website"))))
	require.True(t, b.collectors.RouteComponent(newTestResponder(session, selectInteraction("response-i-social", testUser, "website"))))

	require.Eventually(t, func() bool { return len(session.Responses()) == 2 }, 5*time.Second, time.Millisecond)
	link := session.Responses()[1]
	assert.Equal(t, discordgo.MessageFlagsEphemeral, link.Data.Flags)
	assert.Equal(t, "Click the button below to visit our Website page:", link.Data.Content)
	button := link.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "https://nepal.gnome.org/", button.URL)

	clock.Advance(collectorTimeout)
	b.collectors.Wait()

	edit := lastEdit(t, session)
	assert.Equal(t, socialExpiredNotice, *edit.Content)
	expired := (*edit.Components)[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.True(t, expired.Disabled)
	assert.Equal(t, socialExpiredPlaceholder, expired.Placeholder)
}

func TestContributorPager(t *testing.T) {
	t.Parallel()
	p := &contributorPager{contributors: []Contributor{{Login: "a"}, {Login: "b"}, {Login: "c"}}}

	p.move(customIDContributorsPrev)
	assert.Equal(t, 0, p.index)
	buttons := p.buttons(false).Components
	assert.True(t, buttons[0].(discordgo.Button).Disabled)
	assert.False(t, buttons[1].(discordgo.Button).Disabled)

	p.move(customIDContributorsNext)
	p.move(customIDContributorsNext)
	p.move(customIDContributorsNext)
	assert.Equal(t, 2, p.index)
	assert.Equal(t, "👤 c", p.embed().Title)
	assert.Equal(t, "Contributor 3 of 3", p.embed().Footer.Text)
	assert.True(t, p.buttons(false).Components[1].(discordgo.Button).Disabled)

	p.move("unknown")
	assert.Equal(t, 2, p.index)
	for _, c := range p.buttons(true).Components {
		assert.True(t, c.(discordgo.Button).Disabled)
	}
}

func TestSlashContributors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[{"login":"a","contributions":3},{"login":"b","name":"Bishal"}]`))
			},
		),
	)
	t.Cleanup(srv.Close)

	session := newMockDiscordSession()
	b := newTestBot(t, session)
	clock := newFakeClock()
	b.clock = clock
	b.github = newTestGitHub(t, "")
	b.github.contributorsURL = srv.URL
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := newTestResponder(session, slashInteraction("contributors", testUser))
	require.NoError(t, b.slashContributors().Handler(ctx, r))

	first := lastEdit(t, session)
	assert.Equal(t, "Time remaining: 100 seconds", *first.Content)
	assert.Equal(t, "Contributor 1 of 2", (*first.Embeds)[0].Footer.Text)

	require.True(
		t,
		b.collectors.RouteComponent(
			newTestResponder(session, componentInteraction("response-i-contributors", customIDContributorsNext, testUser)),
		),
	)
	require.Eventually(t, func() bool { return len(session.Responses()) == 2 }, 5*time.Second, time.Millisecond)
	update := session.Responses()[1]
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, update.Type)
	assert.Equal(t, "👤 b", update.Data.Embeds[0].Title)
	assert.Equal(t, "Bishal", update.Data.Embeds[0].Fields[2].Value)

	clock.Advance(collectorTimeout)
	b.collectors.Wait()

	ended := lastEdit(t, session)
	assert.Equal(t, contributorsEndedNotice, *ended.Content)
	assert.Equal(t, "Contributor 2 of 2", (*ended.Embeds)[0].Footer.Text)
	for _, c := range (*ended.Components)[0].(discordgo.ActionsRow).Components {
		assert.True(t, c.(discordgo.Button).Disabled)
	}
}

func TestSlashContributors_Empty(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			},
		),
	)
	t.Cleanup(srv.Close)

	session := newMockDiscordSession()
	b := newTestBot(t, session)
	b.github = newTestGitHub(t, "")
	b.github.contributorsURL = srv.URL

	r := newTestResponder(session, slashInteraction("contributors", testUser))
	require.NoError(t, b.slashContributors().Handler(context.Background(), r))
	assert.Equal(t, contributorsErrorNotice, *lastEdit(t, session).Content)
}
