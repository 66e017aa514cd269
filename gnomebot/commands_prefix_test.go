package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"strconv"
	"testing"
	"time"
)

// snowflakeAt returns a snowflake ID for the given creation time
func snowflakeAt(t time.Time, seq int64) string {
	const discordEpochMS = 1420070400000
	return strconv.FormatInt(((t.UnixMilli()-discordEpochMS)<<22)|seq, 10)
}

func newTestInvocation(
	session DiscordSessionHandler,
	content string,
	args ...string,
) *PrefixInvocation {
	return &PrefixInvocation{
		Message: &discordgo.Message{
			ID:        "cmd-msg",
			ChannelID: "chan",
			GuildID:   "guild",
			Author:    testUser,
			Content:   content,
		},
		Member:  &discordgo.Member{User: testUser},
		Args:    args,
		Session: session,
		Logger:  slog.Default(),
	}
}

func TestPurgeCandidates(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []*discordgo.Message{
		{ID: snowflakeAt(now.Add(-time.Hour), 1)},
		{ID: snowflakeAt(now.Add(-time.Hour), 2), Pinned: true},
		{ID: snowflakeAt(now.Add(-13*24*time.Hour), 3)},
		{ID: snowflakeAt(now.Add(-14*24*time.Hour), 4)},
		{ID: "not-a-snowflake"},
	}
	assert.Equal(t, []string{messages[0].ID, messages[2].ID}, purgeCandidates(messages, now))
}

func TestHelpEmbed(t *testing.T) {
	t.Parallel()
	table := newCommandTable[*PrefixCommand]()
	require.NoError(
		t,
		table.add(&PrefixCommand{Role: RoleMaintainer, Name: "purge", Description: "Deletes", Emoji: "🧹"}),
	)
	require.NoError(t, table.add(&PrefixCommand{Role: RoleMaintainer, Name: "bare"}))

	embed := helpEmbed(RoleMaintainer, table)
	assert.Equal(t, "Admin Help - Command List", embed.Title)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "🧹 purge", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, "Deletes")
	assert.Equal(t, "🔹 bare", embed.Fields[1].Name)
	assert.Contains(t, embed.Fields[1].Value, "No description")
	assert.Contains(t, embed.Fields[1].Value, "`$packman bare`")
}

func TestHandlePurge_RequiresPermission(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)

	require.NoError(t, b.handlePurge(context.Background(), newTestInvocation(session, "$packman purge 5", "5")))
	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Data.Content, "Manage Messages")
}

func TestHandlePurge_InvalidCount(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{nil, {"0"}, {"101"}, {"ten"}} {
		session := newMockDiscordSession()
		session.permissions = discordgo.PermissionManageMessages
		b := newTestBot(t, session)

		require.NoError(t, b.handlePurge(context.Background(), newTestInvocation(session, "$packman purge", args...)))
		sent := session.Sent()
		require.Len(t, sent, 1, "%v", args)
		assert.Equal(t, "Please provide a number between 1 and 100.", sent[0].Data.Content)
	}
}

func TestHandlePurge_Confirm(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	session.permissions = discordgo.PermissionManageMessages
	b := newTestBot(t, session)
	now := time.Now()
	session.channelMessages = []*discordgo.Message{
		{ID: snowflakeAt(now.Add(-time.Minute), 1), ChannelID: "chan"},
		{ID: snowflakeAt(now.Add(-time.Minute), 2), ChannelID: "chan", Pinned: true},
		{ID: snowflakeAt(now.Add(-2*time.Minute), 3), ChannelID: "chan"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.handlePurge(ctx, newTestInvocation(session, "$packman purge 3", "3")))

	assert.Equal(t, []deletedMessage{{ChannelID: "chan", MessageID: "cmd-msg"}}, session.Deleted())
	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Data.Embeds[0].Description, "delete 2 messages")
	confirmID := "1001"

	// someone else's click is ignored
	stranger := &discordgo.User{ID: "999"}
	assert.True(
		t,
		b.collectors.RouteComponent(
			newTestResponder(session, componentInteraction(confirmID, "confirm_purge_"+testUser.ID, stranger)),
		),
	)
	assert.True(
		t,
		b.collectors.RouteComponent(
			newTestResponder(session, componentInteraction(confirmID, "confirm_purge_"+testUser.ID, testUser)),
		),
	)
	b.collectors.Wait()

	session.mu.Lock()
	bulk := session.bulkDeleted
	session.mu.Unlock()
	require.Len(t, bulk, 1)
	assert.Equal(t, []string{session.channelMessages[0].ID, session.channelMessages[2].ID}, bulk[0])

	responses := session.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, responses[0].Type)
	assert.Equal(t, "Successfully deleted 2 messages in this channel.", responses[0].Data.Embeds[0].Description)
}

func TestHandlePurge_Cancel(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	session.permissions = discordgo.PermissionManageMessages
	session.channelMessages = []*discordgo.Message{{ID: snowflakeAt(time.Now(), 1), ChannelID: "chan"}}
	b := newTestBot(t, session)

	require.NoError(t, b.handlePurge(context.Background(), newTestInvocation(session, "$packman purge 1", "1")))
	b.collectors.RouteComponent(
		newTestResponder(session, componentInteraction("1001", "cancel_purge_"+testUser.ID, testUser)),
	)
	b.collectors.Wait()

	responses := session.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, "Purge operation canceled.", responses[0].Data.Content)
	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Empty(t, session.bulkDeleted)
}

func TestHandleRestart_Confirm(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	clock := newFakeClock()
	b.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.handleRestart(ctx, newTestInvocation(session, "$packman restart")))

	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Do you really want to restart the bot?", sent[0].Data.Content)
	confirmID := "1001"

	other := &discordgo.User{ID: "999"}
	b.collectors.RouteComponent(newTestResponder(session, componentInteraction(confirmID, customIDRestartYes, other)))
	b.collectors.RouteComponent(
		newTestResponder(session, componentInteraction(confirmID, customIDRestartYes, testUser)),
	)
	b.collectors.Wait()

	responses := session.Responses()
	require.Len(t, responses, 2)
	assert.Contains(t, responses[0].Data.Content, "Only the command initiator")
	assert.Equal(t, "The bot is restarting...", responses[1].Data.Content)

	marker, err := readRestartMarker(b.config.RestartMarker)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, testUser.ID, marker.UserID)
	assert.Equal(t, confirmID, marker.MessageID)
	assert.Equal(t, clock.Now().UnixMilli(), marker.Timestamp)

	assert.False(t, b.RestartRequested())
	clock.Advance(restartDelay)
	require.Eventually(t, b.RestartRequested, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, b.signalStop, 1)
}

func TestHandleRestart_TimesOut(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	b := newTestBot(t, session)
	clock := newFakeClock()
	b.clock = clock

	require.NoError(t, b.handleRestart(context.Background(), newTestInvocation(session, "$packman restart")))
	require.Eventually(t, func() bool { return clock.Timers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(restartTimeout)
	b.collectors.Wait()

	edits := session.Edits()
	require.Len(t, edits, 1)
	require.NotNil(t, edits[0].Content)
	assert.Equal(t, "Restart command timed out.", *edits[0].Content)
	assert.False(t, b.RestartRequested())
}
