package gnomebot

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"slices"
	"strings"
	"testing"
)

func mentionFieldNames(embed *discordgo.MessageEmbed) []string {
	var names []string
	for _, f := range embed.Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestMentionEmbed(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name        string
		memberRoles []string
		expected    []string
	}{
		{
			name:     "no roles",
			expected: []string{"🌍 General Commands"},
		},
		{
			name:        "maintainer and member",
			memberRoles: []string{testRoles.Member, "unrelated", testRoles.Maintainer},
			expected:    []string{"⚙️ Maintainer Commands", "👤 Member Commands", "🌍 General Commands"},
		},
		{
			name:        "all roles",
			memberRoles: []string{testRoles.Contributor, testRoles.Member, testRoles.Maintainer},
			expected: []string{
				"⚙️ Maintainer Commands",
				"💻 Contributor Commands",
				"👤 Member Commands",
				"🌍 General Commands",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				embed := mentionEmbed(testRoles, tc.memberRoles, "Beep boop! 🤖")
				assert.Equal(t, tc.expected, mentionFieldNames(embed))
				assert.True(t, strings.HasPrefix(embed.Description, "Beep boop! 🤖\n"))
			},
		)
	}
}

func TestMentionEmbed_UnconfiguredRole(t *testing.T) {
	t.Parallel()
	// an empty role ID never matches, even against an empty member role
	embed := mentionEmbed(RolesConfig{Member: "r-member"}, []string{""}, "hi")
	assert.Equal(t, []string{"🌍 General Commands"}, mentionFieldNames(embed))
}

func TestRandomFunMessage(t *testing.T) {
	t.Parallel()
	for range 20 {
		assert.True(t, slices.Contains(funMessages, randomFunMessage()))
	}
}

func TestHandleMention_FetchesMember(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	session.members[testUser.ID] = &discordgo.Member{User: testUser, Roles: []string{testRoles.Contributor}}
	b := newTestBot(t, session)

	b.handleMention(
		context.Background(),
		&discordgo.Message{ID: "m1", ChannelID: "general", GuildID: "guild", Author: testUser},
	)
	sent := session.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Data.Embeds, 1)
	assert.Equal(
		t,
		[]string{"💻 Contributor Commands", "🌍 General Commands"},
		mentionFieldNames(sent[0].Data.Embeds[0]),
	)
	require.NotNil(t, sent[0].Data.AllowedMentions)
	assert.True(t, sent[0].Data.AllowedMentions.RepliedUser)
}

func TestHandleMention_MemberUnavailable(t *testing.T) {
	t.Parallel()
	session := newMockDiscordSession()
	session.memberErr = errors.New("unknown member")
	b := newTestBot(t, session)

	b.handleMention(
		context.Background(),
		&discordgo.Message{ID: "m1", ChannelID: "general", GuildID: "guild", Author: testUser},
	)
	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Data.Embeds)
	assert.Contains(t, sent[0].Data.Content, "I couldn't fetch your details!")
	assert.Equal(t, "m1", sent[0].Data.Reference.MessageID)
}
