package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"math/rand/v2"
	"slices"
)

var funMessages = []string{
	"Beep boop! 🤖",
	"You rang? 🔔",
	"A wild gnome appears! 🍄",
	"Hello there, fellow human! 👋",
	"Did someone say my name? 👀",
	"Compiling a response... done! ⚙️",
	"sudo make me a sandwich 🥪",
	"Have you tried turning it off and on again? 🔌",
}

// mentionCategories lists the command categories, in display order
var mentionCategories = []struct {
	Role  Role
	Name  string
	Value string
}{
	{RoleMaintainer, "⚙️ Maintainer Commands", "`$packman help` - Advanced server management tools"},
	{RoleContributor, "💻 Contributor Commands", "`$sudo help` - Development and moderation tools"},
	{RoleMember, "👤 Member Commands", "`sudo help` - Community interaction features"},
}

func randomFunMessage() string {
	return funMessages[rand.IntN(len(funMessages))]
}

// mentionEmbed lists the command categories available to a member with
// the given role IDs.
func mentionEmbed(roles RolesConfig, memberRoles []string, funMessage string) *discordgo.MessageEmbed {
	var fields []*discordgo.MessageEmbedField
	for _, c := range mentionCategories {
		roleID := roles.RoleID(c.Role)
		if roleID != "" && slices.Contains(memberRoles, roleID) {
			fields = append(fields, embedField(c.Name, c.Value, false))
		}
	}
	fields = append(fields, embedField("🌍 General Commands", "`/help` - Basic bot functionality", false))

	return &discordgo.MessageEmbed{
		Color:       colorDefault,
		Title:       "🛠️ Available Command Categories",
		Description: funMessage + "\nHere's what you can access:",
		Fields:      fields,
		Footer:      embedFooter("Use the command shown below each category to see details"),
	}
}

// handleMention replies to a message that mentions the bot with the
// command categories its author can use.
func (b *GnomeBot) handleMention(ctx context.Context, m *discordgo.Message) {
	logger := contextLoggerOr(ctx, b.logger).With(slog.Group("message", messageLogAttrs(m)...))

	member := m.Member
	if member == nil && m.GuildID != "" {
		var err error
		member, err = b.discord.session.GuildMember(m.GuildID, m.Author.ID, discordgo.WithContext(ctx))
		if err != nil {
			logger.WarnContext(ctx, "mention handler: error fetching member", tint.Err(err))
			member = nil
		}
	}

	if member == nil {
		_, err := replyToMessage(
			b.discord.session,
			m,
			&discordgo.MessageSend{
				Content: randomFunMessage() + " I couldn't fetch your details! \n Try `/help` instead.",
			},
		)
		if err != nil {
			logger.ErrorContext(ctx, "error sending mention fallback", tint.Err(err))
		}
		return
	}

	roles := b.prefixRouter.Roles()
	_, err := replyToMessage(
		b.discord.session,
		m,
		&discordgo.MessageSend{
			Embeds:          []*discordgo.MessageEmbed{mentionEmbed(roles, member.Roles, randomFunMessage())},
			AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: true},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error replying to mention", tint.Err(err))
	}
}
