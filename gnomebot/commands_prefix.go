package gnomebot

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"strconv"
	"time"
)

const (
	customIDNextMeme   = "next_meme"
	customIDRestartYes = "restart_yes"
	customIDRestartNo  = "restart_no"

	memeCountdownPrefix = "⏳ Time remaining: "
	memeExpiredNotice   = "⌛ Button expired - Use the command again for new memes"
	memeInvalidNotice   = "There was an error while fetching the meme!"
	memeNextFailed      = "Failed to fetch next meme."
	memeUnexpectedError = "An unexpected error occurred. Please try again later."

	purgeMaxMessages   = 100
	purgeMaxAge        = 14 * 24 * time.Hour
	purgeNoticeTimeout = 5 * time.Second

	restartTimeout = 30 * time.Second
	restartDelay   = 3 * time.Second
)

func (b *GnomeBot) prefixCommands() []Command {
	return []Command{
		b.prefixHelp(RoleMember),
		b.prefixMeme(),
		b.prefixHelp(RoleContributor),
		b.prefixPing(),
		b.prefixHelp(RoleMaintainer),
		b.prefixPurge(),
		b.prefixRestart(),
	}
}

// prefixHelpStyle holds the per-role look of the help embed
type prefixHelpStyle struct {
	Color       int
	Title       string
	Description string
	Footer      string
}

var prefixHelpStyles = map[Role]prefixHelpStyle{
	RoleMember: {
		Color:       colorMemberHelp,
		Title:       "Help - Member Command List",
		Description: "Below is a list of available member commands:",
		Footer:      `These are Member Prefix Commands. Use "/help" for Slash Commands`,
	},
	RoleContributor: {
		Color:       colorContributorHelp,
		Title:       "Help - Contributor Command List",
		Description: "Below is a list of available contributor commands:",
		Footer:      `These are Contributor Prefix Commands. Use "/help" for general commands`,
	},
	RoleMaintainer: {
		Color:       colorMaintainerHelp,
		Title:       "Admin Help - Command List",
		Description: "Below is a list of available admin commands:",
		Footer:      `These are Admin Commands. Use "/help" for general commands.`,
	},
}

var prefixHelpDescriptions = map[Role]string{
	RoleMember:      "Displays a list of available prefix commands and their descriptions.",
	RoleContributor: "Displays a list of available contributor commands and their descriptions.",
	RoleMaintainer:  "Displays a list of available maintainer commands and their descriptions.",
}

// helpEmbed lists the commands in table, in the order they were loaded
func helpEmbed(role Role, table *CommandTable[*PrefixCommand]) *discordgo.MessageEmbed {
	style := prefixHelpStyles[role]
	var fields []*discordgo.MessageEmbedField
	for _, cmd := range table.Commands() {
		fallback := role.Prefix() + " " + cmd.Name
		fields = append(
			fields,
			embedField(
				orDefault(cmd.Emoji, "🔹")+" "+cmd.Name,
				fmt.Sprintf(
					"%s\n**Syntax:** `%s`\n**Example:** `%s`",
					orDefault(cmd.Description, "No description"),
					orDefault(cmd.Syntax, fallback),
					orDefault(cmd.Usage, fallback),
				),
				false,
			),
		)
	}
	return &discordgo.MessageEmbed{
		Color:       style.Color,
		Title:       style.Title,
		Description: style.Description,
		Fields:      fields,
		Footer:      embedFooter(style.Footer),
	}
}

func (b *GnomeBot) prefixHelp(role Role) *PrefixCommand {
	usage := role.Prefix() + " help"
	return &PrefixCommand{
		Role:        role,
		Name:        "help",
		Description: prefixHelpDescriptions[role],
		Syntax:      usage,
		Usage:       usage,
		Emoji:       "📚",
		Handler: func(ctx context.Context, inv *PrefixInvocation) error {
			_, err := inv.Session.ChannelMessageSendComplex(
				inv.Message.ChannelID,
				&discordgo.MessageSend{
					Embeds: []*discordgo.MessageEmbed{helpEmbed(role, b.registry.Prefix(role))},
				},
			)
			return err
		},
	}
}

func memeEmbed(meme *Meme, remaining time.Duration) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorDefault,
		Title:       meme.Title,
		Description: "From r/" + meme.Subreddit,
		Image:       &discordgo.MessageEmbedImage{URL: meme.URL},
		Footer: embedFooter(
			fmt.Sprintf(
				"👍 %d | Author: %s | Updates for %ss",
				meme.Ups,
				orDefault(meme.Author, "Unknown"),
				formatSeconds(max(remaining, 0)),
			),
		),
	}
}

func nextMemeButton(disabled bool) discordgo.ActionsRow {
	return actionRow(
		discordgo.Button{
			CustomID: customIDNextMeme,
			Label:    "Next Meme",
			Style:    discordgo.PrimaryButton,
			Disabled: disabled,
		},
	)
}

func (b *GnomeBot) prefixMeme() *PrefixCommand {
	return &PrefixCommand{
		Role:        RoleMember,
		Name:        "meme",
		Description: "Fetches a random meme from Reddit",
		Syntax:      "sudo meme",
		Usage:       "sudo meme",
		Emoji:       "😂",
		Handler: func(ctx context.Context, inv *PrefixInvocation) error {
			logger := inv.Logger
			timeout := b.config.Meme.ButtonTimeout

			meme, err := b.memes.Random(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "error fetching meme", tint.Err(err))
				notice := "❌ Error: " + memeUnexpectedError
				if errors.Is(err, errInvalidMeme) {
					notice = memeInvalidNotice
				}
				_, err = inv.Reply(notice)
				return err
			}

			sent, err := inv.ReplyComplex(
				&discordgo.MessageSend{
					Content:    countdownText(memeCountdownPrefix, timeout),
					Embeds:     []*discordgo.MessageEmbed{memeEmbed(meme, timeout)},
					Components: []discordgo.MessageComponent{nextMemeButton(false)},
				},
			)
			if err != nil {
				return err
			}

			deadline := b.clock.Now().Add(timeout)
			authorID := inv.Author().ID
			collector := NewCollector(
				CollectorOptions[*Responder]{
					Timeout: timeout,
					Clock:   b.clock,
					Filter: func(item *Responder) bool {
						u := item.User()
						return u != nil && u.ID == authorID &&
							item.Interaction().MessageComponentData().CustomID == customIDNextMeme
					},
					OnCollect: func(item *Responder) EndReason {
						if derr := item.DeferUpdate(ctx); derr != nil {
							return ""
						}
						next, merr := b.memes.Random(ctx)
						if merr != nil {
							logger.ErrorContext(ctx, "error fetching next meme", tint.Err(merr))
							sendEphemeral(ctx, item, &discordgo.WebhookParams{Content: memeNextFailed})
							return ""
						}
						_, eerr := item.EditReply(
							ctx,
							&discordgo.WebhookEdit{
								Embeds:     embeds(memeEmbed(next, deadline.Sub(b.clock.Now()))),
								Components: components(nextMemeButton(false)),
							},
						)
						if eerr != nil {
							logger.ErrorContext(ctx, "error updating meme", tint.Err(eerr))
						}
						return ""
					},
					Tick: countdownTick,
					OnTick: func(remaining time.Duration) {
						edit := discordgo.NewMessageEdit(sent.ChannelID, sent.ID).
							SetContent(countdownText(memeCountdownPrefix, remaining))
						_, _ = inv.Session.ChannelMessageEditComplex(edit)
					},
					OnEnd: func(_ []*Responder, _ EndReason) {
						edit := discordgo.NewMessageEdit(sent.ChannelID, sent.ID).SetContent(memeExpiredNotice)
						edit.Components = components(nextMemeButton(true))
						if _, eerr := inv.Session.ChannelMessageEditComplex(edit); eerr != nil {
							logger.ErrorContext(ctx, "error expiring meme button", tint.Err(eerr))
						}
					},
				},
			)
			b.collectors.WatchComponents(ctx, sent.ID, collector)
			return nil
		},
	}
}

func (b *GnomeBot) prefixPing() *PrefixCommand {
	return &PrefixCommand{
		Role:        RoleContributor,
		Name:        "ping",
		Description: "Replies with bot latency information.",
		Syntax:      "$sudo ping",
		Usage:       "$sudo ping",
		Emoji:       "🏓",
		Handler: func(ctx context.Context, inv *PrefixInvocation) error {
			received := b.clock.Now()
			sent, err := inv.Reply("Calculating bot latency...")
			if err != nil {
				return err
			}
			embed, err := b.statusEmbed(ctx, received, colorDefault, "Here is the current status of the bot:")
			if err != nil {
				inv.Logger.ErrorContext(ctx, "error fetching contributors", tint.Err(err))
				_, err = inv.Reply(statusErrorNotice)
				return err
			}
			edit := discordgo.NewMessageEdit(sent.ChannelID, sent.ID).SetContent(" ")
			edit.Embeds = embeds(embed)
			_, err = inv.Session.ChannelMessageEditComplex(edit)
			return err
		},
	}
}

// purgeCandidates filters messages down to the ones bulk delete accepts:
// not pinned, and younger than 14 days.
func purgeCandidates(messages []*discordgo.Message, now time.Time) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Pinned {
			continue
		}
		created, err := discordgo.SnowflakeTimestamp(m.ID)
		if err != nil || now.Sub(created) >= purgeMaxAge {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func commandRunFooter(u *discordgo.User) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{
		Text:    "Command run by " + u.String(),
		IconURL: u.AvatarURL(""),
	}
}

func (b *GnomeBot) prefixPurge() *PrefixCommand {
	return &PrefixCommand{
		Role:        RoleMaintainer,
		Name:        "purge",
		Description: "Deletes a specified number of messages from a channel.",
		Syntax:      "$packman purge <number>",
		Usage:       "$packman purge 10",
		Emoji:       "🧹",
		Handler:     b.handlePurge,
	}
}

func (b *GnomeBot) handlePurge(ctx context.Context, inv *PrefixInvocation) error {
	logger := inv.Logger
	m := inv.Message
	author := inv.Author()
	session := inv.Session

	notice := func(content string) error {
		sent, err := inv.Reply(content)
		if err != nil {
			return err
		}
		b.deleteAfter(ctx, logger, purgeNoticeTimeout, sent)
		return nil
	}

	perms, err := session.UserChannelPermissions(author.ID, m.ChannelID)
	if err != nil {
		return fmt.Errorf("error checking permissions: %w", err)
	}
	if perms&discordgo.PermissionManageMessages == 0 {
		return notice("❌ You need the `Manage Messages` permission to use this command.")
	}

	var count int
	if len(inv.Args) > 0 {
		count, err = strconv.Atoi(inv.Args[0])
	}
	if len(inv.Args) == 0 || err != nil || count < 1 || count > purgeMaxMessages {
		return notice("Please provide a number between 1 and 100.")
	}

	failed := func(err error) error {
		logger.ErrorContext(ctx, "error in purge command", tint.Err(err))
		sent, serr := session.ChannelMessageSendComplex(
			m.ChannelID,
			&discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{
					{
						Color:       colorError,
						Description: "There was an error trying to delete messages in this channel.",
						Footer:      commandRunFooter(author),
					},
				},
			},
		)
		if serr != nil {
			return serr
		}
		b.deleteAfter(ctx, logger, purgeNoticeTimeout, sent)
		return nil
	}

	fetched, err := session.ChannelMessages(m.ChannelID, count, m.ID, "", "")
	if err != nil {
		return failed(err)
	}
	ids := purgeCandidates(fetched, b.clock.Now())
	if len(ids) == 0 {
		return notice("No messages found to delete, or messages are too old (>14 days).")
	}

	if derr := session.ChannelMessageDelete(m.ChannelID, m.ID); derr != nil {
		logger.WarnContext(ctx, "error deleting purge command message", tint.Err(derr))
	}

	confirmID := "confirm_purge_" + author.ID
	cancelID := "cancel_purge_" + author.ID
	confirm, err := session.ChannelMessageSendComplex(
		m.ChannelID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				{
					Color: colorWarning,
					Description: fmt.Sprintf(
						"Are you sure you want to delete %d messages in this channel?\n\n"+
							" > **Note: ⚠️ Due to Discord policy, I cannot delete messages older than 14 days.**",
						len(ids),
					),
					Footer: commandRunFooter(author),
				},
			},
			Components: []discordgo.MessageComponent{
				actionRow(
					discordgo.Button{CustomID: confirmID, Label: "Yes", Style: discordgo.DangerButton},
					discordgo.Button{CustomID: cancelID, Label: "Nevermind", Style: discordgo.SecondaryButton},
				),
			},
		},
	)
	if err != nil {
		return failed(err)
	}

	cleared := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{},
		Components: []discordgo.MessageComponent{},
	}
	collector := NewCollector(
		CollectorOptions[*Responder]{
			Timeout: collectorTimeout,
			Clock:   b.clock,
			Filter: func(item *Responder) bool {
				u := item.User()
				id := item.Interaction().MessageComponentData().CustomID
				return u != nil && u.ID == author.ID && (id == confirmID || id == cancelID)
			},
			OnCollect: func(item *Responder) EndReason {
				var data *discordgo.InteractionResponseData
				if item.Interaction().MessageComponentData().CustomID == cancelID {
					data = &discordgo.InteractionResponseData{
						Content:    "Purge operation canceled.",
						Embeds:     cleared.Embeds,
						Components: cleared.Components,
					}
				} else {
					data = b.purgeMessages(ctx, inv, ids)
				}
				if uerr := item.Update(ctx, data); uerr != nil {
					logger.ErrorContext(ctx, "error updating purge confirmation", tint.Err(uerr))
				}
				return EndReasonUser
			},
			OnEnd: func(collected []*Responder, _ EndReason) {
				if len(collected) > 0 {
					return
				}
				edit := discordgo.NewMessageEdit(confirm.ChannelID, confirm.ID).SetContent("Purge operation timed out.")
				edit.Embeds = embeds()
				edit.Components = components()
				if _, eerr := session.ChannelMessageEditComplex(edit); eerr != nil {
					logger.WarnContext(ctx, "error expiring purge confirmation", tint.Err(eerr))
				}
			},
		},
	)
	b.collectors.WatchComponents(ctx, confirm.ID, collector)
	return nil
}

// purgeMessages deletes the given messages and returns the update for
// the confirmation message.
func (b *GnomeBot) purgeMessages(ctx context.Context, inv *PrefixInvocation, ids []string) *discordgo.InteractionResponseData {
	channelID := inv.Message.ChannelID
	var err error
	if len(ids) == 1 {
		err = inv.Session.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	} else {
		err = inv.Session.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		inv.Logger.ErrorContext(ctx, "error deleting messages", tint.Err(err))
		return &discordgo.InteractionResponseData{
			Content:    "There was an error trying to delete messages. Some messages might be too old.",
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		}
	}
	inv.Logger.InfoContext(ctx, "purged messages", "channel_id", channelID, "count", len(ids))
	return &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{
			{
				Color:       colorSuccess,
				Description: fmt.Sprintf("Successfully deleted %d messages in this channel.", len(ids)),
				Footer:      commandRunFooter(inv.Author()),
			},
		},
		Components: []discordgo.MessageComponent{},
	}
}

func (b *GnomeBot) prefixRestart() *PrefixCommand {
	return &PrefixCommand{
		Role:        RoleMaintainer,
		Name:        "restart",
		Description: "Restarts the bot with confirmation.",
		Syntax:      "$packman restart",
		Usage:       "$packman restart",
		Emoji:       "🔄",
		Handler:     b.handleRestart,
	}
}

func (b *GnomeBot) handleRestart(ctx context.Context, inv *PrefixInvocation) error {
	logger := inv.Logger
	author := inv.Author()

	confirm, err := inv.ReplyComplex(
		&discordgo.MessageSend{
			Content: "Do you really want to restart the bot?",
			Components: []discordgo.MessageComponent{
				actionRow(
					discordgo.Button{CustomID: customIDRestartYes, Label: "Yes", Style: discordgo.SuccessButton},
					discordgo.Button{CustomID: customIDRestartNo, Label: "No", Style: discordgo.DangerButton},
				),
			},
		},
	)
	if err != nil {
		return err
	}

	collector := NewCollector(
		CollectorOptions[*Responder]{
			Timeout: restartTimeout,
			Clock:   b.clock,
			OnCollect: func(item *Responder) EndReason {
				u := item.User()
				if u == nil || u.ID != author.ID {
					if rerr := item.ReplyEphemeral(ctx, "Only the command initiator can use these buttons."); rerr != nil {
						logger.ErrorContext(ctx, "error rejecting restart button", tint.Err(rerr))
					}
					return ""
				}

				switch item.Interaction().MessageComponentData().CustomID {
				case customIDRestartYes:
					uerr := item.Update(
						ctx,
						&discordgo.InteractionResponseData{
							Content:    "The bot is restarting...",
							Components: []discordgo.MessageComponent{},
						},
					)
					if uerr != nil {
						logger.ErrorContext(ctx, "error updating restart confirmation", tint.Err(uerr))
					}
					marker := restartMarker{
						ChannelID: confirm.ChannelID,
						MessageID: confirm.ID,
						UserID:    author.ID,
						Timestamp: b.clock.Now().UnixMilli(),
					}
					if werr := writeRestartMarker(b.config.RestartMarker, marker); werr != nil {
						logger.ErrorContext(ctx, "error writing restart marker", tint.Err(werr))
					}
					b.scheduleRestart(ctx, logger, restartDelay)
				case customIDRestartNo:
					uerr := item.Update(
						ctx,
						&discordgo.InteractionResponseData{
							Content:    "Restart cancelled.",
							Components: []discordgo.MessageComponent{},
						},
					)
					if uerr != nil {
						logger.ErrorContext(ctx, "error updating restart confirmation", tint.Err(uerr))
					}
				default:
					_ = item.DeferUpdate(ctx)
					return ""
				}
				return EndReasonUser
			},
			OnEnd: func(_ []*Responder, reason EndReason) {
				if reason != EndReasonTime {
					return
				}
				edit := discordgo.NewMessageEdit(confirm.ChannelID, confirm.ID).SetContent("Restart command timed out.")
				edit.Components = components()
				if _, eerr := inv.Session.ChannelMessageEditComplex(edit); eerr != nil {
					logger.WarnContext(ctx, "error expiring restart confirmation", tint.Err(eerr))
				}
			},
		},
	)
	b.collectors.WatchComponents(ctx, confirm.ID, collector)
	return nil
}
