package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"strconv"
	"time"
)

const (
	customIDSocialSelect      = "select-social"
	customIDContributorsPrev  = "prev"
	customIDContributorsNext  = "next"
	contributorsEndedNotice   = "The time limit for changing contributors has ended."
	contributorsErrorNotice   = "There was an error fetching the contributors list."
	organizationErrorNotice   = "There was an error fetching the organization data."
	socialExpiredNotice       = "Time expired. Please use the command again to view social media links."
	socialExpiredPlaceholder  = "Selection time expired"
	socialSelectPlaceholder   = "Select a social media platform"
	countdownPrefix           = "Time remaining: "
)

// socialLink is one entry of the /social menu
type socialLink struct {
	Label       string
	Description string
	Value       string
	Emoji       string
	URL         string
}

var socialLinks = []socialLink{
	{
		Label:       "Website",
		Description: "Visit our website",
		Value:       "website",
		Emoji:       "🌐",
		URL:         "https://nepal.gnome.org/",
	},
	{
		Label:       "Facebook",
		Description: "Follow us on Facebook",
		Value:       "facebook",
		Emoji:       "📘",
		URL:         "https://m.facebook.com/61560797123131/",
	},
	{
		Label:       "Instagram",
		Description: "Follow us on Instagram",
		Value:       "instagram",
		Emoji:       "📸",
		URL:         "https://www.instagram.com/gnomenepal/",
	},
	{
		Label:       "LinkedIn",
		Description: "Connect with us on LinkedIn",
		Value:       "linkedin",
		Emoji:       "🔗",
		URL:         "https://www.linkedin.com/company/gnomenepal/posts/?feedView=all",
	},
}

func socialLinkByValue(value string) (socialLink, bool) {
	for _, l := range socialLinks {
		if l.Value == value {
			return l, true
		}
	}
	return socialLink{}, false
}

// slashHelpEntries is the /help listing, in display order
var slashHelpEntries = []struct {
	Name        string
	Description string
}{
	{"help", "Displays a list of available commands and their descriptions."},
	{"ping", "Replies with bot's shards and node latency."},
	{"about", "Provides information about the GNOME-Nepal organization."},
	{"social", "Provides links to our social media accounts."},
	{"contributors", "Displays the list of contributors from the GNOME Nepal GitHub account."},
	{"report", "Submit a formal report to the moderation team."},
}

func (b *GnomeBot) slashCommands() []Command {
	return []Command{
		b.slashHelp(),
		b.slashPing(),
		b.slashAbout(),
		b.slashSocial(),
		b.slashContributors(),
		b.slashReport(),
	}
}

func (b *GnomeBot) slashHelp() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "help",
			Description: "Displays a list of available commands and their descriptions.",
		},
		Handler: func(ctx context.Context, r *Responder) error {
			fields := make([]*discordgo.MessageEmbedField, 0, len(slashHelpEntries))
			for _, e := range slashHelpEntries {
				fields = append(fields, embedField("/"+e.Name, e.Description, false))
			}
			return r.Reply(
				ctx,
				&discordgo.InteractionResponseData{
					Embeds: []*discordgo.MessageEmbed{
						{
							Color:       colorTeal,
							Title:       "Help - Command List",
							Description: "Below is a list of available commands:",
							Fields:      fields,
							Footer:      embedFooter(`These are Slash Commands. Use "$sudo help" for Prefix Commands`),
						},
					},
				},
			)
		},
	}
}

func (b *GnomeBot) slashPing() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "ping",
			Description: "Replies with bot's latency information.",
		},
		Handler: func(ctx context.Context, r *Responder) error {
			received := b.clock.Now()
			if err := r.Defer(ctx, false); err != nil {
				return err
			}
			embed, err := b.statusEmbed(
				ctx,
				received,
				colorTeal,
				"Here is the current status of the bot and its top contributors:",
			)
			if err != nil {
				r.Logger().ErrorContext(ctx, "error fetching contributors", tint.Err(err))
				_, err = r.EditReply(ctx, &discordgo.WebhookEdit{Content: stringPointer(statusErrorNotice)})
				return err
			}
			_, err = r.EditReply(
				ctx,
				&discordgo.WebhookEdit{Content: stringPointer(" "), Embeds: embeds(embed)},
			)
			return err
		},
	}
}

func (b *GnomeBot) slashAbout() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "about",
			Description: "Provides information about the GNOME-Nepal organization.",
		},
		Handler: func(ctx context.Context, r *Responder) error {
			if err := r.Defer(ctx, false); err != nil {
				return err
			}
			org, err := b.github.Organization(ctx)
			if err != nil {
				r.Logger().ErrorContext(ctx, "error fetching organization data", tint.Err(err))
				_, err = r.EditReply(ctx, &discordgo.WebhookEdit{Content: stringPointer(organizationErrorNotice)})
				return err
			}
			_, err = r.EditReply(ctx, &discordgo.WebhookEdit{Embeds: embeds(organizationEmbed(org))})
			return err
		},
	}
}

func organizationEmbed(org *Organization) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorTeal,
		Title:       "About GNOME-Nepal",
		Description: orDefault(org.Description, "No description provided."),
		Fields: []*discordgo.MessageEmbedField{
			embedField("Public Repos", strconv.Itoa(org.PublicRepos), true),
			embedField("Followers", strconv.Itoa(org.Followers), true),
			embedField("Location", orDefault(org.Location, "N/A"), true),
			embedField("Website", orDefault(org.Blog, "N/A"), true),
			embedField("Twitter", orDefault(org.TwitterUsername, "N/A"), true),
			embedField("GitHub URL", orDefault(org.HTMLURL, "N/A"), false),
		},
		Thumbnail: embedThumbnail(org.AvatarURL),
		Footer:    embedFooter("Data fetched from GitHub API"),
	}
}

func socialMenu(disabled bool) discordgo.ActionsRow {
	placeholder := socialSelectPlaceholder
	if disabled {
		placeholder = socialExpiredPlaceholder
	}
	options := make([]discordgo.SelectMenuOption, 0, len(socialLinks))
	for _, l := range socialLinks {
		options = append(
			options,
			discordgo.SelectMenuOption{
				Label:       l.Label,
				Description: l.Description,
				Value:       l.Value,
				Emoji:       &discordgo.ComponentEmoji{Name: l.Emoji},
			},
		)
	}
	return actionRow(
		discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    customIDSocialSelect,
			Placeholder: placeholder,
			Options:     options,
			Disabled:    disabled,
		},
	)
}

func (b *GnomeBot) slashSocial() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "social",
			Description: "Provides social media links for the organization.",
		},
		Handler: func(ctx context.Context, r *Responder) error {
			invoker := r.User()
			embed := &discordgo.MessageEmbed{
				Color: colorDefault,
				Title: "Follow Us on Social Media",
				Description: "Stay connected with us through our social media channels. " +
					"Use the dropdown menu below to select a platform.",
				Footer: embedFooter("Drop Suggestion in any Platforms"),
			}
			err := r.Reply(
				ctx,
				&discordgo.InteractionResponseData{
					Content:    countdownText(countdownPrefix, collectorTimeout),
					Embeds:     []*discordgo.MessageEmbed{embed},
					Components: []discordgo.MessageComponent{socialMenu(false)},
				},
			)
			if err != nil {
				return err
			}
			msg, err := r.Message(ctx)
			if err != nil {
				return err
			}

			logger := r.Logger()
			collector := NewCollector(
				CollectorOptions[*Responder]{
					Timeout: collectorTimeout,
					Clock:   b.clock,
					Filter: func(item *Responder) bool {
						u := item.User()
						return u != nil && invoker != nil && u.ID == invoker.ID
					},
					OnCollect: func(item *Responder) EndReason {
						values := item.Interaction().MessageComponentData().Values
						if len(values) == 0 {
							_ = item.DeferUpdate(ctx)
							return ""
						}
						link, ok := socialLinkByValue(values[0])
						if !ok {
							_ = item.DeferUpdate(ctx)
							return ""
						}
						rerr := item.Reply(
							ctx,
							&discordgo.InteractionResponseData{
								Content: fmt.Sprintf("Click the button below to visit our %s page:", link.Label),
								Flags:   discordgo.MessageFlagsEphemeral,
								Components: []discordgo.MessageComponent{
									actionRow(
										linkButton(
											"Visit "+link.Label,
											link.URL,
											&discordgo.ComponentEmoji{Name: link.Emoji},
										),
									),
								},
							},
						)
						if rerr != nil {
							logger.ErrorContext(ctx, "error replying with social link", tint.Err(rerr))
						}
						return ""
					},
					Tick: countdownTick,
					OnTick: func(remaining time.Duration) {
						_, _ = r.EditReply(
							ctx,
							&discordgo.WebhookEdit{
								Content: stringPointer(countdownText(countdownPrefix, remaining)),
							},
						)
					},
					OnEnd: func(_ []*Responder, _ EndReason) {
						_, _ = r.EditReply(
							ctx,
							&discordgo.WebhookEdit{
								Content:    stringPointer(socialExpiredNotice),
								Components: components(socialMenu(true)),
							},
						)
					},
				},
			)
			b.collectors.WatchComponents(ctx, msg.ID, collector)
			return nil
		},
	}
}

func contributorButtons(index int, total int, disabled bool) discordgo.ActionsRow {
	return actionRow(
		discordgo.Button{
			CustomID: customIDContributorsPrev,
			Label:    "Previous",
			Style:    discordgo.PrimaryButton,
			Disabled: disabled || index == 0,
		},
		discordgo.Button{
			CustomID: customIDContributorsNext,
			Label:    "Next",
			Style:    discordgo.PrimaryButton,
			Disabled: disabled || index >= total-1,
		},
	)
}

func contributorEmbed(c Contributor, index int, total int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:     colorDefault,
		Title:     "👤 " + c.Login,
		URL:       c.HTMLURL,
		Thumbnail: embedThumbnail(c.AvatarURL),
		Fields: []*discordgo.MessageEmbedField{
			embedField("Contributions", strconv.Itoa(c.Contributions), true),
			embedField("GitHub Profile", orDefault(c.HTMLURL, "N/A"), false),
			embedField("Name", orDefault(c.Name, "N/A"), true),
			embedField("Location", orDefault(c.Location, "N/A"), true),
			embedField("Bio", orDefault(c.Bio, "N/A"), false),
			embedField("Company", orDefault(c.Company, "N/A"), true),
			embedField("Blog", orDefault(c.Blog, "N/A"), true),
		},
		Footer: embedFooter(fmt.Sprintf("Contributor %d of %d", index+1, total)),
	}
}

// contributorPager holds the position of one /contributors message. It's
// only touched from its collector's goroutine.
type contributorPager struct {
	contributors []Contributor
	index        int
}

func (p *contributorPager) move(customID string) {
	switch customID {
	case customIDContributorsPrev:
		if p.index > 0 {
			p.index--
		}
	case customIDContributorsNext:
		if p.index < len(p.contributors)-1 {
			p.index++
		}
	}
}

func (p *contributorPager) embed() *discordgo.MessageEmbed {
	return contributorEmbed(p.contributors[p.index], p.index, len(p.contributors))
}

func (p *contributorPager) buttons(disabled bool) discordgo.ActionsRow {
	return contributorButtons(p.index, len(p.contributors), disabled)
}

func (b *GnomeBot) slashContributors() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "contributors",
			Description: "Displays the list of contributors from the GNOME Nepal GitHub organization.",
		},
		Handler: func(ctx context.Context, r *Responder) error {
			if err := r.Defer(ctx, false); err != nil {
				return err
			}
			logger := r.Logger()

			contributors, err := b.github.Contributors(ctx)
			if err != nil || len(contributors) == 0 {
				if err != nil {
					logger.ErrorContext(ctx, "error fetching contributors", tint.Err(err))
				}
				_, err = r.EditReply(ctx, &discordgo.WebhookEdit{Content: stringPointer(contributorsErrorNotice)})
				return err
			}

			pager := &contributorPager{contributors: contributors}
			msg, err := r.EditReply(
				ctx,
				&discordgo.WebhookEdit{
					Content:    stringPointer(countdownText(countdownPrefix, collectorTimeout)),
					Embeds:     embeds(pager.embed()),
					Components: components(pager.buttons(false)),
				},
			)
			if err != nil {
				return err
			}

			collector := NewCollector(
				CollectorOptions[*Responder]{
					Timeout: collectorTimeout,
					Clock:   b.clock,
					Filter: func(item *Responder) bool {
						id := item.Interaction().MessageComponentData().CustomID
						return id == customIDContributorsPrev || id == customIDContributorsNext
					},
					OnCollect: func(item *Responder) EndReason {
						pager.move(item.Interaction().MessageComponentData().CustomID)
						uerr := item.Update(
							ctx,
							&discordgo.InteractionResponseData{
								Embeds:     []*discordgo.MessageEmbed{pager.embed()},
								Components: []discordgo.MessageComponent{pager.buttons(false)},
							},
						)
						if uerr != nil {
							logger.ErrorContext(ctx, "error updating contributors page", tint.Err(uerr))
						}
						return ""
					},
					Tick: countdownTick,
					OnTick: func(remaining time.Duration) {
						_, _ = r.EditReply(
							ctx,
							&discordgo.WebhookEdit{
								Content:    stringPointer(countdownText(countdownPrefix, remaining)),
								Embeds:     embeds(pager.embed()),
								Components: components(pager.buttons(false)),
							},
						)
					},
					OnEnd: func(_ []*Responder, _ EndReason) {
						_, _ = r.EditReply(
							ctx,
							&discordgo.WebhookEdit{
								Content:    stringPointer(contributorsEndedNotice),
								Embeds:     embeds(pager.embed()),
								Components: components(pager.buttons(true)),
							},
						)
					},
				},
			)
			b.collectors.WatchComponents(ctx, msg.ID, collector)
			return nil
		},
	}
}
