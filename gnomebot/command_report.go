package gnomebot

import (
	"bytes"
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	customIDReportModal = "reportModal"
	customIDReportWhat  = "whatReport"
	customIDReportWhy   = "whyReport"
	customIDReportWhen  = "whenReport"

	reportModalTimeout    = 300 * time.Second
	reportEvidenceTimeout = 120 * time.Second
	reportMaxMessages     = 8
	reportMaxFileSize     = 8_388_608
	reportCleanupDelay    = 5 * time.Second

	reportCancelledNotice = "❌ Report cancelled"
	reportFailedNotice    = "❌ Failed to submit report"
	reportProcessFailed   = "❌ Report process failed"
)

const (
	endReasonReportCancelled EndReason = "userCancelled"
	endReasonReportFinished  EndReason = "userFinished"
)

// reportEvidence is an attachment downloaded during evidence collection
type reportEvidence struct {
	Name        string
	ContentType string
	Data        []byte
}

// reportSubmission holds everything gathered for one report
type reportSubmission struct {
	Reporter *discordgo.User
	What     string
	Why      string
	When     string
	Evidence []reportEvidence
}

func (b *GnomeBot) slashReport() *SlashCommand {
	return &SlashCommand{
		Schema: &discordgo.ApplicationCommand{
			Name:        "report",
			Description: "Submit a formal report to the moderation team",
		},
		Handler: b.handleReport,
	}
}

func reportModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: customIDReportModal,
		Title:    "Submit a Report",
		Components: []discordgo.MessageComponent{
			actionRow(
				discordgo.TextInput{
					CustomID:    customIDReportWhat,
					Label:       "What are you reporting?",
					Style:       discordgo.TextInputParagraph,
					Placeholder: "Describe the issue in detail",
					Required:    true,
					MaxLength:   300,
				},
			),
			actionRow(
				discordgo.TextInput{
					CustomID:    customIDReportWhy,
					Label:       "Why is this important?",
					Style:       discordgo.TextInputParagraph,
					Placeholder: "Explain why moderators should address this",
					MaxLength:   100,
				},
			),
			actionRow(
				discordgo.TextInput{
					CustomID:    customIDReportWhen,
					Label:       "When did this happen?",
					Style:       discordgo.TextInputShort,
					Placeholder: "DD/MM/YYYY or approximate time",
				},
			),
		},
	}
}

// modalValue returns the value of the text input with the given custom ID
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}

func (b *GnomeBot) handleReport(ctx context.Context, r *Responder) error {
	user := r.User()
	if user == nil {
		return fmt.Errorf("no user in report interaction")
	}
	if err := r.ShowModal(ctx, reportModal()); err != nil {
		return err
	}

	logger := r.Logger()
	modal := NewCollector(
		CollectorOptions[*Responder]{
			Timeout: reportModalTimeout,
			Max:     1,
			Clock:   b.clock,
			OnEnd: func(collected []*Responder, reason EndReason) {
				if len(collected) == 0 {
					logger.InfoContext(ctx, "report modal not submitted", "reason", reason)
					return
				}
				sub := collected[0]
				data := sub.Interaction().ModalSubmitData()
				report := &reportSubmission{
					Reporter: user,
					What:     modalValue(data, customIDReportWhat),
					Why:      modalValue(data, customIDReportWhy),
					When:     modalValue(data, customIDReportWhen),
				}
				if err := b.collectEvidence(ctx, sub, report); err != nil {
					logger.ErrorContext(ctx, "report command error", tint.Err(err))
					sendEphemeral(ctx, sub, &discordgo.WebhookParams{Content: reportProcessFailed})
				}
			},
		},
	)
	b.collectors.WatchModal(ctx, user.ID, customIDReportModal, modal)
	return nil
}

// collectEvidence asks the reporter for attachments, then collects their
// messages in the channel until they type done or cancel, the message
// limit is hit, or time runs out.
func (b *GnomeBot) collectEvidence(ctx context.Context, sub *Responder, report *reportSubmission) error {
	logger := sub.Logger()
	err := sub.Reply(
		ctx,
		&discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Color: colorWarning,
					Title: "📁 Evidence Submission",
					Description: strings.Join(
						[]string{
							"**Attach your evidence files now**",
							"- Max 8 files (8MB each)",
							"- Supported: PNG, JPG, MP4, TXT",
							"- Type `done` to submit or `cancel` to abort",
						},
						"\n",
					),
				},
			},
		},
	)
	if err != nil {
		return err
	}

	var cleanup []*discordgo.Message
	evidence := NewCollector(
		CollectorOptions[*discordgo.Message]{
			Timeout: reportEvidenceTimeout,
			Max:     reportMaxMessages,
			Clock:   b.clock,
			OnCollect: func(m *discordgo.Message) EndReason {
				switch strings.ToLower(strings.TrimSpace(m.Content)) {
				case "cancel":
					return endReasonReportCancelled
				case "done":
					return endReasonReportFinished
				}
				for _, a := range m.Attachments {
					if a.Size > reportMaxFileSize {
						sendEphemeral(
							ctx,
							sub,
							&discordgo.WebhookParams{Content: fmt.Sprintf("❌ %s exceeds 8MB limit", a.Filename)},
						)
						continue
					}
					data, derr := b.downloadAttachment(ctx, a.URL)
					if derr != nil {
						logger.ErrorContext(ctx, "error processing attachment", "filename", a.Filename, tint.Err(derr))
						continue
					}
					report.Evidence = append(
						report.Evidence,
						reportEvidence{Name: a.Filename, ContentType: a.ContentType, Data: data},
					)
				}
				cleanup = append(cleanup, m)
				return ""
			},
			OnEnd: func(_ []*discordgo.Message, reason EndReason) {
				switch reason {
				case endReasonReportCancelled, EndReasonTime, EndReasonContext:
					sendEphemeral(ctx, sub, &discordgo.WebhookParams{Content: reportCancelledNotice})
					return
				}
				caseID, serr := b.submitReport(ctx, report)
				if serr != nil {
					logger.ErrorContext(ctx, "report submission error", tint.Err(serr))
					sendEphemeral(ctx, sub, &discordgo.WebhookParams{Content: reportFailedNotice})
					return
				}
				logger.InfoContext(ctx, "report submitted", "case_id", caseID, "files", len(report.Evidence))
				sendEphemeral(
					ctx,
					sub,
					&discordgo.WebhookParams{
						Embeds: []*discordgo.MessageEmbed{
							{
								Color: colorSuccess,
								Description: strings.Join(
									[]string{
										fmt.Sprintf("✅ Report submitted with %d files", len(report.Evidence)),
										"**Case ID:** " + caseID,
										"Moderators will review your submission",
									},
									"\n",
								),
							},
						},
					},
				)
				b.cleanupMessages(ctx, logger, cleanup)
			},
		},
	)
	i := sub.Interaction()
	b.collectors.WatchMessages(ctx, i.ChannelID, report.Reporter.ID, evidence)
	return nil
}

// newCaseID returns a short upper-case report identifier
func newCaseID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

func reportEmbed(caseID string, report *reportSubmission) *discordgo.MessageEmbed {
	attachments := "No files attached"
	if len(report.Evidence) > 0 {
		names := make([]string, 0, len(report.Evidence))
		for _, e := range report.Evidence {
			names = append(names, e.Name)
		}
		attachments = strings.Join(names, "\n")
	}
	return &discordgo.MessageEmbed{
		Color:       colorWarning,
		Title:       "⚠️ New Report - Case " + caseID,
		Description: "Report submitted by " + report.Reporter.String(),
		Fields: []*discordgo.MessageEmbedField{
			embedField("What", orDefault(report.What, "N/A"), false),
			embedField("Why", orDefault(report.Why, "N/A"), false),
			embedField("When", orDefault(report.When, "N/A"), false),
			embedField("Attachments", attachments, false),
		},
		Footer: embedFooter("Reporter ID: " + report.Reporter.ID),
	}
}

// submitReport posts the report and its evidence to the moderator
// webhook, returning the new case ID.
func (b *GnomeBot) submitReport(ctx context.Context, report *reportSubmission) (string, error) {
	if b.config.Report.WebhookURL == "" {
		return "", fmt.Errorf("report.webhook_url is not configured")
	}
	webhookID, token, err := parseWebhookURL(b.config.Report.WebhookURL)
	if err != nil {
		return "", err
	}

	caseID := newCaseID()
	files := make([]*discordgo.File, 0, len(report.Evidence))
	for _, e := range report.Evidence {
		files = append(
			files,
			&discordgo.File{Name: e.Name, ContentType: e.ContentType, Reader: bytes.NewReader(e.Data)},
		)
	}
	params := &discordgo.WebhookParams{
		Content:  "**Case ID:** " + caseID,
		Username: "Report System",
		Embeds:   []*discordgo.MessageEmbed{reportEmbed(caseID, report)},
		Files:    files,
	}
	if u := b.discord.session.BotUser(); u != nil {
		params.AvatarURL = u.AvatarURL("")
	}

	_, err = b.discord.session.WebhookExecute(webhookID, token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("error posting report: %w", err)
	}
	return caseID, nil
}

func (b *GnomeBot) downloadAttachment(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status downloading attachment: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, reportMaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > reportMaxFileSize {
		return nil, fmt.Errorf("attachment exceeds %d bytes", reportMaxFileSize)
	}
	return data, nil
}

// cleanupMessages deletes the given messages after a short delay,
// keeping any that carry attachments.
func (b *GnomeBot) cleanupMessages(ctx context.Context, logger *slog.Logger, messages []*discordgo.Message) {
	var toDelete []*discordgo.Message
	for _, m := range messages {
		if len(m.Attachments) == 0 {
			toDelete = append(toDelete, m)
		}
	}
	b.deleteAfter(ctx, logger, reportCleanupDelay, toDelete...)
}

// deleteAfter deletes the given messages once d has passed, or right
// away if ctx is cancelled first.
func (b *GnomeBot) deleteAfter(
	ctx context.Context,
	logger *slog.Logger,
	d time.Duration,
	messages ...*discordgo.Message,
) {
	if len(messages) == 0 {
		return
	}
	timer := b.clock.NewTimer(d)
	b.spawn(ctx, func() {
		defer timer.Stop()
		select {
		case <-timer.C():
		case <-ctx.Done():
		}
		for _, m := range messages {
			if m == nil {
				continue
			}
			if err := b.discord.session.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
				logger.Warn("error deleting message", "message_id", m.ID, tint.Err(err))
			}
		}
	})
}

// sendEphemeral sends an ephemeral follow-up, logging any failure
func sendEphemeral(ctx context.Context, r *Responder, params *discordgo.WebhookParams) {
	params.Flags |= discordgo.MessageFlagsEphemeral
	if _, err := r.FollowUp(ctx, params); err != nil {
		r.Logger().ErrorContext(ctx, "error sending ephemeral follow-up", tint.Err(err))
	}
}
