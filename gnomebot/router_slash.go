package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
)

const slashErrorNotice = "There was an error while executing this command!"

// SlashRouter dispatches application command interactions to the
// slash command table.
type SlashRouter struct {
	table   *CommandTable[*SlashCommand]
	logger  *slog.Logger
	metrics *Metrics
}

func newSlashRouter(table *CommandTable[*SlashCommand], logger *slog.Logger, metrics *Metrics) *SlashRouter {
	return &SlashRouter{table: table, logger: logger, metrics: metrics}
}

// Dispatch runs the slash command named by the interaction. Unknown
// commands are ignored. A failing handler results in one ephemeral error
// notice, sent as a follow-up if the interaction was already acknowledged.
func (s *SlashRouter) Dispatch(ctx context.Context, r *Responder) {
	name := r.CommandName()
	if name == "" {
		return
	}
	command, ok := s.table.Get(name)
	if !ok {
		contextLoggerOr(ctx, s.logger).WarnContext(ctx, "unknown slash command", "command", name)
		return
	}

	logger := contextLoggerOr(ctx, s.logger).With("command", name)
	ctx = WithLogger(ctx, logger)

	err := callHandler(
		ctx, logger, func() error {
			return command.Handler(ctx, r)
		},
	)
	if err == nil {
		s.metrics.slashDispatch(name, outcomeOK)
		return
	}

	s.metrics.slashDispatch(name, outcomeError)
	logger.ErrorContext(ctx, fmt.Sprintf("Slash command /%s: %s", name, err.Error()), tint.Err(err))

	if r.Acknowledged() {
		_, ferr := r.FollowUp(
			ctx,
			&discordgo.WebhookParams{
				Content: slashErrorNotice,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		)
		if ferr != nil {
			logger.ErrorContext(ctx, "error sending error follow-up", tint.Err(ferr))
		}
		return
	}
	if rerr := r.ReplyEphemeral(ctx, slashErrorNotice); rerr != nil {
		logger.ErrorContext(ctx, "error sending error reply", tint.Err(rerr))
	}
}
