package gnomebot

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"sync/atomic"
)

type DiscordInteractionReceiveMethod string

const (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

// InteractionHandler is the transport an interaction arrived on. The
// gateway and the HTTP webhook answer the first response differently;
// everything after that goes through REST either way.
type InteractionHandler interface {
	// Respond sends the first response
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// GetResponse fetches the message the first response created
	GetResponse(ctx context.Context) (*discordgo.Message, error)

	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	Delete(ctx context.Context, opts ...discordgo.RequestOption)

	// FollowUp sends an additional message after the initial response.
	FollowUp(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error)

	GetInteraction() *discordgo.InteractionCreate

	// InteractionReceiveMethod is "gateway" or "webhook"
	InteractionReceiveMethod() DiscordInteractionReceiveMethod

	Logger() *slog.Logger
}

// GatewayHandler answers interactions received over the gateway, where
// every response is a REST call.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (GatewayHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.DebugContext(ctx, "responded to interaction", "response_type", response.Type)
	}
	return err
}

func (w GatewayHandler) GetResponse(ctx context.Context) (
	*discordgo.Message,
	error,
) {
	msg, err := w.session.InteractionResponse(w.interaction.Interaction)
	if err != nil {
		w.logger.ErrorContext(ctx, "error getting interaction", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	} else {
		w.logger.DebugContext(ctx, "edited interaction")
	}
	return msg, err
}

func (w GatewayHandler) Delete(ctx context.Context, opts ...discordgo.RequestOption) {
	err := w.session.InteractionResponseDelete(
		w.interaction.Interaction,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error deleting interaction response", tint.Err(err))
	}
}

func (w GatewayHandler) FollowUp(
	ctx context.Context,
	params *discordgo.WebhookParams,
) (*discordgo.Message, error) {
	msg, err := w.session.FollowupMessageCreate(w.interaction.Interaction, true, params)
	if err != nil {
		w.logger.ErrorContext(ctx, "error sending follow-up", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// Responder tracks whether an interaction has been acknowledged, so
// callers can choose between replying and following up.
type Responder struct {
	handler      InteractionHandler
	acknowledged atomic.Bool
}

func newResponder(handler InteractionHandler) *Responder {
	return &Responder{handler: handler}
}

func (r *Responder) respond(
	ctx context.Context,
	responseType discordgo.InteractionResponseType,
	data *discordgo.InteractionResponseData,
) error {
	err := r.handler.Respond(
		ctx,
		&discordgo.InteractionResponse{Type: responseType, Data: data},
	)
	if err == nil {
		r.acknowledged.Store(true)
	}
	return err
}

// Reply sends a message as the initial response
func (r *Responder) Reply(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseChannelMessageWithSource, data)
}

// ReplyEphemeral sends a text reply only the invoking user can see
func (r *Responder) ReplyEphemeral(ctx context.Context, content string) error {
	return r.Reply(
		ctx,
		&discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	)
}

// Defer acknowledges the interaction, showing a "thinking" state until
// EditReply is called.
func (r *Responder) Defer(ctx context.Context, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.respond(ctx, discordgo.InteractionResponseDeferredChannelMessageWithSource, data)
}

// DeferUpdate acknowledges a component interaction without changing
// the message it's attached to.
func (r *Responder) DeferUpdate(ctx context.Context) error {
	return r.respond(ctx, discordgo.InteractionResponseDeferredMessageUpdate, nil)
}

// Update edits the message a component is attached to, as the response
// to the component interaction.
func (r *Responder) Update(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseUpdateMessage, data)
}

// ShowModal opens a modal dialog as the response
func (r *Responder) ShowModal(ctx context.Context, data *discordgo.InteractionResponseData) error {
	return r.respond(ctx, discordgo.InteractionResponseModal, data)
}

func (r *Responder) EditReply(ctx context.Context, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return r.handler.Edit(ctx, edit)
}

func (r *Responder) FollowUp(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return r.handler.FollowUp(ctx, params)
}

// Message returns the message created by the initial response
func (r *Responder) Message(ctx context.Context) (*discordgo.Message, error) {
	return r.handler.GetResponse(ctx)
}

// Acknowledged reports whether an initial response (reply, defer, update
// or modal) was sent successfully.
func (r *Responder) Acknowledged() bool {
	return r.acknowledged.Load()
}

func (r *Responder) Interaction() *discordgo.InteractionCreate {
	return r.handler.GetInteraction()
}

func (r *Responder) User() *discordgo.User {
	return getDiscordUser(r.handler.GetInteraction())
}

func (r *Responder) Logger() *slog.Logger {
	return r.handler.Logger()
}

// CommandName returns the application command name, or an empty string
// for other interaction types.
func (r *Responder) CommandName() string {
	i := r.handler.GetInteraction()
	if i.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	return i.ApplicationCommandData().Name
}
