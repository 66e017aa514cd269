package gnomebot

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
)

// RoleBinding associates a prefix with the role required to use it and
// the table of commands it dispatches to.
type RoleBinding struct {
	Role   Role
	Prefix string
	RoleID string
	Table  *CommandTable[*PrefixCommand]
}

// Disabled is true when no role ID is configured for the binding
func (b RoleBinding) Disabled() bool {
	return b.RoleID == ""
}

// PrefixInvocation is passed to a [PrefixCommand] handler
type PrefixInvocation struct {
	Message *discordgo.Message
	Member  *discordgo.Member
	Args    []string
	Binding RoleBinding
	Session DiscordSessionHandler
	Logger  *slog.Logger
}

// Author is the user who sent the command message
func (p *PrefixInvocation) Author() *discordgo.User {
	return p.Message.Author
}

// Reply replies to the command message without pinging the author
func (p *PrefixInvocation) Reply(content string) (*discordgo.Message, error) {
	return replyToMessage(p.Session, p.Message, &discordgo.MessageSend{Content: content})
}

// ReplyComplex replies to the command message. Unless AllowedMentions is
// set, the author isn't pinged.
func (p *PrefixInvocation) ReplyComplex(data *discordgo.MessageSend) (*discordgo.Message, error) {
	return replyToMessage(p.Session, p.Message, data)
}

func replyToMessage(
	session DiscordSessionHandler,
	m *discordgo.Message,
	data *discordgo.MessageSend,
) (*discordgo.Message, error) {
	data.Reference = m.Reference()
	if data.AllowedMentions == nil {
		data.AllowedMentions = &discordgo.MessageAllowedMentions{RepliedUser: false}
	}
	return session.ChannelMessageSendComplex(m.ChannelID, data)
}

// PrefixRouter dispatches chat messages starting with a role prefix to
// the matching command. Bindings may be replaced at runtime with Reload;
// a message is always evaluated against one complete set of bindings.
type PrefixRouter struct {
	session  DiscordSessionHandler
	registry *Registry
	bindings atomic.Pointer[[]RoleBinding]
	logger   *slog.Logger
	metrics  *Metrics
}

func newPrefixRouter(
	session DiscordSessionHandler,
	registry *Registry,
	roles RolesConfig,
	logger *slog.Logger,
	metrics *Metrics,
) *PrefixRouter {
	p := &PrefixRouter{
		session:  session,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
	p.Reload(roles)
	return p
}

// Reload swaps in bindings built from the given role IDs
func (p *PrefixRouter) Reload(roles RolesConfig) {
	bindings := make([]RoleBinding, 0, len(Roles))
	for _, role := range Roles {
		b := RoleBinding{
			Role:   role,
			Prefix: role.Prefix(),
			RoleID: roles.RoleID(role),
			Table:  p.registry.Prefix(role),
		}
		if b.Disabled() {
			p.logger.Warn(
				fmt.Sprintf(
					"%s commands disabled: No %s_ROLE_ID",
					role, strings.ToUpper(role.String()),
				),
			)
		}
		bindings = append(bindings, b)
	}
	p.bindings.Store(&bindings)
}

// Bindings returns the current bindings, in evaluation order
func (p *PrefixRouter) Bindings() []RoleBinding {
	return *p.bindings.Load()
}

// Roles returns the role IDs of the current bindings
func (p *PrefixRouter) Roles() RolesConfig {
	var roles RolesConfig
	for _, b := range p.Bindings() {
		switch b.Role {
		case RoleMember:
			roles.Member = b.RoleID
		case RoleContributor:
			roles.Contributor = b.RoleID
		case RoleMaintainer:
			roles.Maintainer = b.RoleID
		}
	}
	return roles
}

// Dispatch handles a message if it starts with a configured prefix. It
// returns true if a prefix matched, whether or not a command ran.
func (p *PrefixRouter) Dispatch(ctx context.Context, m *discordgo.Message) bool {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Content == "" {
		return false
	}

	for _, binding := range p.Bindings() {
		fullPrefix := binding.Prefix + " "
		if !strings.HasPrefix(m.Content, fullPrefix) {
			continue
		}
		p.dispatch(ctx, binding, m, strings.TrimPrefix(m.Content, fullPrefix))
		return true
	}
	return false
}

func (p *PrefixRouter) dispatch(
	ctx context.Context,
	binding RoleBinding,
	m *discordgo.Message,
	remainder string,
) {
	logger := contextLoggerOr(ctx, p.logger).With(
		slog.Group("message", messageLogAttrs(m)...),
		"prefix", binding.Prefix,
	)
	reply := func(content string) {
		if _, err := replyToMessage(p.session, m, &discordgo.MessageSend{Content: content}); err != nil {
			logger.ErrorContext(ctx, "error sending reply", tint.Err(err))
		}
	}

	if binding.Disabled() {
		logger.WarnContext(
			ctx,
			fmt.Sprintf(
				"%s commands disabled: No %s_ROLE_ID",
				binding.Role, strings.ToUpper(binding.Role.String()),
			),
		)
		reply(fmt.Sprintf("`%s` commands are disabled due to missing configuration", binding.Prefix))
		return
	}

	member, err := p.resolveMember(m)
	if err != nil {
		logger.WarnContext(
			ctx,
			fmt.Sprintf("Could not fetch member for %s (%s)", m.Author.String(), m.Author.ID),
			tint.Err(err),
		)
		reply("Unable to verify your roles. Try again later.")
		return
	}

	if !slices.Contains(member.Roles, binding.RoleID) {
		p.metrics.prefixDispatch(binding.Role, "", outcomeRejected)
		reply(
			fmt.Sprintf(
				"You need the **%s** role to use `%s` commands!",
				binding.Role, binding.Prefix,
			),
		)
		return
	}

	args := strings.Fields(remainder)
	if len(args) == 0 {
		reply(fmt.Sprintf("Please specify a command after `%s`.", binding.Prefix))
		return
	}
	commandName := strings.ToLower(args[0])
	args = args[1:]

	command, ok := binding.Table.Get(commandName)
	if !ok {
		reply(fmt.Sprintf("Unknown command `%s` for `%s`.", commandName, binding.Prefix))
		return
	}

	logger = logger.With("command", commandName)
	inv := &PrefixInvocation{
		Message: m,
		Member:  member,
		Args:    args,
		Binding: binding,
		Session: p.session,
		Logger:  logger,
	}

	logger.InfoContext(ctx, "running prefix command", "args", args)
	err = callHandler(
		ctx, logger, func() error {
			return command.Handler(WithLogger(ctx, logger), inv)
		},
	)
	if err != nil {
		p.metrics.prefixDispatch(binding.Role, commandName, outcomeError)
		logger.ErrorContext(
			ctx,
			fmt.Sprintf("%s command %s: %s", binding.Role, commandName, err.Error()),
			tint.Err(err),
		)
		reply("There was an error executing that command!")
		return
	}
	p.metrics.prefixDispatch(binding.Role, commandName, outcomeOK)
}

// resolveMember returns the member attached to the message, fetching it
// when the event didn't include one.
func (p *PrefixRouter) resolveMember(m *discordgo.Message) (*discordgo.Member, error) {
	if m.Member != nil {
		return m.Member, nil
	}
	member, err := p.session.GuildMember(m.GuildID, m.Author.ID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("member %s not found", m.Author.ID)
	}
	return member, nil
}
