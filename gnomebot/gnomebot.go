package gnomebot

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Build info, set with -ldflags "-X github.com/NightSling/discord-bot/gnomebot.Version=..."
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

const shutdownAnnouncementInterval = 10 * time.Second

// GnomeBot is the bot itself. It owns the discord session, the command
// routers, the collectors waiting on follow-up events, the background
// jobs (activity rotation, developer log shipping) and the optional
// HTTP server.
type GnomeBot struct {
	config *Config
	logger *slog.Logger

	logWriter io.Writer
	logFile   io.Closer
	devlog    *devlogSink

	discord      *Discord
	metrics      *Metrics
	registry     *Registry
	slashRouter  *SlashRouter
	prefixRouter *PrefixRouter
	collectors   *collectorHub

	mascot     *MascotGame
	classifier *Classifier
	wikipedia  *WikipediaClient
	github     *GitHubClient
	memes      *MemeClient
	activities *activityRotator
	server     *Server

	clock      Clock
	httpClient *http.Client

	// getInteractionHandlerFunc wraps interactions received via the
	// gateway. Overridden in tests.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	runMu      sync.Mutex
	signalStop chan struct{}
	startedAt  time.Time

	ctxMu  sync.RWMutex
	runCtx context.Context

	// tracks event handlers and delayed work spawned while running
	runtimeWG sync.WaitGroup

	firstReady       atomic.Bool
	restartRequested atomic.Bool
}

// New creates a bot from config. Nothing connects to discord until Run.
func New(config *Config) (*GnomeBot, error) {
	var errs []error

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &GnomeBot{
		config:     config,
		metrics:    NewMetrics(),
		collectors: newCollectorHub(),
		clock:      realClock{},
		httpClient: config.HTTPClient,
		signalStop: make(chan struct{}, 1),
	}
	b.logWriter, b.logFile = newLogWriter(os.Stdout, config.LogFile)

	if config.Devlog.WebhookURL != "" {
		// the developer log posts through a token-less session of its own,
		// so it works before (and after) the gateway connection
		executor, err := discordgo.New("")
		if err != nil {
			errs = append(errs, fmt.Errorf("error creating devlog session: %w", err))
		} else {
			executor.Client = config.HTTPClient
			sink, sinkErr := newDevlogSink(
				config.Devlog.WebhookURL,
				executor,
				config.Devlog.Level,
				b.metrics,
				os.Stderr,
			)
			errs = append(errs, sinkErr)
			b.devlog = sink
		}
	}

	b.logger = slog.New(b.newHandler(config.LogLevel))
	slog.SetDefault(b.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		b.newHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)

	config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(config.Discord, config.Server.PublicKey)
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	disc.logger = slog.New(b.newHandler(config.Discord.LogLevel)).With(loggerNameKey, "discord")
	disc.metrics = b.metrics
	b.discord = disc

	session, err := disc.newSession()
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	disc.session = session

	errs = append(errs, b.initComponents())
	return b, errors.Join(errs...)
}

// initComponents builds everything that depends on the discord session.
func (b *GnomeBot) initComponents() error {
	var errs []error
	session := b.discord.session

	b.wikipedia = NewWikipediaClient(
		b.config.Wikipedia,
		b.httpClient,
		slog.New(b.newHandler(b.config.Wikipedia.LogLevel)).With(loggerNameKey, "wikipedia"),
		b.metrics,
	)
	b.classifier = NewClassifier(b.wikipedia, b.logger.With(loggerNameKey, "classifier"), b.metrics)
	b.github = NewGitHubClient(b.config.GitHub, b.httpClient, b.logger.With(loggerNameKey, "github"))
	b.memes = NewMemeClient(b.config.Meme, b.httpClient)
	b.mascot = NewMascotGame(
		*b.config.Mascot,
		session,
		b.classifier,
		b.wikipedia,
		b.logger.With(loggerNameKey, "mascot"),
		b.metrics,
	)

	b.registry = BuildTables(b.commandList(), b.config.Roles)
	b.slashRouter = newSlashRouter(b.registry.Slash, b.logger.With(loggerNameKey, "slash"), b.metrics)
	b.prefixRouter = newPrefixRouter(
		session,
		b.registry,
		b.config.Roles,
		b.logger.With(loggerNameKey, "prefix"),
		b.metrics,
	)

	activities, err := parseActivities(activitiesYAML)
	if err != nil {
		errs = append(errs, err)
	}
	b.activities = newActivityRotator(
		session,
		activities,
		b.config.Activity.Interval,
		b.logger.With(loggerNameKey, "activity"),
	)

	if b.config.Server.Enabled {
		server, serverErr := newServer(b, b.config.Server)
		errs = append(errs, serverErr)
		b.server = server
	}
	return errors.Join(errs...)
}

// commandList is every command the bot knows, slash commands first
func (b *GnomeBot) commandList() []Command {
	return append(b.slashCommands(), b.prefixCommands()...)
}

func (b *GnomeBot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

// RegisterSlashCommands overwrites the bot's slash commands in every
// configured guild, returning the outcome per guild.
func (b *GnomeBot) RegisterSlashCommands(options ...discordgo.RequestOption) []GuildRegistration {
	return b.discord.registerCommands(b.registry.SlashSchemas(), options...)
}

// LoadReport returns the report of loaded commands. Once the bot is
// ready, it also lists guild registrations and the logged-in user.
func (b *GnomeBot) LoadReport() *LoadReport {
	return b.registry.Report
}

// ReloadRoles replaces the role IDs prefix commands are checked against
func (b *GnomeBot) ReloadRoles(roles RolesConfig) {
	b.prefixRouter.Reload(roles)
	b.logger.Info(
		"reloaded role configuration",
		"member", roles.Member != "",
		"contributor", roles.Contributor != "",
		"maintainer", roles.Maintainer != "",
	)
}

// Stop signals a running bot to shut down gracefully. It doesn't wait
// for Run to return.
func (b *GnomeBot) Stop() {
	select {
	case b.signalStop <- struct{}{}:
	default:
	}
}

func (b *GnomeBot) Logger() *slog.Logger {
	return b.logger
}

// spawn runs fn on a goroutine tracked by runtimeWG. A panic in fn is
// logged with its stack and swallowed.
func (b *GnomeBot) spawn(ctx context.Context, fn func()) {
	b.runtimeWG.Add(1)
	go func() {
		defer b.runtimeWG.Done()
		defer func() {
			handleRecover(ctx, b.logger, recover())
		}()
		fn()
	}()
}

// runContext is the context of the current Run, canceled on shutdown
func (b *GnomeBot) runContext() context.Context {
	b.ctxMu.RLock()
	defer b.ctxMu.RUnlock()
	if b.runCtx == nil {
		return context.Background()
	}
	return b.runCtx
}

// Run connects to discord and handles events until ctx is canceled or
// Stop is called, then shuts down gracefully.
func (b *GnomeBot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = b.clock.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"starting",
		slog.String("version", Version),
		slog.String("commands", b.registry.CommandCounts()),
		slog.Any("config", b.config),
	)

	// the 'runtime' context, which triggers a graceful shutdown when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.ctxMu.Lock()
	b.runCtx = ctx
	b.ctxMu.Unlock()

	go func() {
		select {
		case <-b.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	if b.devlog != nil {
		if err := b.devlog.Start(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "error starting developer log", tint.Err(err))
		}
	}

	if err := b.initDiscordSession(ctx); err != nil {
		logger.ErrorContext(ctx, "error creating discord session", tint.Err(err))
		cancel()
		return errors.Join(err, b.shutdown(ctx))
	}

	if b.server != nil {
		go func() {
			if err := b.server.Serve(ctx); err != nil {
				logger.ErrorContext(ctx, "error serving HTTP", tint.Err(err))
			}
		}()
	}

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	openErr := make(chan error, 1)
	go func() {
		openErr <- b.discord.session.Open()
	}()

	select {
	case <-startCtx.Done():
		cancel()
		return errors.Join(errors.New("startup cancelled or timed out"), b.shutdown(ctx))
	case err := <-openErr:
		if err != nil {
			err = fmt.Errorf("error opening discord gateway connection: %w", err)
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			cancel()
			return errors.Join(err, b.shutdown(ctx))
		}
		logger.InfoContext(ctx, "gateway connection opened")
	}

	// block until something cancels the runtime context, generally an
	// interrupt or `$packman restart`
	<-ctx.Done()

	return b.shutdown(ctx)
}

func (b *GnomeBot) shutdown(ctx context.Context) error {
	logger := b.logger
	logger.WarnContext(ctx, "shutting down")

	shutdownStart := b.clock.Now()
	shutdownTimeout := b.config.ShutdownTimeout

	b.activities.Stop()

	if shutdownTimeout <= 0 {
		logger.Warn("immediate shutdown")
		if b.server != nil {
			_ = b.server.Close()
		}
		_ = b.discord.session.Close()
		b.closeLogs()
		return errors.New("shutdown_timeout is zero, in-flight handlers were abandoned")
	}
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	announcementTicker := b.clock.NewTicker(shutdownAnnouncementInterval)
	defer announcementTicker.Stop()

	logger.InfoContext(
		ctx,
		"exiting!",
		"shutdown_timeout", shutdownTimeout,
		"shutdown_started", shutdownStart,
		"shutdown_deadline", shutdownDeadline,
	)

	closeCtx, closeCancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer closeCancel()

	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		// collectors end on cancellation, and their final callbacks may
		// schedule more work, so wait on handlers on both sides of them
		b.runtimeWG.Wait()
		b.collectors.Wait()
		b.runtimeWG.Wait()

		runtimeStopEnd := b.clock.Now()
		logger.InfoContext(
			ctx,
			"finished handling in-flight events",
			"runtime_stop_duration", runtimeStopEnd.Sub(shutdownStart),
		)

		stopWG := &sync.WaitGroup{}
		if b.server != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				logger.InfoContext(ctx, "stopping http server")
				_ = b.server.Shutdown(closeCtx)
				logger.InfoContext(ctx, "http server stopped")
			}()
		}

		stopWG.Add(1)
		go func() {
			defer stopWG.Done()
			logger.InfoContext(ctx, "closing discord session")
			if err := b.discord.session.Close(); err != nil {
				logger.ErrorContext(ctx, "error closing discord session", tint.Err(err))
			}
			logger.InfoContext(ctx, "discord session closed")
			if n := len(b.discord.discordgoRemoveHandlerFuncs); n > 0 {
				logger.InfoContext(ctx, fmt.Sprintf("removing %d discord handlers", n))
				for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
					removeHandler()
				}
				b.discord.discordgoRemoveHandlerFuncs = nil
			}
		}()

		stopWG.Wait()
		gracefulShutdownCh <- struct{}{}
	}()

	for {
		select {
		case <-gracefulShutdownCh:
			logger.InfoContext(
				ctx,
				"graceful shutdown complete",
				"duration", b.clock.Now().Sub(shutdownStart),
			)
			b.closeLogs()
			return nil
		case <-announcementTicker.C():
			logger.WarnContext(
				ctx,
				fmt.Sprintf(
					"time until hard shutdown: %s",
					shutdownDeadline.Sub(b.clock.Now()).Round(time.Second),
				),
			)
		case <-closeCtx.Done():
			logger.ErrorContext(ctx, "graceful shutdown timed out, forcing close")
			if b.server != nil {
				_ = b.server.Close()
			}
			b.closeLogs()
			return fmt.Errorf("graceful shutdown did not finish within %s", shutdownTimeout)
		}
	}
}

// closeLogs ships what's left of the developer log and closes the log file
func (b *GnomeBot) closeLogs() {
	if b.devlog != nil {
		b.devlog.Stop()
	}
	if b.logFile != nil {
		if err := b.logFile.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
	}
}

func (b *GnomeBot) initDiscordSession(ctx context.Context) error {
	logger := b.logger.With(loggerNameKey, "discord_session")

	if b.discord.session == nil {
		session, err := b.discord.newSession()
		if err != nil {
			return err
		}
		b.discord.session = session
	}

	ctx = WithLogger(ctx, logger)

	for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}

	session := b.discord.session
	session.SetIdentify(discordgo.Identify{Intents: b.config.Discord.GatewayIntents})

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(
			func(_ *discordgo.Session, r *discordgo.Ready) {
				b.spawn(ctx, func() { b.handleReady(ctx, r) })
			},
		),
		session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := b.getInteractionHandlerFunc(ctx, i)
				b.spawn(ctx, func() { b.handleInteraction(ctx, handler) })
			},
		),
		session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				b.spawn(ctx, func() { b.handleMessage(ctx, m.Message) })
			},
		),
	}

	if b.getInteractionHandlerFunc == nil {
		b.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return GatewayHandler{
				session:     b.discord.session,
				interaction: i,
				logger: b.logger.With(
					slog.Group("interaction", interactionLogAttrs(*i)...),
				),
			}
		}
	}
	return nil
}

// handleReady runs on every READY event. Presence rotation restarts each
// time, since a new session starts with no activity. Command registration
// and the restart notice only happen after the first one.
func (b *GnomeBot) handleReady(ctx context.Context, r *discordgo.Ready) {
	logger := b.logger.With(loggerNameKey, "ready")

	if err := b.activities.Start(); err != nil {
		logger.ErrorContext(ctx, "error starting activity rotation", tint.Err(err))
	}

	if !b.firstReady.CompareAndSwap(false, true) {
		logger.InfoContext(ctx, "session re-established")
		return
	}

	report := b.registry.Report
	for _, reg := range b.RegisterSlashCommands(discordgo.WithContext(ctx)) {
		report.Add(b.guildReportRow(reg))
	}

	report.Add(b.serverStatsRow())
	if r.User != nil {
		report.Add(
			LoadReportRow{
				Name:        "Bot: " + r.User.String(),
				Type:        "Logged in",
				Role:        "N/A",
				Description: b.registry.CommandCounts(),
				Status:      "✓",
			},
		)
	}

	b.processRestartMarker(ctx)

	logger.InfoContext(ctx, "command status\n"+report.String())
	logger.InfoContext(ctx, "Bot is ready to use! ✓ | LGTM 🚀 ")
}

// serverStatsRow totals the guilds and members in the session state
func (b *GnomeBot) serverStatsRow() LoadReportRow {
	guilds := b.discord.session.StateGuilds()
	members := 0
	for _, g := range guilds {
		members += g.MemberCount
	}
	return LoadReportRow{
		Name:        "Server Stats",
		Type:        "Info",
		Role:        "N/A",
		Description: fmt.Sprintf("%d servers with %d total members", len(guilds), members),
		Status:      "✓",
	}
}

func (b *GnomeBot) guildReportRow(reg GuildRegistration) LoadReportRow {
	row := LoadReportRow{
		Name: fmt.Sprintf("Guild: %s...", truncate(reg.GuildID, 11)),
		Type: "Registered",
		Role: "N/A",
	}

	name, members := "unknown guild", 0
	if g := b.discord.session.StateGuild(reg.GuildID); g != nil {
		name, members = g.Name, g.MemberCount
	}
	row.Description = fmt.Sprintf("%s (%d members, %d commands)", name, members, len(reg.Created))

	if reg.Err != nil {
		row.Status = "✗ " + registrationErrorReason(reg.Err)
	} else {
		row.Status = "✓"
	}
	return row
}

// handleInteraction routes an interaction received via the gateway or
// the interactions webhook.
func (b *GnomeBot) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	ctx = WithLogger(ctx, logger)

	if i.Type == discordgo.InteractionPing {
		_ = handler.Respond(ctx, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
		return
	}

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(ctx, "no user found in interaction", "interaction", structToSlogValue(i))
		return
	}
	logger.InfoContext(ctx, "received new interaction", "user", structToSlogValue(discordUser))

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}

	r := newResponder(handler)
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.slashRouter.Dispatch(ctx, r)
	case discordgo.InteractionMessageComponent:
		if b.collectors.RouteComponent(r) {
			return
		}
		// nothing is listening any more, acknowledge so the client
		// doesn't show an error
		if err := r.DeferUpdate(ctx); err != nil {
			logger.ErrorContext(ctx, "error acknowledging stale component", tint.Err(err))
		}
	case discordgo.InteractionModalSubmit:
		if b.collectors.RouteModal(r) {
			return
		}
		if err := r.ReplyEphemeral(ctx, "This form has expired. Please run the command again."); err != nil {
			logger.ErrorContext(ctx, "error responding to expired modal", tint.Err(err))
		}
	default:
		logger.WarnContext(ctx, "unhandled interaction type", "type", i.Type.String())
	}
}

// handleMessage routes a new chat message. Collectors waiting on the
// author get it first, then prefix commands, then bot mentions, and
// whatever's left goes to the mascot game.
func (b *GnomeBot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	if b.collectors.RouteMessage(m) {
		return
	}
	if m.Author.Bot {
		return
	}
	if b.prefixRouter.Dispatch(ctx, m) {
		return
	}
	if botUser := b.discord.session.BotUser(); botUser != nil && messageMentionsUser(m, botUser.ID) {
		b.handleMention(ctx, m)
		return
	}
	b.mascot.HandleMessage(ctx, m)
}
