package gnomebot

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	xRequestIDHeader       = "X-Request-ID"
	apiHealthCheck         = "/healthz"
	apiMetrics             = "/metrics"
	apiDiscordInteractions = "/discord/interactions"

	ginBaseLoggerKey = "base_logger"

	// webhookResponseTimeout is how long discord waits for the initial
	// response to an interaction delivered over HTTP
	webhookResponseTimeout = 3 * time.Second
)

type httpError struct {
	Error string `json:"error"`
}

type healthCheckResponse struct {
	DiscordGatewayConnected bool   `json:"discord_gateway_connected"`
	Uptime                  string `json:"uptime"`
	Commands                string `json:"commands"`
	Version                 string `json:"version"`
}

// Server is the optional HTTP server, exposing health and metrics
// endpoints and, when a public key is configured, an endpoint receiving
// discord interactions.
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	engine     *gin.Engine
	listener   net.Listener
	logger     *slog.Logger
}

func newServer(b *GnomeBot, config *ServerConfig) (*Server, error) {
	logger := slog.New(b.newHandler(config.LogLevel)).With(loggerNameKey, "http_server")

	r := gin.New()
	s := &Server{config: config, engine: r, logger: logger}

	s.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	if config.SSL.Cert != "" && config.SSL.Key != "" {
		tlsCfg, err := tlsConfig(config.SSL.Cert, config.SSL.Key, config.SSL.TLSMinVersion)
		if err != nil {
			return nil, fmt.Errorf("error loading server SSL certs: %w", err)
		}
		s.httpServer.TLSConfig = tlsCfg
	}

	if b.config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		requestLoggerMiddleware(logger),
		ginLoggingMiddleware(),
		metricMiddleware(b.metrics),
	)

	r.GET(apiHealthCheck, b.healthCheck)
	r.GET(apiMetrics, gin.WrapH(promhttp.HandlerFor(b.metrics.Registry, promhttp.HandlerOpts{})))

	if b.discord.publicKey != nil {
		r.POST(
			apiDiscordInteractions,
			discordRequestAuthenticationMiddleware(b.discord.publicKey),
			b.webhookReceiveHandler,
		)
	} else {
		logger.Info("no server.public_key set, interactions webhook disabled")
	}
	return s, nil
}

// Serve listens on the configured address, with TLS when certs are
// configured, and serves until Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	listenCfg := &net.ListenConfig{}
	ln, err := listenCfg.Listen(ctx, s.config.ListenNetwork, s.config.Listen)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.config.Listen, err)
	}
	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	} else {
		s.logger.Warn("starting server without TLS")
	}
	s.listener = ln
	s.logger.Info("serving", "address", ln.Addr().String())

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.httpServer.Close()
}

// healthCheck reports the gateway connection state and loaded commands
func (b *GnomeBot) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK,
		healthCheckResponse{
			DiscordGatewayConnected: b.discord.connected.Load(),
			Uptime:                  b.clock.Now().Sub(b.startedAt).Round(time.Second).String(),
			Commands:                b.registry.CommandCounts(),
			Version:                 Version,
		},
	)
}

// WebhookHandler is an [InteractionHandler] for interactions received
// via the HTTP endpoint. The initial response is written to the HTTP
// response body if it's ready in time, and sent over REST otherwise.
// Everything else goes through the embedded gateway handler.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint
type WebhookHandler struct {
	InteractionHandler
	responses chan *discordgo.InteractionResponse
	expired   chan struct{}
}

func newWebhookHandler(handler InteractionHandler) *WebhookHandler {
	return &WebhookHandler{
		InteractionHandler: handler,
		responses:          make(chan *discordgo.InteractionResponse),
		expired:            make(chan struct{}),
	}
}

func (*WebhookHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodWebhook
}

func (w *WebhookHandler) Respond(ctx context.Context, response *discordgo.InteractionResponse) error {
	select {
	case w.responses <- response:
		return nil
	case <-w.expired:
		return w.InteractionHandler.Respond(ctx, response)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// webhookReceiveHandler decodes an interaction and runs it through the
// same pipeline as gateway interactions, writing the first response back
// as the HTTP response.
func (b *GnomeBot) webhookReceiveHandler(c *gin.Context) {
	requestID, _ := c.Get(xRequestIDHeader)
	logger := ginContextLogger(c).With(
		slog.Group(
			"webhook_request",
			"remote_ip", c.RemoteIP(),
			xRequestIDHeader, requestID,
		),
	)

	defer func() {
		_ = c.Request.Body.Close()
	}()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.ErrorContext(c, "error getting raw data", tint.Err(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: "error getting raw data"})
		return
	}

	var interaction discordgo.InteractionCreate
	if err = json.Unmarshal(body, &interaction); err != nil {
		logger.ErrorContext(c, "error unmarshalling body", tint.Err(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, httpError{Error: "error unmarshalling body"})
		return
	}

	ctx := b.runContext()
	handler := newWebhookHandler(b.getInteractionHandlerFunc(ctx, &interaction))

	b.spawn(ctx, func() { b.handleInteraction(WithLogger(ctx, logger), handler) })

	timer := b.clock.NewTimer(webhookResponseTimeout)
	defer timer.Stop()
	select {
	case resp := <-handler.responses:
		c.JSON(http.StatusOK, resp)
	case <-timer.C():
		close(handler.expired)
		logger.WarnContext(c, "no interaction response in time")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, httpError{Error: "no interaction response"})
	case <-c.Request.Context().Done():
		close(handler.expired)
	}
}

// requestIDMiddleware assigns each request a unique ID, set in the gin
// context and the response headers under "X-Request-ID".
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// requestLoggerMiddleware sets the base logger request loggers derive from
func requestLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginBaseLoggerKey, logger)
		c.Next()
	}
}

// ginContextLogger returns the request logger from the given gin context,
// or, if it doesn't exist, creates one with request details included and
// stores it, so the next call returns the same logger.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(string(loggerContextKey)); ok {
		if logger, ok := v.(*slog.Logger); ok {
			return logger
		}
	}

	base := slog.Default()
	if v, ok := c.Get(ginBaseLoggerKey); ok {
		if logger, ok := v.(*slog.Logger); ok {
			base = logger
		}
	}
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}

	requestLogger := base.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request once it has finished, along with
// its duration, response status and any private errors.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		response := slog.Group(
			"response",
			"status_code", c.Writer.Status(),
			"body_size", c.Writer.Size(),
		)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, e.Err)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL),
				"duration", latency,
				"errors", errs,
				response,
			)
			return
		}
		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
			"duration", latency,
			response,
		)
	}
}

// metricMiddleware counts requests by method, matched route and status
func metricMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequest(c.Request.Method, route, c.Writer.Status())
	}
}

// discordRequestAuthenticationMiddleware rejects requests without a valid
// discord signature.
// See: https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint-validating-security-request-headers
//
//nolint:lll // can't split link
func discordRequestAuthenticationMiddleware(publicKey ed25519.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifyRequest(c.Request, publicKey) {
			ginContextLogger(c).WarnContext(c, "invalid signature")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "invalid signature"})
			return
		}
		c.Next()
	}
}

// verifyRequest checks the request's ed25519 signature over the
// timestamp header and body. The body is restored for later handlers.
func verifyRequest(r *http.Request, key ed25519.PublicKey) bool {
	signature := r.Header.Get("X-Signature-Ed25519")
	if signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize || sig[63]&224 != 0 {
		return false
	}

	timestamp := r.Header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return false
	}

	var msg bytes.Buffer
	msg.WriteString(timestamp)

	var body bytes.Buffer
	defer func() {
		_ = r.Body.Close()
		r.Body = io.NopCloser(&body)
	}()
	if _, err = io.Copy(&msg, io.TeeReader(r.Body, &body)); err != nil {
		return false
	}
	return ed25519.Verify(key, msg.Bytes(), sig)
}
