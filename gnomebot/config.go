//nolint:lll // struct tags can't be split
package gnomebot

import (
	"crypto/tls"
	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	EnvvarSetEnvPrefix     = "GNOMEBOT_ENV_PREFIX"
	DefaultEnvPrefix       = "GNB"
	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second
	DefaultRestartMarker   = "restart-info.json"

	DefaultLogFileMaxSizeMB  = 10
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28

	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	DefaultMascotWrongGuessEmoji   = "gnome:1342508917560971325"
	DefaultMascotPromptDeleteDelay = 5 * time.Second

	DefaultWikipediaAPIURL            = "https://en.wikipedia.org/w/api.php"
	DefaultWikipediaRESTURL           = "https://en.wikipedia.org/api/rest_v1"
	DefaultWikipediaRequestsPerSecond = 5
	DefaultWikipediaLogLevel          = slog.LevelInfo

	DefaultGitHubAPIURL          = "https://api.github.com"
	DefaultGitHubOrg             = "GNOME-Nepal"
	DefaultGitHubRepo            = "discord-bot"
	DefaultGitHubContributorsURL = "https://raw.githubusercontent.com/GNOME-Nepal/contributors/main/contributors.json"

	DefaultMemeURL           = "https://meme-api.com"
	DefaultMemeButtonTimeout = 60 * time.Second

	DefaultDevlogLevel = slog.LevelInfo

	DefaultActivityInterval = 30 * time.Second

	DefaultServerListen        = "127.0.0.1:5001"
	DefaultServerTLSMinVersion = tls.VersionTLS12
	DefaultServerLogLevel      = slog.LevelInfo
	DefaultReadTimeout         = 5 * time.Second
	DefaultReadHeaderTimeout   = 5 * time.Second
	DefaultWriteTimeout        = 10 * time.Second
	DefaultIdleTimeout         = 30 * time.Second
	defaultListenNetwork       = "tcp"
)

var structValidator = validator.New()

func init() {
	structValidator.SetTagName("binding")
}

type Config struct {
	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// LogFile optionally mirrors log output to a rotating file
	LogFile LogFileConfig `yaml:"log_file" mapstructure:"log_file" json:"log_file"`

	// StartupTimeout limits how long the bot has to open the gateway
	// connection and register commands before Run gives up.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout" binding:"min=1s"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// RestartMarker is the path of the file written by `$packman restart`,
	// read (and removed) on the next startup.
	RestartMarker string `yaml:"restart_marker" mapstructure:"restart_marker" json:"restart_marker" binding:"required"`

	// Development enables gin debug mode
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	Discord   *DiscordConfig   `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`
	Roles     RolesConfig      `yaml:"roles" mapstructure:"roles" json:"roles"`
	Mascot    *MascotConfig    `yaml:"mascot" mapstructure:"mascot" json:"mascot" binding:"required"`
	Wikipedia *WikipediaConfig `yaml:"wikipedia" mapstructure:"wikipedia" json:"wikipedia" binding:"required"`
	GitHub    *GitHubConfig    `yaml:"github" mapstructure:"github" json:"github" binding:"required"`
	Meme      *MemeConfig      `yaml:"meme" mapstructure:"meme" json:"meme" binding:"required"`
	Report    ReportConfig     `yaml:"report" mapstructure:"report" json:"report"`
	Devlog    *DevlogConfig    `yaml:"devlog" mapstructure:"devlog" json:"devlog" binding:"required"`
	Activity  ActivityConfig   `yaml:"activity" mapstructure:"activity" json:"activity"`
	Server    *ServerConfig    `yaml:"server" mapstructure:"server" json:"server" binding:"required"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// LogFileConfig configures log rotation for the optional log file
type LogFileConfig struct {
	Path       string `yaml:"path" mapstructure:"path" json:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress" json:"compress"`
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID is a comma-separated list of guild IDs slash commands are
	// registered in. When empty, registration is skipped.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// GuildIDs splits GuildID on commas, dropping empty entries
func (c DiscordConfig) GuildIDs() []string {
	var ids []string
	for _, id := range strings.Split(c.GuildID, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// RolesConfig holds the role IDs required for each prefix. An empty ID
// disables the matching prefix.
type RolesConfig struct {
	Member      string `yaml:"member" mapstructure:"member" json:"member"`
	Contributor string `yaml:"contributor" mapstructure:"contributor" json:"contributor"`
	Maintainer  string `yaml:"maintainer" mapstructure:"maintainer" json:"maintainer"`
}

// MascotConfig configures the "Guess the Mascot" channel game
type MascotConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Monitored channel
	ChannelID string `yaml:"channel_id" mapstructure:"channel_id" json:"channel_id"`

	// The phrase a correct guess has to contain
	Mascot string `yaml:"mascot" mapstructure:"mascot" json:"mascot"`

	// Channel receiving the colored audit embeds
	LogChannelID string `yaml:"log_channel_id" mapstructure:"log_channel_id" json:"log_channel_id"`

	// Reaction added to guesses naming some other animal, in `name:id` form
	WrongGuessEmoji string `yaml:"wrong_guess_emoji" mapstructure:"wrong_guess_emoji" json:"wrong_guess_emoji"`

	// How long the "include an animal name" prompt stays up
	PromptDeleteDelay time.Duration `yaml:"prompt_delete_delay" mapstructure:"prompt_delete_delay" json:"prompt_delete_delay"`
}

// WikipediaConfig configures the encyclopedia lookups used by the classifier
type WikipediaConfig struct {
	APIURL            string         `yaml:"api_url" mapstructure:"api_url" json:"api_url" binding:"required,url"`
	RESTURL           string         `yaml:"rest_url" mapstructure:"rest_url" json:"rest_url" binding:"required,url"`
	RequestsPerSecond float64        `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second" binding:"gt=0"`
	LogLevel          *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// GitHubConfig configures the GitHub API client used by /about and ping
type GitHubConfig struct {
	APIURL          string `yaml:"api_url" mapstructure:"api_url" json:"api_url" binding:"required,url"`
	Token           string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`
	Org             string `yaml:"org" mapstructure:"org" json:"org" binding:"required"`
	Repo            string `yaml:"repo" mapstructure:"repo" json:"repo" binding:"required"`
	ContributorsURL string `yaml:"contributors_url" mapstructure:"contributors_url" json:"contributors_url" binding:"required,url"`
}

type MemeConfig struct {
	URL           string        `yaml:"url" mapstructure:"url" json:"url" binding:"required,url"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`
	ButtonTimeout time.Duration `yaml:"button_timeout" mapstructure:"button_timeout" json:"button_timeout" binding:"min=1s"`
}

type ReportConfig struct {
	// Discord webhook receiving submitted reports
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" json:"webhook_url" log:"[redacted]"`
}

// DevlogConfig configures shipping log records to a discord webhook
type DevlogConfig struct {
	WebhookURL string         `yaml:"webhook_url" mapstructure:"webhook_url" json:"webhook_url" log:"[redacted]"`
	Level      *slog.LevelVar `yaml:"level" mapstructure:"level" json:"level"`
}

type ActivityConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval" binding:"min=1s"`
}

// ServerConfig represents the configuration for the HTTP server, which
// serves health and metrics endpoints and, when PublicKey is set,
// receives discord interactions via webhook.
type ServerConfig struct {
	// Determines if the server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5001").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The public key used for verifying Discord interaction POST requests.
	// In the Discord dev portal for your bot, this is under 'General Information'
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key"`

	// The logging level for the server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

func newLevelVar(lvl slog.Level) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(lvl)
	return v
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	return &Config{
		LogLevel: newLevelVar(DefaultLogLevel),
		LogFile: LogFileConfig{
			MaxSizeMB:  DefaultLogFileMaxSizeMB,
			MaxBackups: DefaultLogFileMaxBackups,
			MaxAgeDays: DefaultLogFileMaxAgeDays,
			Compress:   true,
		},
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		RestartMarker:   DefaultRestartMarker,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          newLevelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: newLevelVar(DefaultDiscordgoLogLevel),
		},
		Mascot: &MascotConfig{
			WrongGuessEmoji:   DefaultMascotWrongGuessEmoji,
			PromptDeleteDelay: DefaultMascotPromptDeleteDelay,
		},
		Wikipedia: &WikipediaConfig{
			APIURL:            DefaultWikipediaAPIURL,
			RESTURL:           DefaultWikipediaRESTURL,
			RequestsPerSecond: DefaultWikipediaRequestsPerSecond,
			LogLevel:          newLevelVar(DefaultWikipediaLogLevel),
		},
		GitHub: &GitHubConfig{
			APIURL:          DefaultGitHubAPIURL,
			Org:             DefaultGitHubOrg,
			Repo:            DefaultGitHubRepo,
			ContributorsURL: DefaultGitHubContributorsURL,
		},
		Meme: &MemeConfig{
			URL:           DefaultMemeURL,
			ButtonTimeout: DefaultMemeButtonTimeout,
		},
		Devlog: &DevlogConfig{
			Level: newLevelVar(DefaultDevlogLevel),
		},
		Activity: ActivityConfig{Interval: DefaultActivityInterval},
		Server: &ServerConfig{
			Listen:        DefaultServerListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultServerTLSMinVersion,
			},
			LogLevel:          newLevelVar(DefaultServerLogLevel),
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
