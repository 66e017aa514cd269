package cmd

import (
	"context"
	"fmt"
	"github.com/NightSling/discord-bot/gnomebot"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
)

var (
	cfg        = gnomebot.DefaultConfig()
	configFile string
)

// levelKeys are the settings holding a *slog.LevelVar
var levelKeys = []string{
	"log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"wikipedia.log_level",
	"devlog.level",
	"server.log_level",
}

var rootCmd = &cobra.Command{
	Use:   "gnomebot [flags]",
	Short: "GNOME Nepal community discord bot",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := unmarshalConfig(cfg); err != nil {
			log.Fatalln(err)
		}
	},
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			LevelToStringHookFunc(),
		),
	)
}

func unmarshalConfig(c *gnomebot.Config) error {
	return viper.Unmarshal(c, decodeHook())
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes level names into *slog.LevelVar fields
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, err
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// isYAMLConfig is true when --config names a file viper should read
// (and watch) itself, rather than a .env file
func isYAMLConfig(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func initConfig() {
	// Execute may run more than once in a process (tests)
	viper.Reset()

	switch {
	case configFile == "":
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	case isYAMLConfig(configFile):
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("error reading config file %s: %v", configFile, err)
		}
	default:
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("log_level", gnomebot.DefaultLogLevel.String())
	viper.SetDefault("log_file.path", "")
	viper.SetDefault("log_file.max_size_mb", gnomebot.DefaultLogFileMaxSizeMB)
	viper.SetDefault("log_file.max_backups", gnomebot.DefaultLogFileMaxBackups)
	viper.SetDefault("log_file.max_age_days", gnomebot.DefaultLogFileMaxAgeDays)
	viper.SetDefault("log_file.compress", true)
	viper.SetDefault("startup_timeout", gnomebot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", gnomebot.DefaultShutdownTimeout)
	viper.SetDefault("restart_marker", gnomebot.DefaultRestartMarker)
	viper.SetDefault("development", false)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.log_level", gnomebot.DefaultDiscordLogLevel.String())
	viper.SetDefault(
		"discord.discordgo_log_level",
		gnomebot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault("discord.gateway_intents", gnomebot.DefaultDiscordGatewayIntent)

	// Role IDs gating the prefix commands
	viper.SetDefault("roles.member", "")
	viper.SetDefault("roles.contributor", "")
	viper.SetDefault("roles.maintainer", "")

	// Mascot game
	viper.SetDefault("mascot.enabled", false)
	viper.SetDefault("mascot.channel_id", "")
	viper.SetDefault("mascot.log_channel_id", "")
	viper.SetDefault("mascot.mascot", "")
	viper.SetDefault("mascot.wrong_guess_emoji", gnomebot.DefaultMascotWrongGuessEmoji)
	viper.SetDefault("mascot.prompt_delete_delay", gnomebot.DefaultMascotPromptDeleteDelay)

	viper.SetDefault("wikipedia.api_url", gnomebot.DefaultWikipediaAPIURL)
	viper.SetDefault("wikipedia.rest_url", gnomebot.DefaultWikipediaRESTURL)
	viper.SetDefault(
		"wikipedia.requests_per_second",
		gnomebot.DefaultWikipediaRequestsPerSecond,
	)
	viper.SetDefault("wikipedia.log_level", gnomebot.DefaultWikipediaLogLevel.String())

	viper.SetDefault("github.api_url", gnomebot.DefaultGitHubAPIURL)
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.org", gnomebot.DefaultGitHubOrg)
	viper.SetDefault("github.repo", gnomebot.DefaultGitHubRepo)
	viper.SetDefault("github.contributors_url", gnomebot.DefaultGitHubContributorsURL)

	viper.SetDefault("meme.url", gnomebot.DefaultMemeURL)
	viper.SetDefault("meme.api_key", "")
	viper.SetDefault("meme.button_timeout", gnomebot.DefaultMemeButtonTimeout)

	viper.SetDefault("report.webhook_url", "")

	viper.SetDefault("devlog.webhook_url", "")
	viper.SetDefault("devlog.level", gnomebot.DefaultDevlogLevel.String())

	viper.SetDefault("activity.interval", gnomebot.DefaultActivityInterval)

	// HTTP server
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.listen", gnomebot.DefaultServerListen)
	viper.SetDefault("server.listen_network", "tcp")
	viper.SetDefault("server.public_key", "")
	viper.SetDefault("server.log_level", gnomebot.DefaultServerLogLevel.String())
	viper.SetDefault("server.read_timeout", gnomebot.DefaultReadTimeout)
	viper.SetDefault("server.read_header_timeout", gnomebot.DefaultReadHeaderTimeout)
	viper.SetDefault("server.write_timeout", gnomebot.DefaultWriteTimeout)
	viper.SetDefault("server.idle_timeout", gnomebot.DefaultIdleTimeout)
	viper.SetDefault("server.ssl.cert", "")
	viper.SetDefault("server.ssl.key", "")
	viper.SetDefault("server.ssl.tls_min_version", gnomebot.DefaultServerTLSMinVersion)

	envPrefix := os.Getenv(gnomebot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = gnomebot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for _, key := range levelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

// watchRoles re-reads the roles section whenever the YAML config file
// changes, passing the new role IDs to onChange. It does nothing for
// .env configs, which are only read at startup.
func watchRoles(logger *slog.Logger, onChange func(gnomebot.RolesConfig)) bool {
	if !isYAMLConfig(configFile) {
		return false
	}
	viper.OnConfigChange(
		func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			var roles gnomebot.RolesConfig
			if err := viper.UnmarshalKey("roles", &roles, decodeHook()); err != nil {
				logger.Error("error reloading roles", "file", e.Name, "error", err)
				return
			}
			logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
			onChange(roles)
		},
	)
	viper.WatchConfig()
	return true
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use (.env, or .yaml to enable reloading roles)",
	)
}
