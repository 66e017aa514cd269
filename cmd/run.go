package cmd

import (
	"fmt"
	"github.com/NightSling/discord-bot/gnomebot"
	"github.com/spf13/cobra"
	"log"
	"os"
	"syscall"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Connects the bot to discord and (optionally) starts the HTTP server",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			bot, err := gnomebot.New(cfg)
			if err != nil {
				log.Fatalf("error creating bot: %s", err.Error())
			}

			watchRoles(bot.Logger(), bot.ReloadRoles)

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running bot: %s", err.Error())
			}

			if bot.RestartRequested() {
				if err = reexec(); err != nil {
					log.Fatalf("error restarting: %s", err.Error())
				}
			}
		},
	}

	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Overwrites the slash commands in the configured guilds, then exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := gnomebot.New(cfg)
			if err != nil {
				return err
			}
			if err = bot.ValidateConfig(); err != nil {
				return err
			}

			var failed int
			for _, reg := range bot.RegisterSlashCommands() {
				if reg.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", reg.GuildID, reg.Err.Error())
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: registered %d commands\n", reg.GuildID, len(reg.Created))
			}
			if failed > 0 {
				return fmt.Errorf("registration failed in %d guild(s)", failed)
			}
			return nil
		},
	}

	commandsCmd = &cobra.Command{
		Use:   "commands",
		Short: "Prints the command load report without connecting to discord",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := gnomebot.New(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), bot.LoadReport().String())
			return nil
		},
	}
)

// reexec replaces the current process with a fresh copy of the same
// binary, keeping its arguments and environment.
func reexec() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(executable, os.Args, os.Environ())
}

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(commandsCmd)
}
