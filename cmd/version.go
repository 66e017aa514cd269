package cmd

import (
	"fmt"
	"github.com/NightSling/discord-bot/gnomebot"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the application",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf(
			"gnomebot version=%s commit=%s built: %s discordgo=%s",
			gnomebot.Version,
			gnomebot.CommitSHA,
			gnomebot.BuildTime,
			discordgo.VERSION,
		)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(versionCmd)
}
