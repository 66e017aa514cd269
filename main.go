package main

import "github.com/NightSling/discord-bot/cmd"

func main() {
	cmd.Execute()
}
