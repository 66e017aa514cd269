// Package gnomebot implements the GNOME Nepal community Discord bot.
//
// The bot answers slash commands and role-gated prefix commands, renders
// embed-based UI with buttons, menus and modals, and runs the "Guess the
// Mascot" channel game, which classifies free-form chat text as naming an
// animal or not.
//
// Main components:
//
//   - GnomeBot: owns the discord session, routers, background jobs and the
//     optional HTTP server. Created with New, started with GnomeBot.Run.
//   - Registry: the slash command table and the three role-scoped prefix
//     command tables, built once from a static command list.
//   - PrefixRouter: matches `sudo`, `$sudo` and `$packman` messages to a
//     role binding, checks role membership and dispatches.
//   - SlashRouter: dispatches application commands, isolating handler
//     failures behind a single ephemeral error notice.
//   - Classifier: the layered animal-keyword detector used by MascotGame.
//   - Collector: a bounded listener for follow-up interactions and messages
//     tied to one interactive message.
//
// Prefix commands:
//
//   - sudo help, sudo meme
//   - $sudo help, $sudo ping
//   - $packman help, $packman purge, $packman restart
//
// Slash commands: /help, /ping, /about, /social, /contributors, /report.
package gnomebot
