package main

import (
	"github.com/urfave/cli"
)

const description = `reminderd keeps peak flow reminders armed. "serve" runs the scheduler
and, when a Telegram token is configured, the chat UI. The other commands
read the reminder store directly.

Configuration comes from the environment or a .env file in the working
directory (STORE_DRIVER, DATA_DIR, NOTIFY_BACKEND, TIMEZONE, ...).`

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "reminderd"
	app.HelpName = "reminderd"
	app.Usage = "local recurring peak flow reminders"
	app.UsageText = "reminderd <command> [arguments...]"
	app.Description = description
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the scheduler until interrupted",
			Action: serve,
		},
		{
			Name:        "next",
			Usage:       "print the next trigger instant for a reminder",
			UsageText:   "reminderd next --time HH:MM [--frequency daily|weekly|monthly] [--count N]",
			Action:      next,
			Flags:       nextFlags,
			Description: "Computes occurrences without touching any stored state.",
		},
		{
			Name:   "status",
			Usage:  "show the stored reminder for an identity",
			Action: status,
			Flags:  []cli.Flag{identityFlag},
		},
		{
			Name:    "history",
			Aliases: []string{"l"},
			Usage:   "list fired reminders, newest first",
			Action:  history,
			Flags:   []cli.Flag{identityFlag, limitFlag},
		},
	}
	return app
}

// Execute runs the command line.
func Execute(args []string) error {
	return newApp().Run(args)
}
