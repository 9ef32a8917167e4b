package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "signinbot",
		Short: "Conversational bot that brokers delegated OAuth sign-ins",
		Long: `signinbot answers channel activities on /api/messages and walks users through
an OAuth sign-in: "login" sends a sign-in card, the six digit magic code shown
after consent completes it, and "logout" signs the user out.

Configuration is read from the environment (and .env when present), see
BOT_CONNECTION_NAME, BOT_APP_ID, BOT_TOKEN_ENDPOINT and BOT_REGISTRY_DRIVER.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newEmulatorCmd(),
		newStateCmd(),
	)
	return root
}
