package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and build token exchange state blobs",
	}
	cmd.AddCommand(newStateDecodeCmd(), newStateEncodeCmd())
	return cmd
}

func newStateDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <blob>",
		Short: "Print the JSON inside a state blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := connector.DecodeExchangeState(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

type stateFlags struct {
	appID          string
	connectionName string
	userID         string
	botID          string
	conversationID string
	channelID      string
	serviceURL     string
	activityID     string
	activityType   string
}

func newStateEncodeCmd() *cobra.Command {
	var f stateFlags

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build the state blob the bot would send for an activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			activity := &connector.Activity{
				Type:         f.activityType,
				ID:           f.activityID,
				ChannelID:    f.channelID,
				ServiceURL:   f.serviceURL,
				From:         &connector.ChannelAccount{ID: f.userID, Role: connector.RoleUser},
				Recipient:    &connector.ChannelAccount{ID: f.botID, Role: connector.RoleBot},
				Conversation: &connector.ConversationAccount{ID: f.conversationID},
			}

			blob, err := connector.EncodeExchangeState(connector.NewExchangeState(f.appID, f.connectionName, activity))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
			return err
		},
	}

	cmd.Flags().StringVar(&f.appID, "app-id", "", "bot app id")
	cmd.Flags().StringVar(&f.connectionName, "connection", "", "OAuth connection name")
	cmd.Flags().StringVar(&f.userID, "user", "", "user id")
	cmd.Flags().StringVar(&f.botID, "bot", "bot", "bot account id")
	cmd.Flags().StringVar(&f.conversationID, "conversation", "", "conversation id")
	cmd.Flags().StringVar(&f.channelID, "channel", connector.ChannelEmulator, "channel id")
	cmd.Flags().StringVar(&f.serviceURL, "service-url", "", "channel service url")
	cmd.Flags().StringVar(&f.activityID, "activity-id", "", "originating activity id")
	cmd.Flags().StringVar(&f.activityType, "type", connector.ActivityTypeMessage, "originating activity type")
	_ = cmd.MarkFlagRequired("connection")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}
