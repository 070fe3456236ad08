package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/livekit"
)

var tokenOpts livekit.TokenOptions

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Mint a LiveKit room-join access token",
	GroupID: "tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sec, err := loadConfig()
		if err != nil {
			return err
		}

		token, err := livekit.NewToken(sec.LiveKitAPIKey.Value(), sec.LiveKitAPISecret.Value(), tokenOpts, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !jsonOutput {
			fmt.Fprintln(out, token)
			return nil
		}
		data, err := json.MarshalIndent(map[string]string{
			"token":    token,
			"url":      cfg.LiveKitURL,
			"identity": tokenOpts.Identity,
			"room":     tokenOpts.Room,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenOpts.Identity, "identity", "", "participant identity (required)")
	f.StringVar(&tokenOpts.Name, "name", "", "display name (default: identity)")
	f.StringVar(&tokenOpts.Room, "room", "", "room to join")
	f.BoolVar(&tokenOpts.CanPublish, "publish", true, "allow publishing tracks")
	f.BoolVar(&tokenOpts.CanSubscribe, "subscribe", true, "allow subscribing to tracks")
	f.DurationVar(&tokenOpts.TTL, "ttl", livekit.DefaultTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("identity")
}
