package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/config"
	"github.com/graaaaa/livekit-webhook-logger/internal/event"
	"github.com/graaaaa/livekit-webhook-logger/internal/signature"
)

var (
	signSecret string
	signURL    string
)

var signCmd = &cobra.Command{
	Use:     "sign [payload-file]",
	Short:   "Print the signature header for a webhook payload",
	Long:    "Reads a JSON payload from the file (or stdin) and prints the " + appinfo.SignatureHeader + " value, or a curl command with --url.",
	GroupID: "tools",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			body []byte
			err  error
		)
		if len(args) == 1 && args[0] != "-" {
			body, err = os.ReadFile(args[0])
		} else {
			body, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if _, err := event.Decode(body); err != nil {
			logger.Warn("payload is not valid JSON; the receiver will reject it", "error", err)
		}

		secret := signSecret
		if secret == "" {
			_, sec, err := loadConfig()
			if err != nil {
				return err
			}
			secret = sec.WebhookSecret.Value()
		}
		if strings.TrimSpace(secret) == "" {
			return errors.New(config.EnvWebhookSecret + " is not set (or pass --secret)")
		}

		sig := signature.Sign(secret, body)
		out := cmd.OutOrStdout()
		if signURL == "" {
			fmt.Fprintln(out, sig)
			return nil
		}
		fmt.Fprintf(out, "curl -sS -X POST %s -H 'Content-Type: application/json' -H '%s: %s' --data-binary %s\n",
			signURL, appinfo.SignatureHeader, sig, shellQuote(string(body)))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "shared secret (default: "+config.EnvWebhookSecret+")")
	signCmd.Flags().StringVar(&signURL, "url", "", "print a curl command posting to this webhook URL")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
