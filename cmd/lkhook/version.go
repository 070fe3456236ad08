package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appinfo.AppName, version.String())
	},
}
