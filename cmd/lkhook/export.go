package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/config"
	"github.com/graaaaa/livekit-webhook-logger/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write a JSONL snapshot of a durable event log",
	Long:    "Exports the sqlite or postgres log to --out (\"-\" for stdout) or to the configured export destinations.",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sec, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store == config.StoreMemory {
			return errors.New("the memory store is not persisted; export needs store sqlite or postgres")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log, err := openStore(ctx, cfg, sec)
		if err != nil {
			return err
		}
		defer log.Close()

		if exportOut == "-" {
			_, err := export.ExportJSONL(ctx, log, cmd.OutOrStdout())
			return err
		}

		var dests []export.Destination
		if exportOut != "" {
			dests = []export.Destination{export.FileDestination{Path: exportOut}}
		} else {
			dests, err = export.Destinations(ctx, cfg)
			if err != nil {
				return err
			}
		}
		if len(dests) == 0 {
			return errors.New("no export destination: pass --out or set export_path / export_s3_bucket")
		}

		sched := export.NewScheduler(log, dests, 0, logger)
		if written := sched.Once(ctx); written != len(dests) {
			return fmt.Errorf("export wrote %d of %d destinations", written, len(dests))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, or - for stdout")
}
