package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/app"
	"github.com/graaaaa/livekit-webhook-logger/internal/ingest"
)

var (
	logsServer string
	logsType   string
	logsSince  string
	logsLimit  int
	logsAll    bool
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Short:   "List stored events from a running server",
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sec, err := loadConfig()
		if err != nil {
			return err
		}
		client := &logsClient{
			base:     strings.TrimRight(logsServer, "/"),
			http:     &http.Client{Timeout: 30 * time.Second},
			username: cfg.OperatorUsername,
			password: sec.OperatorPassword.Value(),
		}

		q := url.Values{}
		if cmd.Flags().Changed("type") {
			q.Set("type", logsType)
		}
		if logsSince != "" {
			q.Set("since", logsSince)
		}
		if logsLimit > 0 {
			q.Set("limit", strconv.Itoa(logsLimit))
		}

		var all app.LogsResult
		for {
			page, err := client.list(cmd.Context(), q)
			if err != nil {
				return err
			}
			all.TotalEvents = page.TotalEvents
			all.Logs = append(all.Logs, page.Logs...)
			if !logsAll || page.NextCursor == nil {
				all.NextCursor = page.NextCursor
				break
			}
			q.Set("cursor", *page.NextCursor)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}

		for i := range all.Logs {
			rec := &all.Logs[i]
			fmt.Fprintf(out, "%6d  %s  %s\n", rec.Seq, rec.ReceivedAt.Local().Format(time.DateTime), ingest.Summary(rec))
		}
		fmt.Fprintf(out, "%d shown, %d stored\n", len(all.Logs), all.TotalEvents)
		if all.NextCursor != nil {
			fmt.Fprintf(out, "more available: --all, or cursor %s\n", *all.NextCursor)
		}
		return nil
	},
}

func init() {
	f := logsCmd.Flags()
	f.StringVar(&logsServer, "server", "http://localhost:8080", "server base URL")
	f.StringVar(&logsType, "type", "", "only this event type (empty selects untyped records)")
	f.StringVar(&logsSince, "since", "", "only records received at or after this RFC3339 time")
	f.IntVar(&logsLimit, "limit", 100, "page size (0 for no limit)")
	f.BoolVar(&logsAll, "all", false, "follow next_cursor until the end of the log")
}

type logsClient struct {
	base     string
	http     *http.Client
	username string
	password string
}

func (c *logsClient) list(ctx context.Context, q url.Values) (app.LogsResult, error) {
	var res app.LogsResult

	u := c.base + "/logs"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return res, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("GET /logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return res, fmt.Errorf("GET /logs: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode /logs: %w", err)
	}
	return res, nil
}
