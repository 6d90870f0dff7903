// cmd/monitor/query.go
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ihydro/internal/models"
	"ihydro/internal/sensorapi"
)

func newCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the latest reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reading, err := a.client().Current(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), reading)
			}
			reg, err := a.thresholds()
			if err != nil {
				return err
			}
			renderReading(cmd.OutOrStdout(), reading, reg)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent readings, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = a.cfg.Monitor.HistoryLimit
			}
			history, err := a.client().History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), history)
			}
			renderHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of readings (default monitor.history_limit)")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "summary <hour|day|custom>",
		Short: "Print min, max and average per metric",
		Example: `  monitor summary hour
  monitor summary custom --from 2024-05-01T00:00:00Z --to 2024-05-02T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := models.ParseRange(args[0])
			if err != nil {
				return err
			}
			window, err := parseWindow(rng, from, to)
			if err != nil {
				return err
			}
			summary, err := a.client().Summary(cmd.Context(), rng, window)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			renderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of a custom window (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "end of a custom window (RFC3339, default now)")
	return cmd
}

func parseWindow(rng models.Range, from, to string) (*sensorapi.Window, error) {
	if rng != models.RangeCustom {
		if from != "" || to != "" {
			return nil, fmt.Errorf("--from and --to only apply to the custom range")
		}
		return nil, nil
	}
	if from == "" {
		return nil, fmt.Errorf("custom range requires --from")
	}
	w := &sensorapi.Window{}
	var err error
	if w.From, err = time.Parse(time.RFC3339, from); err != nil {
		return nil, fmt.Errorf("invalid --from: %w", err)
	}
	if to != "" {
		if w.To, err = time.Parse(time.RFC3339, to); err != nil {
			return nil, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return w, nil
}

func newChatCmd(a *app) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the grow assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().Chat(cmd.Context(), strings.Join(args, " "), session)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
			if resp.SessionID != "" && resp.SessionID != session {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("session: "+resp.SessionID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "continue an existing conversation")
	return cmd
}
