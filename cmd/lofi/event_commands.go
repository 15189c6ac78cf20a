package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lofi/internal/api"
	"lofi/internal/eventlog"
	"lofi/internal/stage"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent events across all runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < eventlog.MinLimit || limit > eventlog.MaxLimit {
				return fmt.Errorf("--limit must be between %d and %d", eventlog.MinLimit, eventlog.MaxLimit)
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}
			events, err := c.Events(cmd.Context(), limit)
			if err != nil {
				return ctx.explain(err)
			}
			return ctx.emit(cmd, api.EventListResponse{Events: events}, func() error {
				writeEventTable(cmd.OutOrStdout(), events, true)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", eventlog.DefaultLimit, "Number of events to list")
	return cmd
}

type historyView struct {
	Events []api.Event `json:"events"`
	Valid  bool        `json:"valid"`
	Reason string      `json:"reason,omitempty"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show the event history of a run and check its transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			events, err := c.RunEvents(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return ctx.explain(err)
			}

			view := historyView{Events: events, Valid: true}
			verr := eventlog.VerifyTransitions(api.ToEvents(events), stage.Names())
			if verr != nil {
				view.Valid = false
				view.Reason = verr.Error()
			}
			if err := ctx.emit(cmd, view, func() error {
				out := cmd.OutOrStdout()
				writeEventTable(out, events, false)
				if verr == nil {
					fmt.Fprintln(out, "Transitions: valid")
				}
				return nil
			}); err != nil {
				return err
			}
			return verr
		},
	}
}

func writeEventTable(out io.Writer, events []api.Event, withRun bool) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events")
		return
	}
	columns := []column{numeric("ID"), col("Kind"), col("Status"), col("Created"), capped("Payload", 60)}
	if withRun {
		columns = slices.Insert(columns, 1, col("Run"))
	}
	rows := make([][]string, 0, len(events))
	for _, evt := range events {
		row := []string{strconv.FormatInt(evt.ID, 10)}
		if withRun {
			row = append(row, evt.RunID)
		}
		row = append(row, evt.Kind, evt.Status, evt.CreatedAt, compactPayload(evt.Payload))
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(columns, rows))
}

// compactPayload drops empty payload objects; the table caps the width.
func compactPayload(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "{}" {
		return ""
	}
	return text
}
