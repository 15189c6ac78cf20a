package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"lofi/internal/api"
	"lofi/internal/client"
)

type healthView struct {
	Health      api.HealthResponse `json:"health"`
	Daemon      *api.DaemonStatus  `json:"daemon,omitempty"`
	StatusError string             `json:"status_error,omitempty"`
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon readiness and runtime status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := c.Health(cmd.Context())
			notReady := false
			if err != nil {
				var statusErr *client.StatusError
				if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
					return ctx.explain(err)
				}
				notReady = true
			}

			view := healthView{Health: report}
			if status, err := c.Status(cmd.Context()); err == nil {
				view.Daemon = &status
			} else {
				view.StatusError = ctx.explain(err).Error()
			}

			out := cmd.OutOrStdout()
			if err := ctx.emit(cmd, view, func() error {
				writeHealth(out, view, shouldColorize(out))
				return nil
			}); err != nil {
				return err
			}
			if notReady {
				return errors.New("daemon not ready")
			}
			return nil
		},
	}
}

func writeHealth(out io.Writer, view healthView, colorize bool) {
	lines := renderSectionHeader("Health", colorize)
	overall := statusOK
	if view.Health.Status != api.HealthOK {
		overall = statusWarn
	}
	lines = append(lines, renderStatusLine("Overall", overall, view.Health.Status, colorize))
	lines = append(lines, renderChecks(view.Health.Checks, statusError, colorize)...)

	if len(view.Health.Stages) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Stages", colorize)...)
		lines = append(lines, renderChecks(view.Health.Stages, statusWarn, colorize)...)
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if view.Daemon == nil {
		lines = append(lines, renderStatusLine("Status", statusWarn, view.StatusError, colorize))
	} else {
		lines = append(lines, renderDaemon(*view.Daemon, colorize)...)
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func renderChecks(checks []api.Check, failKind statusKind, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		if !check.Ready {
			kind = failKind
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func renderDaemon(status api.DaemonStatus, colorize bool) []string {
	lines := []string{
		renderStatusLine("Role", statusInfo, fmt.Sprintf("%s (pid %d)", status.Role, status.PID), colorize),
		renderStatusLine("Database", statusInfo, status.Database, colorize),
		renderStatusLine("Handoff", statusInfo, status.Handoff, colorize),
	}
	if status.Admission != "" {
		lines = append(lines, renderStatusLine("Admission", statusInfo, status.Admission, colorize))
	}
	if status.ActiveRun != nil {
		run := status.ActiveRun
		lines = append(lines, renderStatusLine("Active run", runStatusKind(run.Status),
			fmt.Sprintf("%s %s %s", run.ID, run.Status, dash(run.CurrentStage)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Active run", statusInfo, "none", colorize))
	}
	if w := status.Worker; w != nil {
		kind := statusOK
		if !w.Running {
			kind = statusWarn
		}
		msg := fmt.Sprintf("running=%s processed=%d", yesNo(w.Running), w.Processed)
		if w.LastError != "" {
			kind = statusWarn
			msg += " last error: " + w.LastError
		}
		lines = append(lines, renderStatusLine("Worker", kind, msg, colorize))
	}
	if s := status.Schedule; s != nil {
		lines = append(lines, renderStatusLine("Schedule", statusInfo,
			fmt.Sprintf("%s next %s fired %d", s.Cron, dash(s.Next), s.Fired), colorize))
	}

	statuses := make([]string, 0, len(status.RunCounts))
	for name := range status.RunCounts {
		statuses = append(statuses, name)
	}
	sort.Strings(statuses)
	counts := make([]string, 0, len(statuses))
	for _, name := range statuses {
		counts = append(counts, fmt.Sprintf("%s=%d", name, status.RunCounts[name]))
	}
	lines = append(lines, renderStatusLine("Runs", statusInfo, strings.Join(counts, " "), colorize))
	return lines
}
