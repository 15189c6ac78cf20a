package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lofi/internal/config"
	"lofi/internal/daemon"
	"lofi/internal/daemonrun"
)

var runDaemon = daemonrun.Run

func newRootCommand() *cobra.Command {
	var configFlag string
	var roleFlag string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "lofid",
		Short:         "Run the lofi pipeline daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := daemon.ParseRole(roleFlag)
			if err != nil {
				return err
			}
			level := strings.ToLower(strings.TrimSpace(logLevel))
			switch level {
			case "", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("unsupported log level %q", logLevel)
			}
			cfg, _, _, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runDaemon(cmd.Context(), cfg, daemonrun.Options{Role: role, LogLevel: level})
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&roleFlag, "role", string(daemon.RoleAll), "Process role: all, api or worker")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
