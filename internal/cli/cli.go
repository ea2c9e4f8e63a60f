// Package cli builds the cobra root command shared by the binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/inertial_mouse/internal/config"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "./inertial_mouse.txt"

// NewCommand returns a root command that loads the global config, sets the
// log level and calls run with a context cancelled on SIGINT or SIGTERM.
func NewCommand(use, short string, run func(ctx context.Context) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if err := config.InitGlobal(configPath); err != nil {
				return err
			}

			level := config.Get().LogLevel
			if cmd.Flags().Changed("log-level") {
				level, _ = cmd.Flags().GetString("log-level")
			}
			if err := setLogLevel(level); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
	cmd.Flags().String("config", DefaultConfigPath, "path to configuration file")
	cmd.Flags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	return cmd
}

func setLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// Execute runs cmd and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
