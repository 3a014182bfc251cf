package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass over the configured sources",
		RunE:  runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, resolveConfigPath())
	if err != nil {
		return err
	}
	defer a.Close()

	articles, report := a.coordinator.Run(ctx, a.sources)
	a.logger.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("articles", len(articles)),
		zap.Int("inserted", report.Inserted),
		zap.Int("existing", report.Existing),
		zap.Duration("duration", report.Duration),
	)
	return nil
}

// resolveConfigPath prefers the --config flag, then ./ingest.yaml when
// present, then defaults-only configuration.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat("ingest.yaml"); err == nil {
		return "ingest.yaml"
	}
	return ""
}
