package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dealfeed/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:               "dealfeed",
		Short:             "🏷️ Daily deals ranked by discount for the categories you follow",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(dealsCmd())
	rootCmd.AddCommand(latestCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(verticalsCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(prefsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loaded.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		loaded.Logging.Format, _ = flags.GetString("log-format")
	}

	if err := setupLogging(loaded.Logging); err != nil {
		return err
	}

	cfg = loaded
	log.Debug("Configuration loaded successfully")
	return nil
}

func setupLogging(lc config.LoggingConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	log.SetLevel(level)

	switch lc.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format %q (want text or json)", lc.Format)
	}
	log.SetOutput(os.Stderr)
	return nil
}
