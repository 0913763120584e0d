package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/ycheck/pkg/config"
	"github.com/ethpandaops/ycheck/pkg/observability"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	cfg       *config.Config
	log       = observability.DefaultLogger()
)

var rootCmd = &cobra.Command{
	Use:   "ycheck",
	Short: "Rule-driven diagnostics for captured host snapshots",
	Long: `ycheck analyses a captured host snapshot (sosreport-style data root)
against YAML rule definitions. Each domain plugin runs an events pass, which
hands log and command matches to domain callbacks, and a scenarios pass, which
raises potential issues and known bugs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}

		cfg = loaded

		loggerCfg := cfg.Logging

		// CLI flags override the config file.
		if logLevel != "" {
			loggerCfg.Level = observability.LogLevel(logLevel)
		}

		if logFormat != "" {
			loggerCfg.Format = observability.LogFormat(logFormat)
		}

		configuredLog, err := observability.ConfigureLogger(loggerCfg)
		if err != nil {
			return err
		}

		// Copy settings to the global log.
		log.SetLevel(configuredLog.Level)
		log.SetFormatter(configuredLog.Formatter)
		log.SetOutput(configuredLog.Out)

		return nil
	},
}

// loadConfig reads --config, $CONFIG_PATH or ycheck.yaml. A missing default
// file yields the built-in defaults.
func loadConfig() (*config.Config, error) {
	loaded, err := config.Load(cfgFile)
	if err == nil {
		return loaded, nil
	}

	if cfgFile == "" && os.Getenv("CONFIG_PATH") == "" && errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", config.DefaultPath).Debug("No config file, using defaults")

		return config.Default(), nil
	}

	return nil, err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ycheck.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}
