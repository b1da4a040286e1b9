package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agrocert/certification-backend/internal/config"
)

type globalFlags struct {
	configPath string
	network    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "agrocert",
		Short:         "Issue and verify ledger-anchored product certificates.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.json", "path to the JSON config file")
	root.PersistentFlags().StringVar(&flags.network, "network", "", "ledger network: testnet, mainnet, previewnet or local")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override")

	root.AddCommand(serveCmd(flags))
	root.AddCommand(topicCmd(flags))
	root.AddCommand(issueCmd(flags))
	root.AddCommand(verifyCmd(flags))
	root.AddCommand(tokenCmd(flags))

	return root
}

// load reads .env files, the config file and flag overrides
func (f *globalFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.network != "" {
		cfg.Ledger.Network = f.network
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
