package main

import (
	"fmt"

	"github.com/hyperengineering/vocab"
	"github.com/hyperengineering/vocab/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgDBPath   string
	cfgStore    string
	cfgFile     string
	cfgLogLevel string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Vocab - adaptive domain vocabulary service",
	Long: `Vocab learns domain terminology from free-text submissions.

It extracts candidate terms with categorized pattern rules, keeps a
confidence-scored vocabulary that administrators can curate, and renders
established terms as context for prompt construction.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to the vocabulary database (default: derived from store)")
	rootCmd.PersistentFlags().StringVar(&cfgStore, "store", "", "Store ID (default: VOCAB_STORE or \"default\")")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&cfgLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

// loadConfig layers the config file, environment and flags, in that order
// of increasing precedence.
func loadConfig() (vocab.Config, error) {
	var cfg vocab.Config
	if cfgFile != "" {
		fileCfg, err := vocab.LoadConfigFile(cfgFile)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	cfg = cfg.Merge(vocab.ConfigFromEnv())
	cfg = cfg.Merge(vocab.Config{
		DBPath:   cfgDBPath,
		Store:    cfgStore,
		LogLevel: cfgLogLevel,
	})
	return cfg, nil
}

// openService builds a service for a one-shot command. Logging defaults to
// warn so command output is not interleaved with lifecycle messages.
func openService(cmd *cobra.Command) (*vocab.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	cfg = cfg.WithDefaults()
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return newService(cfg, logger)
}

// newLogger writes to the command's stderr so stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg vocab.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
}

func newService(cfg vocab.Config, logger *zap.Logger, opts ...vocab.Option) (*vocab.Service, error) {
	svc, err := vocab.New(cfg, append([]vocab.Option{vocab.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("initialize service: %w", err)
	}
	return svc, nil
}
