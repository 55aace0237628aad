package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kalambet/asave/internal/config"
)

var version = "dev"

var (
	noColor bool
	verbose bool

	appConfig config.Config
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "asave",
	Short: "AAOIFI standards analysis, validation and rule mining",
	Long: `asave reviews sections of AAOIFI Financial Accounting Standards (FAS)
with a chain of LLM agents: it flags ambiguities, drafts a revised clause
grounded in the FAS and the matching Shari'ah Standard (SS), and validates the
revision for Shari'ah compliance and inter-standard consistency. It can also
mine explicit, structured compliance rules from Shari'ah Standards.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg

		l, err := newLogger(cfg.Log.Level, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		analyzeCmd,
		mineCmd,
		indexCmd,
		searchCmd,
		definitionsCmd,
		clausesCmd,
		enhanceCmd,
		serveCmd,
		stopCmd,
		statusCmd,
		documentsCmd,
		configCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. verbose forces debug level; otherwise
// level is parsed from log.level and falls back to info.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if lvl, err := zap.ParseAtomicLevel(strings.ToLower(level)); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
