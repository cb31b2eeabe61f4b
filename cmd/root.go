package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/app"
	"github.com/abhisek/lingua/internal/config"
	"github.com/abhisek/lingua/internal/logger"
	"github.com/abhisek/lingua/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "lingua",
	Short:        "Adaptive language-learning sessions",
	Long:         "lingua runs adaptive language-learning sessions: it generates exercises with an LLM, marks answers and tracks per-skill performance.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides database settings and LINGUA_DB)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./lingua.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		if err := store.EnsureDir(p); err != nil {
			return nil, fmt.Errorf("resolve DB path: %w", err)
		}
		cfg.Database.Driver = string(store.DialectSQLite)
		cfg.Database.DSN = p
	}
	return cfg, nil
}

// openStore loads the configuration and opens its database.
func openStore(cmd *cobra.Command) (*store.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := app.OpenStore(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Server.LogMode, cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
