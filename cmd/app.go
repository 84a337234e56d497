package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abhisek/zapquiz/internal/config"
	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/llm"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/store"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *store.Store
	ledger  *economy.Ledger
	content *content.Service
	orch    *orchestrator.Orchestrator
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	if err := resolveDBPath(cmd, cfg); err != nil {
		return nil, nil, fmt.Errorf("resolve DB path: %w", err)
	}
	return cfg, log, nil
}

// resolveDBPath picks the database in priority order: the --db flag, the
// configured DSN, then the default XDG path for SQLite.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) error {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.Driver = store.DriverSQLite
		cfg.Store.DSN = p
		return store.EnsureDir(p)
	}
	if cfg.Store.DSN != "" || cfg.Store.Driver == store.DriverPostgres {
		return nil
	}
	p, err := store.DefaultDBPath()
	if err != nil {
		return err
	}
	cfg.Store.DSN = p
	return nil
}

// newApp opens the store and wires the services.
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, st, log)
	if err != nil {
		log.WithError(err).Warn("LLM provider not configured, grading by exact match only")
	}
	var judge content.Judge
	if provider != nil {
		judge = content.NewLLMJudge(provider, cfg.Judge)
	}

	ledger := economy.NewLedger(st, cfg.Economy, log)
	board := leaderboard.New(ctx, cfg.Leaderboard, st, log)
	svc := content.NewService(st, ledger, content.NewGrader(judge, log), cfg.Content, log,
		content.WithLeaderboard(board))
	orch := orchestrator.New(orchestrator.Deps{
		Content: svc,
		Ledger:  ledger,
		Events:  st,
		Gems:    gems.NewService(st, log),
		Board:   board,
		Log:     log,
	}, cfg.Session)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		ledger:  ledger,
		content: svc,
		orch:    orch,
	}, nil
}

func (a *app) Close() {
	if c, ok := a.orch.Board.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	_ = a.store.Close()
}
