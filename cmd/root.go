package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/abmgate/abmgate/internal/abm"
	"github.com/abmgate/abmgate/internal/config"
	"github.com/abmgate/abmgate/internal/logging"
	"github.com/abmgate/abmgate/internal/schema"
	"github.com/abmgate/abmgate/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "abmgate",
	Short: "abmgate - generic create/read/update/delete gateway for PostgreSQL",
	Long: `abmgate exposes every table of a PostgreSQL schema through one uniform
operation surface: create, update, delete, list, find and structure.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file; environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
}

// app is everything a database-backed command needs.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	store        *store.Postgres
	introspector *schema.Introspector
	dispatcher   *abm.Dispatcher
	closeLog     func()
}

func (a *app) Close() {
	a.pool.Close()
	a.closeLog()
}

// openApp loads configuration, connects and wires the core.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		SeqURL: cfg.SeqURL,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	st := store.NewPostgres(pool, cfg.QueryTimeout)
	if err := st.Ping(ctx); err != nil {
		pool.Close()
		closeLog()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	introspector := schema.NewIntrospector(st, cfg.Schema, logger,
		schema.WithForeignKeyRowLimit(cfg.FKRowLimit),
	)
	dispatcher := abm.New(st, introspector, cfg.Schema, logger,
		abm.WithCatalogCheck(cfg.CatalogCheck),
	)

	logger.Debug("connected",
		slog.String("database", cfg.CurrentDatabase()),
		slog.String("schema", cfg.Schema),
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		store:        st,
		introspector: introspector,
		dispatcher:   dispatcher,
		closeLog:     closeLog,
	}, nil
}
