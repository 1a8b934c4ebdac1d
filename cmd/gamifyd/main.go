package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/EcoCampusLab/gamify/internal/httpserver"
	"github.com/EcoCampusLab/gamify/internal/store/gormstore"
	"github.com/EcoCampusLab/gamify/internal/zaplog"
	"github.com/EcoCampusLab/gamify/pkg/gamify"
	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagDailyMultiplier   = "daily-multiplier"
	flagMonthlyMultiplier = "monthly-multiplier"

	configKeyDatabaseURL       = "database_url"
	configKeyListenAddr        = "listen_addr"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeyDailyMultiplier   = "daily_multiplier"
	configKeyMonthlyMultiplier = "monthly_multiplier"

	defaultDatabaseURL = "sqlite:///tmp/gamify.db"
	defaultListenAddr  = ":8080"
)

type runtimeConfig struct {
	DatabaseURL       string
	ListenAddr        string
	AllowedOrigins    string
	DailyMultiplier   int64
	MonthlyMultiplier int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gamifyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "gamifyd",
		Short:         "Gamification engine HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().Int64(flagDailyMultiplier, 0, "daily leaderboard reward multiplier override")
	cmd.Flags().Int64(flagMonthlyMultiplier, 0, "monthly leaderboard reward multiplier override")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:       "DATABASE_URL",
		configKeyListenAddr:        "HTTP_LISTEN_ADDR",
		configKeyAllowedOrigins:    "ALLOWED_ORIGINS",
		configKeyDailyMultiplier:   "DAILY_MULTIPLIER",
		configKeyMonthlyMultiplier: "MONTHLY_MULTIPLIER",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL:       flagDatabaseURL,
		configKeyListenAddr:        flagListenAddr,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeyDailyMultiplier:   flagDailyMultiplier,
		configKeyMonthlyMultiplier: flagMonthlyMultiplier,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.DailyMultiplier = viper.GetInt64(configKeyDailyMultiplier)
	cfg.MonthlyMultiplier = viper.GetInt64(configKeyMonthlyMultiplier)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	tripStore := gormstore.NewTripStore(gormDB)
	engine, err := gamify.New(gamify.Dependencies{
		LedgerStore:    gormstore.NewLedgerStore(gormDB),
		TripSource:     tripStore,
		TripAggregator: tripStore,
		Directory:      gormstore.NewDirectoryStore(gormDB),
		RewardRecords:  gormstore.NewRewardStore(gormDB),
		ChallengeStore: gormstore.NewChallengeStore(gormDB),
		BadgeStore:     gormstore.NewBadgeStore(gormDB),
		Now:            time.Now,
	}, gamify.Options{
		LeaderboardConfig: leaderboardConfig(cfg),
		OperationLogger:   zaplog.NewOperationLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	serverConfig := httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpserver.ParseAllowedOrigins(cfg.AllowedOrigins),
	}
	return httpserver.Run(ctx, serverConfig, engine, logger)
}

func leaderboardConfig(cfg *runtimeConfig) *leaderboard.Config {
	if cfg.DailyMultiplier <= 0 && cfg.MonthlyMultiplier <= 0 {
		return nil
	}
	config := leaderboard.DefaultConfig()
	if cfg.DailyMultiplier > 0 {
		config.DailyMultiplier = cfg.DailyMultiplier
	}
	if cfg.MonthlyMultiplier > 0 {
		config.MonthlyMultiplier = cfg.MonthlyMultiplier
	}
	return &config
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "gamify.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
