package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/team-mirai/mirai-gikai-sub000/cache"
	"github.com/team-mirai/mirai-gikai-sub000/repository"
	"github.com/team-mirai/mirai-gikai-sub000/services"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	cfg      *services.Config
	seedFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mirai-gikai",
	Short:         "Bill interview service",
	Long:          "Runs AI-moderated interviews with respondents about bills and collects scored opinion reports.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = services.LoadConfig()

		// Setup structured logging with JSON format
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})
		slog.SetDefault(slog.New(handler))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Seed file (defaults to DATABASE_SEED_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, db, err := openDatabase(ctx)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return err
		}
		defer pool.Close()

		repo := repository.NewGORMRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			slog.Error("Failed to migrate database", "error", err)
			return err
		}

		rdb := openRedis(ctx)
		if rdb != nil {
			defer rdb.Close()
		}

		if cfg.Database.Seed {
			if err := runSeed(ctx, repo, rdb, cfg.Database.SeedFile); err != nil {
				slog.Error("Failed to seed database", "error", err)
			}
		}

		server := services.NewServer(cfg)
		server.SetDatabase(pool, db)
		server.SetRedis(rdb)
		if err := server.InitializeServices(); err != nil {
			slog.Error("Failed to initialize services", "error", err)
			return err
		}

		return server.Start(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, db, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repository.NewGORMRepository(db).AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		slog.Info("Database migrated")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo respondents, bills and interview configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := repository.NewGORMRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		rdb := openRedis(ctx)
		if rdb != nil {
			defer rdb.Close()
		}

		path := seedFile
		if path == "" {
			path = cfg.Database.SeedFile
		}
		return runSeed(ctx, repo, rdb, path)
	},
}

func runSeed(ctx context.Context, repo *repository.GORMRepository, rdb *redis.Client, path string) error {
	seed, err := services.LoadSeedFile(path)
	if err != nil {
		return err
	}
	seeder := services.NewDatabaseSeeder(repo, cache.NewInterviewCache(rdb, cfg.Cache.TTL))
	return seeder.SeedDatabase(ctx, seed)
}

// openDatabase connects a pgx pool and opens GORM on top of it, so health
// checks and GORM share one set of connections.
func openDatabase(ctx context.Context) (*pgxpool.Pool, *gorm.DB, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("database url not configured")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(parseGormLogLevel(cfg.Database.LogLevel)),
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	slog.Info("Connected to database")
	return pool, db, nil
}

// openRedis returns nil when redis is not configured or unreachable; the
// service then runs without a cache.
func openRedis(ctx context.Context) *redis.Client {
	if cfg.Redis.Addr == "" {
		slog.Info("Redis not configured, running without cache")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     strings.TrimPrefix(cfg.Redis.Addr, "redis://"),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("Failed to ping Redis, running without cache", "error", err)
		rdb.Close()
		return nil
	}

	slog.Info("Connected to Redis")
	return rdb
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseGormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
