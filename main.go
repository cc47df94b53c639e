package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/config"
	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
	"github.com/concordat-gov/concord-engine/pkg/seed"
	"github.com/concordat-gov/concord-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	graphRepo := repositories.NewGraphRepository(db)
	workflowRepo := repositories.NewWorkflowRepository(db)
	builder := services.NewWorkflowBuilderService(db, graphRepo, workflowRepo, logger)

	definition, err := seed.LoadDefinition(cfg.Seed.DefinitionPath)
	if err != nil {
		logger.Fatal("Failed to load seed definition", zap.Error(err))
	}
	seeder := seed.NewSeeder(db, graphRepo, builder, logger)
	if err := seeder.Run(ctx, definition, cfg.Seed.AdminPasswordHash); err != nil {
		logger.Fatal("Failed to seed graph", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": cfg.Version,
		})
	})

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting concord-engine", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
