// Package main seeds the database with one user and a batch of random farms,
// then prints the user's credentials and a short-lived access token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/farmrank/internal/auth"
	"github.com/onnwee/farmrank/internal/config"
	"github.com/onnwee/farmrank/internal/db"
	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/middleware"
	"github.com/onnwee/farmrank/internal/seed"
	"github.com/onnwee/farmrank/internal/user"
)

func main() {
	farms := flag.Int("farms", seed.DefaultFarms, "number of farms to create")
	email := flag.String("email", "", "seed user email (random when empty)")
	concurrency := flag.Int("concurrency", seed.DefaultConcurrency, "concurrent farm inserts")
	configPath := flag.String("config", "", "optional YAML config file; environment variables take precedence")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, seed.Options{Farms: *farms, Email: *email, Concurrency: *concurrency}, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts seed.Options, logger *slog.Logger) error {
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	users := user.NewPostgresRepository(conn, logger)
	res, err := seed.Run(ctx, users, farm.NewPostgresRepository(conn, logger), opts, logger)
	if err != nil {
		return err
	}

	token, err := auth.NewJWTService(cfg.JWTSecret).GenerateAccessToken(res.User.ID, res.User.Email)
	if err != nil {
		return fmt.Errorf("generate access token: %w", err)
	}

	fmt.Printf("user id:      %s\n", res.User.ID)
	fmt.Printf("email:        %s\n", res.User.Email)
	fmt.Printf("password:     %s\n", res.Password)
	fmt.Printf("farms:        %d\n", res.Inserted)
	fmt.Printf("access token: %s\n", token)
	return nil
}
