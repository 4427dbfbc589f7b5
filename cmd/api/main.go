package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradepost-io/tradepost/internal/api"
	"github.com/tradepost-io/tradepost/internal/auth"
	"github.com/tradepost-io/tradepost/internal/config"
	"github.com/tradepost-io/tradepost/internal/database"
	"github.com/tradepost-io/tradepost/internal/store"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log.Printf("Starting tradepost API v%s with config: %s", version, *configPath)

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// A store that cannot be reached at startup is fatal: exit non-zero
	// instead of serving traffic against a broken backend.
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.Type); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	st := store.New(db)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	svc := auth.NewService(st, st, tokens)

	providers := make(map[string]auth.OAuthProvider)
	if cfg.OAuth.Google.ClientID != "" {
		providers["google"] = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.Google.RedirectURL,
		})
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		providers["github"] = auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  cfg.OAuth.GitHub.RedirectURL,
		})
	}

	apiServer, err := api.New(cfg, svc, providers)
	if err != nil {
		return fmt.Errorf("failed to create API: %w", err)
	}
	defer apiServer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expired session rows are garbage-collected out of band; revocation
	// and expiry checks never depend on this loop.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.CleanupExpiredSessions(); err != nil {
					log.Printf("[MAIN] session cleanup failed: %v", err)
				}
			}
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.APIPort),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[MAIN] listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[MAIN] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
