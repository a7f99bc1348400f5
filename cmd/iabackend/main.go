package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rpenyav/ia-backend/internal/auth"
	"github.com/rpenyav/ia-backend/internal/catalog"
	"github.com/rpenyav/ia-backend/internal/chat"
	"github.com/rpenyav/ia-backend/internal/config"
	"github.com/rpenyav/ia-backend/internal/conversation"
	"github.com/rpenyav/ia-backend/internal/llm"
	"github.com/rpenyav/ia-backend/internal/registry"
	"github.com/rpenyav/ia-backend/internal/server"
	"github.com/rpenyav/ia-backend/internal/settings"
	"github.com/rpenyav/ia-backend/internal/store"
	"github.com/rpenyav/ia-backend/internal/usage"
	"github.com/rpenyav/ia-backend/internal/version"
	"github.com/rpenyav/ia-backend/pkg/plugin"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Config comes first so the logger can honour logging.*.
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ia-backend starting", zap.String("version", version.Short()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPath := viperCfg.GetString("database.path")
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Fatal("failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Auth decides how chat callers are identified. The management API
	// always needs a token, signed with an ephemeral secret in mode none.
	authCfg := auth.DefaultConfig()
	if sub := cfg.Sub("auth"); sub != nil {
		if err := sub.Unmarshal(&authCfg); err != nil {
			logger.Fatal("failed to read auth config", zap.Error(err))
		}
	}
	mode, err := authCfg.Validate()
	if err != nil {
		logger.Fatal("invalid auth config", zap.Error(err))
	}
	secret := authCfg.JWTSecret
	if secret == "" {
		// Only reachable in mode none; tokens from /auth/login won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("failed to generate JWT secret", zap.Error(err))
		}
		secret = hex.EncodeToString(b)
		logger.Info("using auto-generated JWT secret", zap.String("component", "auth"))
	}
	tokens := auth.NewTokenService([]byte(secret), authCfg.Issuer, authCfg.AccessTokenTTL)

	userStore, err := auth.NewUserStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize auth store", zap.Error(err))
	}
	authHandler := auth.NewHandler(auth.NewService(userStore, tokens, logger.Named("auth")), logger.Named("auth"))
	logger.Info("auth initialized",
		zap.String("component", "auth"),
		zap.String("mode", string(mode)),
		zap.Duration("access_token_ttl", authCfg.AccessTokenTTL),
	)

	settingsRepo, err := settings.NewSQLiteRepository(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize settings repository", zap.Error(err))
	}
	tenant := viperCfg.GetString("app.id")
	prompts := settings.NewPromptResolver(settingsRepo, tenant, logger.Named("settings"))
	settingsHandler := settings.NewHandler(settingsRepo, prompts, logger.Named("settings"))

	chatMod := chat.New()
	chatMod.SetAuth(mode, tokens)
	chatMod.SetPromptSource(prompts)

	reg := registry.New(logger.Named("registry"))
	modules := []plugin.Plugin{
		usage.New(),
		llm.New(),
		catalog.New(),
		conversation.New(),
		chatMod,
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}
	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub(name),
			Logger:  logger.Named(name),
			Store:   db,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}
	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	srvCfg, err := server.ServerConfig(viperCfg)
	if err != nil {
		logger.Fatal("invalid server config", zap.Error(err))
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.Ping(ctx)
	})
	srv := server.New(srvCfg, reg, logger, readyCheck, auth.APIMiddleware(tokens), authHandler, settingsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("ia-backend ready",
		zap.String("addr", srvCfg.Addr()),
		zap.String("tenant", tenant),
		zap.String("provider", viperCfg.GetString("llm.provider")),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting turns before modules close their stores.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)

	logger.Info("ia-backend stopped")
}
