package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"meshforge.app/studio/common/id"
	"meshforge.app/studio/common/llm"
	"meshforge.app/studio/common/logger"
	"meshforge.app/studio/common/otel"
	"meshforge.app/studio/core/config"
	"meshforge.app/studio/core/db"
	"meshforge.app/studio/internal/codegen"
	"meshforge.app/studio/internal/compiler"
	"meshforge.app/studio/internal/forge"
	"meshforge.app/studio/internal/http/handler"
	"meshforge.app/studio/internal/http/middleware"
	httprouter "meshforge.app/studio/internal/http/router"
	"meshforge.app/studio/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "studio starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if err := db.Migrate(cfg.DB.DSN); err != nil {
		slog.ErrorContext(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "migrations applied")

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected")

	streamClient, err := llm.NewStreamClient(llm.Config{
		Provider:        cfg.GeneratorLLM.Provider,
		APIKey:          cfg.GeneratorLLM.APIKey,
		BaseURL:         cfg.GeneratorLLM.BaseURL,
		Model:           cfg.GeneratorLLM.Model,
		ReasoningEffort: llm.ReasoningEffort(cfg.GeneratorLLM.ReasoningEffort),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create generation client", "error", err)
		os.Exit(1)
	}

	visionClient, err := llm.NewVisionClient(llm.Config{
		Provider: cfg.VisionLLM.Provider,
		APIKey:   cfg.VisionLLM.APIKey,
		BaseURL:  cfg.VisionLLM.BaseURL,
		Model:    cfg.VisionLLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create vision client", "error", err)
		os.Exit(1)
	}

	openscad, err := compiler.NewOpenSCAD(compiler.Config{
		Binary:        cfg.Compiler.Binary,
		WorkDir:       cfg.Compiler.WorkDir,
		PreviewSize:   cfg.Compiler.PreviewSize,
		Timeout:       cfg.Compiler.Timeout,
		PublicBaseURL: cfg.PublicBaseURL,
	}, compiler.ExecCommandRunner{})
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up compiler workspace", "error", err)
		os.Exit(1)
	}

	conversations := store.NewConversationStore(database)
	messages := store.NewMessageStore(database)

	agent := codegen.NewAgent(streamClient, cfg.GeneratorLLM.MaxTokens)
	analyzer := forge.NewVisionAnalyzer(visionClient, cfg.VisionLLM.MaxTokens)
	orchestrator := forge.NewOrchestrator(agent, openscad, messages, analyzer, cfg.Generation.MaxAttempts)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Generate: handler.NewGenerateHandler(orchestrator, conversations, messages,
			handler.NewConversationLock(redisClient, cfg.Redis.LockTTL)),
		Conversations: handler.NewConversationHandler(conversations, messages),
		Artifacts:     handler.NewArtifactHandler(openscad),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streamed generations stay open for the whole attempt budget.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, handlers)

	return router
}

const banner = `
███╗   ███╗███████╗███████╗██╗  ██╗███████╗ ██████╗ ██████╗  ██████╗ ███████╗
████╗ ████║██╔════╝██╔════╝██║  ██║██╔════╝██╔═══██╗██╔══██╗██╔════╝ ██╔════╝
██╔████╔██║█████╗  ███████╗███████║█████╗  ██║   ██║██████╔╝██║  ███╗█████╗
██║╚██╔╝██║██╔══╝  ╚════██║██╔══██║██╔══╝  ██║   ██║██╔══██╗██║   ██║██╔══╝
██║ ╚═╝ ██║███████╗███████║██║  ██║██║     ╚██████╔╝██║  ██║╚██████╔╝███████╗
╚═╝     ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝╚═╝      ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚══════╝
`
