package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/anti-todo/internal/api"
	"github.com/ashureev/anti-todo/internal/config"
	"github.com/ashureev/anti-todo/internal/identity"
	"github.com/ashureev/anti-todo/internal/live"
	"github.com/ashureev/anti-todo/internal/middleware"
	"github.com/ashureev/anti-todo/internal/prompt"
	"github.com/ashureev/anti-todo/internal/provider"
	"github.com/ashureev/anti-todo/internal/store"
	"github.com/ashureev/anti-todo/internal/sweeper"
	"github.com/ashureev/anti-todo/internal/todo"
	"github.com/ashureev/anti-todo/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the HTTP server. It is also what the root command runs.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Anti-Todo HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return serve(cfg, logger)
	},
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected", "path", cfg.DBPath)

	prompts, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}

	chains, err := buildChains(ctx, cfg, prompts, logger)
	if err != nil {
		return err
	}

	hub := live.NewHub()
	ctrl := todo.NewController(repo, todo.Chains{
		Convert: chains.convert,
		Steps:   chains.steps,
		Story:   chains.story,
	}, todo.Options{
		MinTaskLength: cfg.MinTaskLength,
		StepsCooldown: cfg.StepsCooldown,
		Notifier:      hub,
		Logger:        logger,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, func(r *http.Request) string {
		return identity.UserIDFromContext(r.Context())
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg.FrontendURL)))

	r.Get("/health", api.HealthHandler(repo, cfg.Timeout.HealthCheck))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		api.NewTodoHandler(ctrl, chains.convert.Providers()).RegisterRoutes(r, limiter.Middleware)
		r.Get("/ws/todos", live.NewHandler(hub, ctrl, originPatterns(cfg.FrontendURL)).ServeHTTP)
	})

	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: step and story requests wait on the providers, and
	// the websocket stream is long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sw := sweeper.New(repo, cfg.Sweep.Interval, cfg.Sweep.BoardTTL, ctrl.Forget)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadPrompts(path string) (*prompt.Set, error) {
	if path == "" {
		return prompt.Default()
	}
	slog.Info("Loading prompts", "path", path)
	return prompt.Load(path)
}

type pipelineChains struct {
	convert, steps, story *provider.Chain
}

// buildChains orders providers per kind: Groq first, then Gemini when
// configured, then Hugging Face. Hugging Face never writes stories.
func buildChains(ctx context.Context, cfg *config.Config, prompts *prompt.Set, logger *slog.Logger) (pipelineChains, error) {
	httpClient := &http.Client{}

	groq := provider.NewGroqProvider(provider.GroqConfig{
		APIKey:  cfg.Groq.APIKey,
		BaseURL: cfg.Groq.BaseURL,
		Models: map[prompt.Kind]string{
			prompt.KindConvert: cfg.Groq.ModelConvert,
			prompt.KindSteps:   cfg.Groq.ModelSteps,
			prompt.KindStory:   cfg.Groq.ModelStory,
		},
	}, prompts, httpClient)

	hf := provider.NewHuggingFaceProvider(provider.HuggingFaceConfig{
		Token:   cfg.HuggingFace.Token,
		BaseURL: cfg.HuggingFace.BaseURL,
		Model:   cfg.HuggingFace.Model,
	}, prompts, httpClient)

	primary := []provider.Provider{groq}
	if cfg.GeminiEnabled() {
		gemini, err := provider.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, prompts)
		if err != nil {
			return pipelineChains{}, err
		}
		primary = append(primary, gemini)
		slog.Info("Gemini provider enabled", "model", cfg.Gemini.Model)
	}

	chain := func(kind prompt.Kind, ps ...provider.Provider) *provider.Chain {
		c := provider.NewChain(kind, provider.DefaultReply(kind), cfg.Timeout.Provider, logger, ps...)
		slog.Info("Provider chain ready", "kind", c.Kind(), "providers", c.Providers())
		return c
	}

	withFallback := append(append([]provider.Provider(nil), primary...), hf)
	return pipelineChains{
		convert: chain(prompt.KindConvert, withFallback...),
		steps:   chain(prompt.KindSteps, withFallback...),
		story:   chain(prompt.KindStory, primary...),
	}, nil
}

func allowedOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return nil
	}
	return []string{frontendURL}
}

func originPatterns(frontendURL string) []string {
	u, err := url.Parse(frontendURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
