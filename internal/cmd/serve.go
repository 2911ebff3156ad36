package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shamanic-technologies/reply-qualification-service/internal/config"
	"github.com/shamanic-technologies/reply-qualification-service/internal/keyvault"
	"github.com/shamanic-technologies/reply-qualification-service/internal/qualify"
	"github.com/shamanic-technologies/reply-qualification-service/internal/runs"
	"github.com/shamanic-technologies/reply-qualification-service/internal/server"
	"github.com/shamanic-technologies/reply-qualification-service/internal/store"
)

var (
	servePort      int
	serveRateLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the qualification HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides RQS_PORT)")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 0, "per-org requests per minute (0 disables limiting)")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> source service from a comma-separated
// list; each entry is either "key" or "key:service".
func parseAPIKeys(env string) map[string]string {
	m := make(map[string]string)
	if env == "" {
		return m
	}
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		service := "unknown"
		if idx := strings.Index(part, ":"); idx > 0 {
			service = strings.TrimSpace(part[idx+1:])
			part = strings.TrimSpace(part[:idx])
		}
		m[part] = service
	}
	return m
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	st, err := store.NewStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer st.Close()

	if cfg.KeyServiceAPIKey == "" {
		log.Warn().Msg("RQS_KEY_SERVICE_API_KEY not set — credential resolution will fail")
	}
	keyClient := keyvault.NewClient(cfg.KeyServiceURL, cfg.KeyServiceAPIKey)
	resolver := keyvault.NewResolver(keyClient, "anthropic", config.ServiceName)

	var runsClient *runs.Client
	if cfg.RunsServiceAPIKey == "" {
		log.Warn().Msg("RQS_RUNS_SERVICE_API_KEY not set — run bookkeeping disabled")
	} else {
		runsClient = runs.NewClient(cfg.RunsServiceURL, cfg.RunsServiceAPIKey)
	}
	recorder := runs.NewRecorder(runsClient)

	invoker := qualify.NewInvoker(cfg.Model, cfg.MaxOutputTokens)

	apiKeys := parseAPIKeys(cfg.APIKeys)
	if len(apiKeys) == 0 {
		log.Warn().Msg("RQS_API_KEYS not set — all API endpoints will return 401. Set for production.")
	}

	opts := []server.Option{
		server.WithCORSOrigins([]string{"*"}),
	}
	if serveRateLimit > 0 {
		opts = append(opts, server.WithRateLimiter(server.NewRateLimiter(serveRateLimit)))
	}

	srv := server.NewServer(st, resolver, invoker, recorder, apiKeys, opts...)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("model", cfg.Model).
		Str("key_service", cfg.KeyServiceURL).
		Str("runs_service", cfg.RunsServiceURL).
		Msg("replyqual_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
