package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/besafe/digital-sister/internal/api"
	"github.com/besafe/digital-sister/internal/config"
	"github.com/besafe/digital-sister/internal/core"
	"github.com/besafe/digital-sister/internal/dialogue"
	"github.com/besafe/digital-sister/internal/domain"
	"github.com/besafe/digital-sister/internal/logging"
	"github.com/besafe/digital-sister/internal/mail"
	"github.com/besafe/digital-sister/internal/metrics"
	"github.com/besafe/digital-sister/internal/store"
	"github.com/besafe/digital-sister/internal/terminal"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "besafe",
		Short:         "My Digital Sister: support for young people who received a worrying message online",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig()
			if cmd.Flags().Changed("log-level") {
				config.AppConfig.LogLevel = logLevel
			}
			return logging.Setup(os.Stderr, config.AppConfig.LogLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newImportCommand())
	return rootCmd
}

// app holds the wired services shared by the commands.
type app struct {
	reports *core.ReportService
	metrics *metrics.Metrics
	close   func()
}

func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbStore, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	closers := []func(){func() { dbStore.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var classifier domain.Classifier
	switch cfg.Classifier {
	case config.ClassifierGemini:
		llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to initialize classifier: %w", err)
		}
		closers = append(closers, llmService.Close)
		classifier = llmService
	default:
		log.Warn("Using the static classifier, verdicts are canned")
		classifier = core.StaticClassifier{}
	}

	identity, err := core.NewIdentityResolver(dbStore, cfg.IdentityCacheSize)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize identity resolver: %w", err)
	}

	m := metrics.New(reg)
	reports := core.NewReportService(
		identity,
		dbStore,
		classifier,
		core.NewNotificationDispatcher(mail.NewMailer(cfg)),
		core.WithClassifierTimeout(cfg.ClassifierTimeout),
		core.WithMetrics(m),
	)

	return &app{reports: reports, metrics: m, close: closeAll}, nil
}

func (a *app) newSession(historyPreview int) *dialogue.Session {
	return dialogue.NewSession(a.reports,
		dialogue.WithHistoryPreview(historyPreview),
		dialogue.WithSessionMetrics(a.metrics),
	)
}

func newServeCommand() *cobra.Command {
	var port, storage string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			if port != "" {
				cfg.HTTPPort = port
			}
			if storage != "" {
				cfg.StorageBackend = storage
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			a, err := newApp(cmd.Context(), cfg, reg)
			if err != nil {
				return err
			}
			defer a.close()

			sessions := api.NewSessionRegistry(cfg.SessionCacheSize, cfg.SessionTTL, func() *dialogue.Session {
				return a.newSession(cfg.HistoryPreview)
			})
			router := api.NewRouter(api.NewAPIHandler(a.reports, sessions), reg)

			serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
			srv := &http.Server{
				Addr:         serverAddr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: cfg.ClassifierTimeout + 30*time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", serverAddr).Info("Starting server, press Ctrl+C to quit")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}
			log.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			log.Info("Server exiting gracefully")
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (overrides HTTP_PORT)")
	cmd.Flags().StringVar(&storage, "storage", "", "Storage backend: sqlite or file (overrides STORAGE_BACKEND)")
	return cmd
}

func newChatCommand() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the digital sister in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			a, err := newApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			chat := terminal.NewChat(a.newSession(cfg.HistoryPreview), terminal.PromptAsker{}, os.Stdout, !noColor && !color.NoColor)
			return chat.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <reports.json>",
		Short: "Import a reports file into the SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			snap, upgraded, err := store.DecodeSnapshot(data)
			if err != nil {
				return err
			}
			if upgraded {
				log.Info("Converted flat report list to per-user layout")
			}

			dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer dbStore.Close()

			users, reports, err := dbStore.ImportSnapshot(cmd.Context(), snap)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"users": users, "reports": reports, "database": config.AppConfig.DatabaseURL}).Info("Import complete")
			return nil
		},
	}
}
