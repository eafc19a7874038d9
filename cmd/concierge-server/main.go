package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vowsuite/concierge/assistant"
	"github.com/vowsuite/concierge/broadcast"
	"github.com/vowsuite/concierge/pending"
	"github.com/vowsuite/concierge/store"
	"github.com/vowsuite/concierge/tools"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concierge-server",
		Short: "Wedding planning assistant API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	cmd.Flags().String("config", "", "path to config file")
	cmd.Flags().String("listen", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("db", "concierge.db", "sqlite database path")
	cmd.Flags().String("upstream-url", "", "planner upstream streaming url")
	cmd.Flags().String("upstream-token", "", "planner upstream bearer token")
	cmd.Flags().String("model", "gpt-4o-mini", "planner model name")
	cmd.Flags().Duration("pending-ttl", pending.DefaultTTL, "confirmation window for pending tool calls")
	cmd.Flags().Duration("sweep-interval", time.Minute, "expired pending call sweep interval")
	cmd.Flags().Bool("debug", false, "development logging and gin debug mode")
	return cmd
}

type serverConfig struct {
	Listen        string
	DBPath        string
	UpstreamURL   string
	UpstreamToken string
	Model         string
	PendingTTL    time.Duration
	SweepInterval time.Duration
	Debug         bool
}

// loadConfig layers viper sources: defaults, then an optional yaml file,
// then CONCIERGE_* environment variables, then explicit flags.
func loadConfig(cmd *cobra.Command) (serverConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return serverConfig{}, err
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return serverConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := serverConfig{
		Listen:        v.GetString("listen"),
		DBPath:        v.GetString("db"),
		UpstreamURL:   v.GetString("upstream-url"),
		UpstreamToken: v.GetString("upstream-token"),
		Model:         v.GetString("model"),
		PendingTTL:    v.GetDuration("pending-ttl"),
		SweepInterval: v.GetDuration("sweep-interval"),
		Debug:         v.GetBool("debug"),
	}
	if cfg.UpstreamURL == "" {
		return serverConfig{}, fmt.Errorf("upstream-url is required (flag, config file, or CONCIERGE_UPSTREAM_URL)")
	}
	return cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg serverConfig) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	pendingStore := pending.NewStore(db, pending.WithTTL(cfg.PendingTTL))
	hub := broadcast.NewHub(sugar)
	actionLog := broadcast.NewLog(db)
	broadcaster := broadcast.NewBroadcaster(hub, actionLog, sugar)

	dispatcher, err := tools.NewDispatcher(tools.Config{
		DB:          db,
		Pending:     pendingStore,
		Broadcaster: broadcaster,
		Logger:      sugar,
	})
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	handler, err := assistant.NewHandler(assistant.Config{
		Dispatcher: dispatcher,
		Hub:        hub,
		Log:        actionLog,
		Logger:     sugar,
		NewPlanner: assistant.NewPlannerFactory(assistant.PlannerConfig{
			Model:       cfg.Model,
			UpstreamURL: cfg.UpstreamURL,
			Token:       cfg.UpstreamToken,
		}),
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if err := assistant.RegisterGinRoutes(r, handler); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepExpired(ctx, pendingStore, cfg.SweepInterval, sugar)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("concierge server listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		sugar.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("shutdown did not finish cleanly", "error", err)
		}
	}

	// Let in-flight sync dispatches land in the action log before exit.
	broadcaster.Wait()
	return nil
}

// sweepExpired periodically clears expired pending calls. Reads already
// skip expired rows, so this only keeps the table from growing.
func sweepExpired(ctx context.Context, s *pending.Store, interval time.Duration, logger *zap.SugaredLogger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Warnw("pending sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debugw("swept expired pending calls", "count", n)
			}
		}
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
