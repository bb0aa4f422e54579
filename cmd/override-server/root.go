package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serverConfig is the resolved server configuration: flags, then
// OVERRIDE_* environment variables, then the optional config file.
type serverConfig struct {
	Listen          string        `mapstructure:"listen"`
	DBType          string        `mapstructure:"db-type"`
	DBDSN           string        `mapstructure:"db-dsn"`
	DBLogLevel      string        `mapstructure:"db-log-level"`
	RulesPath       string        `mapstructure:"rules"`
	AuthzMode       string        `mapstructure:"authz-mode"`
	AuthzPolicy     string        `mapstructure:"authz-policy"`
	AuthzNamespace  string        `mapstructure:"authz-namespace"`
	AuthzCacheTTL   time.Duration `mapstructure:"authz-cache-ttl"`
	CORSOrigins     []string      `mapstructure:"cors-origins"`
	LogLevel        string        `mapstructure:"log-level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	OTLPEndpoint    string        `mapstructure:"otlp-endpoint"`
	OTLPInsecure    bool          `mapstructure:"otlp-insecure"`
	TraceSampleRate float64       `mapstructure:"trace-sample-rate"`
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "override-server",
		Short:        "Serve the admin override API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", configFile, err)
				}
			}
			var cfg serverConfig
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("decode config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Path to a YAML server config file")
	f.String("listen", ":8080", "Address to listen on")
	f.String("db-type", "postgres", "Database type (postgres, mysql or sqlite)")
	f.String("db-dsn", "", "Database connection string")
	f.String("db-log-level", "warn", "gorm log level (silent, error, warn, info)")
	f.String("rules", "/config/override-rules.yaml", "Path to the override rules file; reloaded on change")
	f.String("authz-mode", "none", "Authorization mode (none, static or sar)")
	f.String("authz-policy", "", "Path to the static authorization policy")
	f.String("authz-namespace", "", "Namespace for SubjectAccessReview checks in sar mode")
	f.Duration("authz-cache-ttl", 10*time.Second, "How long sar decisions are cached")
	f.StringSlice("cors-origins", []string{"https://*", "http://*"}, "Allowed CORS origins")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	f.String("otlp-endpoint", "", "OTLP gRPC collector for traces, e.g. otel-collector:4317; empty disables export")
	f.Bool("otlp-insecure", false, "Connect to the OTLP collector without TLS")
	f.Float64("trace-sample-rate", 1, "Fraction of root spans to sample when exporting")

	v.SetEnvPrefix("OVERRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		glog.Fatalf("Failed to bind flags: %v", err)
	}
	return cmd
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func serve(parent context.Context, cfg serverConfig) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.watchRules(cfg.RulesPath); err != nil {
		logger.Warn("rules hot reload disabled", "path", cfg.RulesPath, "error", err)
	}
	a.startBackground(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("override server ready", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	a.Wait()
	logger.Info("override server stopped")
	return nil
}
