package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/pkg/config"
	"github.com/ajitpratap0/datalab/pkg/logger"
	"github.com/ajitpratap0/datalab/pkg/observability"
)

var version = "0.1.0"

// app holds the state shared by every subcommand.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	log        *zap.Logger
	shutdown   []func(context.Context) error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	a := &app{v: config.NewViper()}
	root := &cobra.Command{
		Use:   "datalab",
		Short: "datalab - apply operations to datasets",
		Long: `datalab applies featurizing, preprocessing, aggregating and prompting
operations to datasets, in streaming, materializing or persisting mode.
Persisted results are cached by fingerprint and reused on identical calls.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	root.PersistentFlags().String("cache-dir", "", "Cache directory for the file backend")
	_ = a.v.BindPFlag(config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyMetricsAddr, root.PersistentFlags().Lookup("metrics-addr"))
	_ = a.v.BindPFlag(config.KeyCacheDir, root.PersistentFlags().Lookup("cache-dir"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("datalab v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(a.opsCommand(), a.applyCommand(), a.cacheCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// init loads configuration in increasing precedence: defaults, config file,
// DATALAB_* environment, flags. It then sets up logging, tracing and the
// optional metrics endpoint.
func (a *app) init(ctx context.Context) error {
	cfg := config.Default()
	if a.configFile != "" {
		loaded, err := config.LoadFile(a.configFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		cfg = loaded
	}
	config.Overlay(cfg, a.v)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	a.log = logger.Get().With(zap.String("component", "datalab-cli"))

	if cfg.Observability.Tracing.Enabled {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing)
		if err != nil {
			return err
		}
		a.shutdown = append(a.shutdown, shutdown)
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", zap.Error(err))
			}
		}()
		a.log.Info("serving metrics", zap.String("addr", addr))
		a.shutdown = append(a.shutdown, srv.Shutdown)
	}
	return nil
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil && a.log != nil {
			a.log.Warn("shutdown failed", zap.Error(err))
		}
	}
	_ = logger.Sync()
	return nil
}
