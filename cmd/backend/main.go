package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"r2-share/internal/config"
	"r2-share/internal/logging"
	"r2-share/internal/registry"
	"r2-share/internal/server"
	"r2-share/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	startupPingTimeout = 15 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// runners are the actions behind the commands; tests replace them.
type runners struct {
	serve func(ctx context.Context, cfg config.Config) error
	check func(ctx context.Context, cfg config.Config) error
}

func newRootCmd(run runners) *cobra.Command {
	v := viper.New()
	config.Bind(v)

	var cfgFile string
	load := func() (config.Config, error) {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return config.Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
		return config.Load(v)
	}

	rootCmd := &cobra.Command{
		Use:   "r2-share",
		Short: "File sharing gateway for S3-compatible object stores",
		Long: `r2-share serves a small HTTP API for listing, uploading, downloading
and deleting files kept in an S3-compatible bucket such as Cloudflare R2.

Configuration comes from environment variables, an optional YAML file
and flags; flags win over the environment, which wins over the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run.serve(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String("addr", "", "listen address (default :8080)")
	flags.Int64("max-upload-bytes", 0, "largest accepted upload in bytes (default 1 GiB)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	_ = v.BindPFlag("addr", flags.Lookup("addr"))
	_ = v.BindPFlag("max_upload_bytes", flags.Lookup("max-upload-bytes"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and check the bucket is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run.check(cmd.Context(), cfg)
		},
	})

	return rootCmd
}

// openStore builds the store client and confirms the bucket answers.
func openStore(ctx context.Context, cfg config.Config) (*storage.Client, error) {
	store, err := storage.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func check(ctx context.Context, cfg config.Config) error {
	logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("ok: bucket %q reachable, auth %s\n", store.Bucket(), authState(cfg.Auth))
	return nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	store, err := openStore(ctx, cfg)
	if err != nil {
		logging.Error("store_unavailable", logging.Fields{"bucket": cfg.Store.Bucket}, err)
		return err
	}

	srv := server.New(server.Config{
		Addr:     cfg.Addr,
		Registry: registry.New(store, registry.Options{MaxUploadBytes: cfg.MaxUploadBytes}),
		Auth:     cfg.Auth,
		Store:    store,
		Version:  version,
	})

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting", logging.Fields{
			"addr":    cfg.Addr,
			"version": version,
			"bucket":  store.Bucket(),
			"auth":    authState(cfg.Auth),
		})
		errCh <- srv.Start()
	}()

	// SIGINT (Ctrl+C) or SIGTERM (container stop) start a graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logging.Info("shutting_down", logging.Fields{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Error("shutdown_error", nil, err)
			return err
		}
		logging.Info("shutdown_complete", nil)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("server_error", nil, err)
			return err
		}
		return nil
	}
}

func authState(a config.Auth) string {
	if a.Enabled() {
		return "enabled"
	}
	return "disabled"
}

func main() {
	rootCmd := newRootCmd(runners{serve: serve, check: check})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
