package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/presentation/tui"
	httpAdapter "github.com/aretw0/switchboard/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the session manager and exposes it over HTTP.
Previously authenticated tenants are reconnected in the background unless
sessions.restore.enabled is false.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if quiet, _ := cmd.Flags().GetBool("no-banner"); !quiet {
			tui.PrintBanner(os.Stderr, strings.TrimSpace(switchboard.Version), tui.ColorEnabled(os.Stderr))
		}

		a, err := build(cfg, logger)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: httpAdapter.NewHandler(a.manager,
				httpAdapter.WithEvents(a.events),
				httpAdapter.WithLogger(logger),
				httpAdapter.WithGatherer(a.registry),
				httpAdapter.WithUploadDir(cfg.HTTP.UploadDir),
				httpAdapter.WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting Switchboard server", "addr", srv.Addr, "bridge", cfg.Bridge.URL)
			serverErrors <- srv.ListenAndServe()
		}()

		if cfg.Sessions.Restore.Enabled {
			go func() {
				report, err := a.manager.Restore(ctx)
				if err != nil {
					logger.Error("Session restore failed", "err", err)
					return
				}
				logger.Info("Session restore finished",
					"attempted", len(report.Attempted),
					"restored", len(report.Restored),
					"aborted", len(report.Aborted),
					"skipped", len(report.Skipped))
			}()
		}

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = err
			}
		case <-ctx.Done():
			logger.Info("Shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			_ = srv.Close()
		}
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("Closing sessions", "err", err)
		}
		logger.Info("Switchboard server stopped")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("no-banner", false, "Do not print the start-up banner")
	_ = v.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}
