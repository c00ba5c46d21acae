package commands

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

	"homefs/internal/auth"
	"homefs/internal/config"
	"homefs/internal/httpserver"
	"homefs/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the homefs server",
	Long: `Start the homefs server with the specified configuration.

Examples:
  # Start with the default config location
  homefs start

  # Start with a custom config file
  homefs start --config /etc/homefs/config.yaml

  # Start with environment variable overrides
  HOMEFS_LOGGING_LEVEL=DEBUG homefs start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	users := make([]auth.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, auth.User{
			Username:       u.Username,
			Password:       u.Password,
			PasswordBcrypt: u.PasswordBcrypt,
			Home:           u.Home,
			WriteAccess:    u.WriteAccess,
			DeleteAccess:   u.DeleteAccess,
		})
	}
	store, err := auth.NewStore(users)
	if err != nil {
		return fmt.Errorf("failed to build credential store: %w", err)
	}

	srv, err := httpserver.New(httpserver.Options{
		Store:       store,
		Realm:       cfg.Server.Realm,
		MaxBodySize: int64(cfg.Server.MaxBodySize),
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("homefs listening", "addr", cfg.Server.Addr, "users", len(cfg.Users), "version", Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
