package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitherto/hitherto/internal/api"
	"github.com/hitherto/hitherto/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "hitherto",
		Short:         "Market-analysis decision pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (defaults apply when empty)")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(newOnceCmd(&cfgPath))
	return root
}

func loadConfig(path string) (config.Root, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// newOnceCmd runs a single decision cycle and prints the result as JSON.
func newOnceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single decision cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Orch.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

// newRunCmd runs the pipeline on a fixed interval with the API server up.
func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline continuously",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(cfg.API.Addr, app.Orch, app.Log)
			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			interval := time.Duration(cfg.CycleIntervalSecs) * time.Second
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			app.Log.Info().Dur("interval", interval).Msg("pipeline running")

			for {
				select {
				case <-ctx.Done():
					app.Log.Info().Msg("shutting down")
					shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return server.Shutdown(shutCtx)
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("api server: %w", err)
					}
					return nil
				case <-ticker.C:
					if _, err := app.Orch.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
						app.Log.Error().Err(err).Msg("cycle failed")
					}
				}
			}
		},
	}
}
