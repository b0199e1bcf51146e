package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kvistad/parley/internal/config"
	"github.com/kvistad/parley/internal/db"
	"github.com/kvistad/parley/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Parley broker",
		Long: `Runs the broker: the login and chat REST endpoints, the websocket
messaging channel, and the nightly retention sweep. Blocks until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	// Secrets may live in a .env file next to the config.
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	agent, err := db.SeedAgent(gdb, cfg.Agent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent account %q ready (id %d)\n", agent.Username, agent.ID)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, server.Opts{
		DB:        gdb,
		Addr:      cfg.Addr(),
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.TokenTTL(),
		Retention: cfg.Retention(),
		Out:       out,
	})
}
