package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/YudoTLE/VelonY-sub000/internal/api"
	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/config"
	"github.com/YudoTLE/VelonY-sub000/internal/database"
	"github.com/YudoTLE/VelonY-sub000/internal/jobqueue"
	"github.com/YudoTLE/VelonY-sub000/internal/logging"
	"github.com/YudoTLE/VelonY-sub000/internal/store"
)

// APICommand returns the CLI command for starting the API server.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the VelonY API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "with-workers",
				Usage: "Also run the job-queue workers in this process",
				Value: true,
			},
		},
		Action: runAPI,
	}
}

func runAPI(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port != 0 {
		cfg.Server.Port = port
	}

	dbURL, err := database.ResolveURL(cfg.Database.URL)
	if err != nil {
		return err
	}
	db, err := database.Connect(dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	tokens := auth.NewTokenService(db, cfg.Auth.JWTSecret, st.Users)

	server := api.NewServer(cfg, st, tokens, nil)

	queue, err := jobqueue.New(context.Background(), dbURL, server.Orchestrator(), jobqueue.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to set up job queue: %w", err)
	}
	server.AttachQueue(queue)

	// Running the workers in-process keeps queued turns on the same
	// broadcaster hub as the websocket connections.
	if c.Bool("with-workers") {
		if err := queue.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start job queue workers: %w", err)
		}
		defer queue.Stop(context.Background())
	}

	fmt.Printf("Starting VelonY API server on port %d...\n", cfg.Server.Port)
	return server.Start()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Server.LogLevel)
	return cfg, nil
}
