package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/YudoTLE/VelonY-sub000/internal/api"
	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/config"
	"github.com/YudoTLE/VelonY-sub000/internal/database"
	"github.com/YudoTLE/VelonY-sub000/internal/generate"
	"github.com/YudoTLE/VelonY-sub000/internal/jobqueue"
	"github.com/YudoTLE/VelonY-sub000/internal/realtime"
	"github.com/YudoTLE/VelonY-sub000/internal/store"
)

// WorkerCommand returns the CLI command for running a standalone job-queue
// worker process. Chunk events from turns processed here reach only clients
// connected to this process; scaled deployments need an external realtime
// fabric behind the channel transport.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the VelonY job-queue workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-workers",
				Usage: "Concurrent agent turns",
				Value: jobqueue.DefaultConfig().MaxWorkers,
			},
		},
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
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

	hub := realtime.NewHub(cfg.Realtime.SendBuffer)
	var broadcaster realtime.Broadcaster
	if cfg.Realtime.Transport == config.TransportChannel {
		broadcaster = realtime.NewChannelBroadcaster(hub, cfg.Realtime.GrantSecret, cfg.Realtime.AllowedOrigin)
	} else {
		broadcaster = realtime.NewSocketBroadcaster(hub, tokens, cfg.Realtime.AllowedOrigin)
	}
	defer broadcaster.Cleanup()

	orchestrator := generate.NewOrchestrator(
		api.NewStoreBackend(st),
		generate.NewLangchainFactory(st.Sessions),
		broadcaster,
		generate.Options{
			FlushCapacity: cfg.Generation.FlushCapacity,
			HistoryLimit:  cfg.Generation.HistoryLimit,
			StreamRetries: cfg.Generation.StreamRetries,
		},
	)

	qcfg := jobqueue.DefaultConfig()
	if n := c.Int("max-workers"); n > 0 {
		qcfg.MaxWorkers = n
	}
	queue, err := jobqueue.New(context.Background(), dbURL, orchestrator, qcfg)
	if err != nil {
		return fmt.Errorf("failed to set up job queue: %w", err)
	}

	if err := queue.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start job queue workers: %w", err)
	}

	fmt.Printf("VelonY workers running (%d concurrent turns)...\n", qcfg.MaxWorkers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	return queue.Stop(context.Background())
}
