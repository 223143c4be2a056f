// Package jobqueue runs agent turns asynchronously on a River-backed job
// queue. A turn enqueued here delivers its output exclusively through the
// broadcaster events; the enqueuing request returns before generation
// starts.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/generate"
	"github.com/YudoTLE/VelonY-sub000/internal/logging"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

var log = logging.Component("jobqueue")

// TurnRunner is the orchestration surface the worker drives.
type TurnRunner interface {
	RunAgentTurn(ctx context.Context, in generate.TurnInput) (*models.Message, error)
}

// AgentTurnJobArgs identifies one queued agent turn.
type AgentTurnJobArgs struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	ModelID        string `json:"model_id"`
	CallerID       string `json:"caller_id"`
}

// Kind returns the job kind for River.
func (AgentTurnJobArgs) Kind() string { return "agent_turn" }

// AgentTurnWorker processes queued agent turns.
type AgentTurnWorker struct {
	river.WorkerDefaults[AgentTurnJobArgs]
	runner  TurnRunner
	timeout time.Duration
}

// Work runs one agent turn end to end. Reference errors cancel the job
// outright; transient failures are left to River's retry schedule.
func (w *AgentTurnWorker) Work(ctx context.Context, job *river.Job[AgentTurnJobArgs]) error {
	args := job.Args

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	log.Info().
		Str("conversation_id", args.ConversationID).
		Str("agent_id", args.AgentID).
		Int64("job_id", job.ID).
		Msg("processing queued agent turn")

	_, err := w.runner.RunAgentTurn(ctx, generate.TurnInput{
		ConversationID: args.ConversationID,
		AgentID:        args.AgentID,
		ModelID:        args.ModelID,
		CallerID:       args.CallerID,
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindInvalid, apperr.KindUnauthenticated:
			log.Warn().Err(err).Int64("job_id", job.ID).Msg("cancelling unprocessable agent turn")
			return river.JobCancel(err)
		}
		log.Error().Err(err).Int64("job_id", job.ID).Msg("agent turn failed")
		return err
	}

	return nil
}

// Config holds the tunable parameters of the queue.
type Config struct {
	MaxWorkers int
	JobTimeout time.Duration
	MaxRetries int
}

// DefaultConfig returns the queue defaults. A single worker process keeps
// per-publisher event order for each turn; raise MaxWorkers to run turns
// for different conversations concurrently.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 4,
		JobTimeout: 5 * time.Minute,
		MaxRetries: 3,
	}
}

// JobQueue manages the River client and its worker pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// New connects the queue to Postgres and registers the agent turn worker.
func New(ctx context.Context, databaseURL string, runner TurnRunner, cfg Config) (*JobQueue, error) {
	if cfg.MaxWorkers <= 0 {
		cfg = DefaultConfig()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &AgentTurnWorker{runner: runner, timeout: cfg.JobTimeout})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:     workers,
		MaxAttempts: cfg.MaxRetries + 1,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool}, nil
}

// Start begins processing queued jobs.
func (q *JobQueue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop drains the workers and closes the pool.
func (q *JobQueue) Stop(ctx context.Context) error {
	err := q.client.Stop(ctx)
	q.pool.Close()
	return err
}

// EnqueueAgentTurn queues one agent turn for background processing.
func (q *JobQueue) EnqueueAgentTurn(ctx context.Context, in generate.TurnInput) error {
	_, err := q.client.Insert(ctx, AgentTurnJobArgs{
		ConversationID: in.ConversationID,
		AgentID:        in.AgentID,
		ModelID:        in.ModelID,
		CallerID:       in.CallerID,
	}, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to queue agent turn", err)
	}
	return nil
}
