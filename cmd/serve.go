package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/diffsentry/internal/api"
	"github.com/diffsentry/internal/config"
	"github.com/diffsentry/internal/engine"
	"github.com/diffsentry/internal/hostauth"
	"github.com/diffsentry/internal/hostclient"
	"github.com/diffsentry/internal/jobqueue"
	"github.com/diffsentry/internal/prompts"
	"github.com/diffsentry/internal/review"
	"github.com/diffsentry/internal/store"
)

// ServeCommand returns the command that runs the webhook server and the
// review workers in one process.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook server and review workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured listen port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if port := c.Int("port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Bootstrap(ctx); err != nil {
		return err
	}

	signer, err := hostauth.NewAppSignerFromFile(cfg.Host.AppID, cfg.Host.PrivateKeyPath)
	if err != nil {
		return err
	}
	tokens := hostauth.NewTokenCache(hostauth.NewGitHubExchanger(signer, cfg.Host.BaseURL), logger)

	model, err := engine.NewModel(ctx, engine.ModelOptions{
		Provider:  cfg.AI.Provider,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		BaseURL:   cfg.AI.BaseURL,
		MaxTokens: cfg.AI.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model provider: %w", err)
	}

	eng := engine.New(model, nil, engine.Options{
		CallDelay:   cfg.Review.CallDelay,
		CallTimeout: cfg.Review.CallTimeout,
	}, logger)

	clients := func(ctx context.Context, token string) (hostclient.Client, error) {
		return hostclient.NewForToken(ctx, token, cfg.Host.BaseURL, logger)
	}

	svc := review.NewService(tokens, clients, st, prompts.NewBuilder(cfg.Review.MaxUnitTokens), eng, logger)

	queueCfg := &jobqueue.QueueConfig{
		MaxWorkers:    cfg.Review.MaxWorkers,
		JobsPerMinute: cfg.Review.JobsPerMinute,
	}
	queueCfg.Normalize()

	queue, err := jobqueue.NewJobQueue(pool, queueCfg, svc, logger)
	if err != nil {
		return err
	}

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			logger.Warn().Err(err).Msg("Job queue did not stop cleanly")
		}
	}()

	logger.Info().
		Int("port", cfg.Server.Port).
		Int("workers", queueCfg.MaxWorkers).
		Str("provider", cfg.AI.Provider).
		Msg("Starting DiffSentry")

	server := api.NewServer(cfg.Server.Host, cfg.Server.Port, cfg.Host.WebhookSecret, queue, st, logger)
	return server.Start()
}
