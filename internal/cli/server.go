package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/capture"
	"moodquiz-service/internal/config"
	"moodquiz-service/internal/infra/gcs"
	"moodquiz-service/internal/infra/memory"
	"moodquiz-service/internal/infra/postgres"
	redisinfra "moodquiz-service/internal/infra/redis"
	"moodquiz-service/internal/llm"
	"moodquiz-service/internal/pkg/logger"
	transport "moodquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends groups the storage adapters chosen from config. Postgres replaces
// the in-memory store, Redis fronts quiz reads and holds the leaderboard and
// capture markers, GCS takes emotion summaries.
type backends struct {
	documents   app.DocumentRepository
	writer      app.QuizWriter
	attempts    app.AttemptRepository
	profiles    app.ProfileRepository
	summaries   app.SummaryStore
	leaderboard app.Leaderboard
	registry    app.CaptureRegistry
	quizzes     app.QuizRepository

	keepAlive func(ctx context.Context) error
	closers   []func() error
}

func (b *backends) close(log *logger.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("close backend", "error", err)
		}
	}
}

func openBackends(ctx context.Context, cfg config.Config, log *logger.Logger) (*backends, error) {
	b := &backends{}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var loader memory.QuizLoader
	var pgStore *postgres.Store
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		b.closers = append(b.closers, db.Close)
		pool, err := postgres.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })

		pgStore = postgres.NewStore(db)
		loader = postgres.NewQuizLoader(pool)
		b.documents, b.writer, b.attempts, b.profiles = pgStore, pgStore, pgStore, pgStore
		b.summaries, b.leaderboard = pgStore, pgStore
	} else {
		store := memory.NewStore()
		loader = store
		b.documents, b.writer, b.attempts, b.profiles = store, store, store, store
		b.summaries, b.leaderboard = memory.NewSummaryStore(), memory.NewLeaderboard()
		log.Warn("postgres not configured, using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			b.close(log)
			return nil, err
		}
		b.quizzes = redisinfra.NewQuizRepository(client, loader, quizTTL, log)
		b.leaderboard = redisinfra.NewLeaderboard(client)

		instance, _ := os.Hostname()
		registry := redisinfra.NewCaptureRegistry(client, config.TTLDuration(cfg.Capture.LivenessTTL, time.Minute), instance, log)
		b.registry, b.keepAlive = registry, registry.KeepAlive
	} else {
		b.quizzes = memory.NewQuizRepository(loader, quizTTL)
		b.registry = memory.NewCaptureRegistry()
	}

	if cfg.Storage.Bucket != "" {
		summaries, err := gcs.NewSummaryStore(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, log)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.closers = append(b.closers, summaries.Close)
		b.summaries = summaries
	}
	return b, nil
}

// captureStack is the frame feed plus the factory that samples it.
type captureStack struct {
	feed    *capture.FeedDevice
	factory app.CaptureFactory
	close   func() error
}

func openCapture(ctx context.Context, cfg config.Config, log *logger.Logger) (*captureStack, error) {
	if !cfg.Capture.Enabled {
		return nil, nil
	}
	classifier, err := capture.NewVisionClassifier(ctx, log)
	if err != nil {
		return nil, err
	}
	feed := capture.NewFeedDevice(config.TTLDuration(cfg.Capture.FrameStale, 2*time.Second))
	factory := capture.NewFactory(capture.NewCamera(feed), classifier, capture.Options{
		Interval:    config.TTLDuration(cfg.Capture.Interval, capture.DefaultInterval),
		MaxDuration: config.TTLDuration(cfg.Capture.MaxDuration, 30*time.Minute),
	}, log)
	return &captureStack{
		feed: feed,
		factory: app.CaptureFactoryFunc(func(attemptID, userID string) app.CaptureSession {
			return factory.NewSession(attemptID, userID)
		}),
		close: classifier.Close,
	}, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	llmCfg := cfg.ToLLM()
	provider, err := llm.NewProvider(ctx, llmCfg, log)
	if err != nil {
		return err
	}

	cs, err := openCapture(ctx, cfg, log)
	if err != nil {
		return err
	}
	var captureFactory app.CaptureFactory
	if cs != nil {
		defer cs.close()
		captureFactory = cs.factory
	}

	quizService := app.NewQuizService(b.documents, b.writer, b.quizzes, provider, generationOptions(llmCfg), log)
	attemptService := app.NewAttemptService(app.AttemptDeps{
		Quizzes:     b.quizzes,
		Attempts:    b.attempts,
		Profiles:    b.profiles,
		Summaries:   b.summaries,
		Leaderboard: b.leaderboard,
		Capture:     captureFactory,
		Registry:    b.registry,
		Log:         log,
	})
	attemptService.SetLocation(loc)

	mux := http.NewServeMux()
	transport.NewHandler(quizService, attemptService, log).Register(mux)
	if cs != nil {
		mux.HandleFunc("GET /ws/frames", transport.NewFrameHandler(cs.feed, log).ServeWS)
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting quiz service", "port", finalPort, "provider", llmCfg.Provider, "capture", cs != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if b.keepAlive != nil {
		g.Go(func() error { return b.keepAlive(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		attemptService.Close()
		return err
	})
	return g.Wait()
}
