package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nukevideo/nukevideo/internal/balancer"
	"github.com/nukevideo/nukevideo/internal/catalog"
	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/database"
	"github.com/nukevideo/nukevideo/internal/ffmpeg"
	internalhttp "github.com/nukevideo/nukevideo/internal/http"
	"github.com/nukevideo/nukevideo/internal/http/handlers"
	"github.com/nukevideo/nukevideo/internal/observability"
	"github.com/nukevideo/nukevideo/internal/planner"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/nukevideo/nukevideo/internal/service"
	"github.com/nukevideo/nukevideo/internal/service/progress"
	"github.com/nukevideo/nukevideo/internal/storage"
	"github.com/nukevideo/nukevideo/internal/version"
	"github.com/nukevideo/nukevideo/internal/worker"
	"github.com/nukevideo/nukevideo/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nukevideo server",
	Long: `Start the nukevideo server.

The server provides:
- the storage webhook that turns finished uploads into transcoding plans
- the workflow runner that executes queued media jobs on this node
- media item management endpoints and a health check`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "nukevideo.db", "Database DSN")
	serveCmd.Flags().String("work-dir", "/var/lib/nukevideo/work", "Local working directory")
	serveCmd.Flags().String("node-name", "", "Worker node name for self-registration")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.work_dir", serveCmd.Flags().Lookup("work-dir"))
	mustBindPFlag("node.name", serveCmd.Flags().Lookup("node-name"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories
	itemRepo := repository.NewMediaItemRepository(db.DB)
	streamRepo := repository.NewStreamRepository(db.DB)
	templateRepo := repository.NewTemplateRepository(db.DB)
	nodeRepo := repository.NewNodeRepository(db.DB)
	jobRepo := repository.NewJobRepository(db.DB)

	// Storage
	store, err := storage.NewS3Store(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing object storage: %w", err)
	}
	work, err := storage.NewWorkDir(cfg.Storage.WorkDir)
	if err != nil {
		return fmt.Errorf("initializing work directory: %w", err)
	}

	// FFmpeg tooling
	cat, err := catalog.Load(cfg.FFmpeg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading parameter catalog: %w", err)
	}
	ffmpegPath, err := ffmpeg.ResolveBinary(cfg.FFmpeg.BinaryPath, "ffmpeg")
	if err != nil {
		return fmt.Errorf("resolving ffmpeg: %w", err)
	}
	probePath, err := ffmpeg.ResolveBinary(cfg.FFmpeg.ProbePath, "ffprobe")
	if err != nil {
		return fmt.Errorf("resolving ffprobe: %w", err)
	}
	prober := ffmpeg.NewProber(probePath).WithTimeout(cfg.FFmpeg.ProbeTimeout)
	runner := ffmpeg.NewRunner(ffmpegPath).
		WithTimeout(cfg.FFmpeg.TranscodeTimeout).
		WithLogger(logger)

	// Planning
	bal := balancer.New(nodeRepo).WithLogger(logger)
	plan := planner.New(db, templateRepo, bal, prober, store, cfg.Ingestion).
		WithLogger(logger).
		WithProbeTTL(cfg.Storage.ProbeURLTTL)

	// Processing
	broker := progress.NewBroker()
	statusService := service.NewStatusService(itemRepo, streamRepo).WithLogger(logger)
	streamWorker := worker.NewStreamWorker(streamRepo, store, work, runner, prober, cat).
		WithLogger(logger).
		WithProgressPublisher(broker).
		WithStatusRefresher(statusService)
	executor := workflow.NewExecutor(itemRepo, streamRepo, store, work, streamWorker, statusService, cfg.Workflow).
		WithLogger(logger)

	nodeName := cfg.Node.Name
	if nodeName == "" {
		nodeName, _ = os.Hostname()
	}
	wfRunner := workflow.NewRunner(jobRepo, executor, cfg.Workflow, nodeName).WithLogger(logger)

	// Services
	nodeService := service.NewNodeService(nodeRepo, cfg.Node).WithLogger(logger)
	mediaService := service.NewMediaService(itemRepo, streamRepo, store).WithLogger(logger)

	var vodService *service.VodService
	if cfg.Vod.TokenSecret != "" {
		vodService, err = service.NewVodService(cfg.Vod)
		if err != nil {
			return fmt.Errorf("initializing vod signing: %w", err)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Background work: job runner, node heartbeat, scheduled maintenance.
	if err := wfRunner.Start(ctx); err != nil {
		return fmt.Errorf("starting workflow runner: %w", err)
	}
	defer wfRunner.Stop()

	if cfg.Node.Name != "" {
		if err := nodeService.Start(ctx); err != nil {
			return fmt.Errorf("starting node service: %w", err)
		}
		defer nodeService.Stop()
	} else {
		logger.Warn("node name not configured, skipping self-registration")
	}

	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(cfg.Node.SweepSchedule, func() {
		if err := nodeService.SweepStale(ctx); err != nil {
			logger.Error("node sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduling node sweep: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Workflow.CleanupSchedule, func() {
		if err := wfRunner.CleanupFinished(ctx); err != nil {
			logger.Error("job cleanup failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduling job cleanup: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	server := internalhttp.NewServer(cfg.Server, logger)

	webhookHandler := handlers.NewWebhookHandler(plan, store, cfg.Storage, cfg.Ingestion).WithLogger(logger)
	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db)
	server.RegisterRoutes(webhookHandler, healthHandler)

	mediaHandler := handlers.NewMediaHandler(mediaService, vodService).WithLogger(logger)
	mediaHandler.Register(server.Router())

	logger.Info("starting nukevideo server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("node", nodeName),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}
