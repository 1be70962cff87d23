package app

import (
	"context"
	"fmt"
	"time"

	jobapp "medkit-service/ddd/application/app"
	"medkit-service/ddd/domain/gateway"
	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/repo"
	"medkit-service/ddd/domain/service"
	"medkit-service/ddd/infrastructure/database/persistence"
	"medkit-service/ddd/infrastructure/dispatch"
	"medkit-service/ddd/infrastructure/executor"
	"medkit-service/ddd/infrastructure/kvstore"
	"medkit-service/ddd/infrastructure/progress"
	"medkit-service/ddd/infrastructure/queue"
	"medkit-service/ddd/infrastructure/quota"
	"medkit-service/ddd/infrastructure/storage"
	"medkit-service/ddd/infrastructure/worker"
	"medkit-service/internal/resource"
	"medkit-service/pkg/config"
	"medkit-service/pkg/kafka"
	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
)

// Container 组装后的依赖
type Container struct {
	Config       *config.Config
	Store        port.KVStore
	Repo         repo.JobRepository
	Progress     *progress.Channel
	Storage      gateway.StorageGateway
	Orchestrator *service.Orchestrator
	Runner       *dispatch.ExclusiveRunner
	Pool         *worker.JobWorker
	Dispatcher   *dispatch.Dispatcher
	JobApp       jobapp.JobApp

	closers []func()
}

// Build 根据已打开的资源组装依赖, resources left disabled fall back to in-process versions.
func Build(cfg *config.Config, withPool bool) (*Container, error) {
	c := &Container{Config: cfg}

	if client := resource.DefaultRedisResource().Client(); client != nil {
		c.Store = kvstore.NewRedisStore(client)
	} else {
		mem := kvstore.NewMemoryStore(time.Minute)
		c.Store = mem
		c.closers = append(c.closers, mem.Close)
		logger.Infof("redis disabled, progress and markers kept in memory")
	}

	if db := resource.DefaultMysqlResource().MainDB(); db != nil {
		c.Repo = persistence.NewJobRepository(db)
	} else {
		c.Repo = persistence.NewMemoryJobRepository()
	}

	if client := resource.DefaultMinioResource().GetClient(); client != nil {
		c.Storage = storage.NewMinioStorage(client, resource.DefaultMinioResource().GetBucketName())
	} else {
		local, err := storage.NewLocalStorage(cfg.Minio.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		c.Storage = local
		logger.Infof("minio disabled, outputs stored under %s", cfg.Minio.LocalDir)
	}

	p := cfg.Pipeline
	c.Progress = progress.NewChannel(c.Store, p.ProgressTTL)
	ytdlp := executor.NewYtDlpExecutor(p.YtDlpBinary)
	ffmpeg := executor.NewFFmpegExecutor(p.FFmpegBinary, p.FFprobeBinary)
	c.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Repo:            c.Repo,
		Progress:        c.Progress,
		Engine:          service.NewEscalationEngine(p.BackoffBase, p.BackoffMax),
		Planner:         executor.NewPlanner(p.CookiesFromBrowser, p.HardwareAccel, p.BackoffBase*2),
		Extractor:       ytdlp,
		Prober:          ffmpeg,
		Fetcher:         ytdlp,
		Converter:       ffmpeg,
		Storage:         c.Storage,
		WorkDir:         p.TempDir,
		PersistInterval: p.ProgressPersistInterval,
		AttemptTimeout:  p.AttemptTimeout,
	})
	c.Runner = dispatch.NewExclusiveRunner(c.Orchestrator, c.Store, cfg.Worker.WorkerID, p.ActiveMarkerTTL)

	var primary, fallback port.TaskRunner
	if cfg.Kafka.Enabled && kafka.DefaultClient().Opened() {
		primary = dispatch.NewKafkaRunner(kafka.DefaultClient(), cfg.Kafka.Topics.MediaJobs)
	}
	if withPool && cfg.Worker.LocalPool {
		c.Pool = worker.NewJobWorker(worker.Options{
			ID:          cfg.Worker.WorkerID,
			Concurrency: cfg.Worker.MaxConcurrentTasks,
			StallAfter:  cfg.Worker.StallAfter,
		}, queue.NewMemoryJobQueue(cfg.Worker.QueueCapacity), c.Runner, c.Repo)
		fallback = c.Pool
	}
	c.Dispatcher = dispatch.NewDispatcher(primary, fallback, c.Store, c.Orchestrator, p.ActiveMarkerTTL)

	c.JobApp = jobapp.NewJobApp(jobapp.JobAppDeps{
		Repo:       c.Repo,
		Progress:   c.Progress,
		Quota:      quota.NewDailyGuard(c.Store, cfg.Quota.DailyLimit),
		Dispatcher: c.Dispatcher,
		Canceller:  c.Orchestrator,
		Storage:    c.Storage,
		Retention:  p.Retention,
	})
	return c, nil
}

// Dependencies 供插件使用的依赖容器
func (c *Container) Dependencies() *manager.Dependencies {
	deps := &manager.Dependencies{
		Config: c.Config,
		JobApp: c.JobApp,
		Runner: c.Runner,
	}
	if c.Pool != nil {
		deps.LocalPool = c.Pool
	}
	return deps
}

// PurgeExpired 清理过期作业与产物
func (c *Container) PurgeExpired(ctx context.Context) error {
	n, err := c.Orchestrator.PurgeExpired(ctx, time.Now(), 200)
	if n > 0 {
		logger.Infof("expired jobs purged count=%d", n)
	}
	return err
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
