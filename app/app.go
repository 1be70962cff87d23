package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medkit-service/ddd/adapter/component"
	httpadapter "medkit-service/ddd/adapter/http"
	"medkit-service/ddd/infrastructure/worker"
	"medkit-service/pkg/config"
	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
	"medkit-service/pkg/observability"
	"medkit-service/pkg/registry"
	"medkit-service/pkg/task"

	// 导入资源包以触发init函数
	_ "medkit-service/internal/resource"
)

const serviceName = "medkit-service"

// Run 启动 API 服务, with the local pool as the fallback execution path.
func Run() {
	fmt.Println("[STARTUP] Starting medkit service...")
	cfg, logService := bootstrap()
	stopProfiling := observability.StartProfiling(serviceName, cfg.Profiling)

	manager.MustInitResources()
	container, err := Build(cfg, true)
	if err != nil {
		logger.Fatal(fmt.Sprintf("Failed to build dependencies error=%v", err))
	}
	checkBinaries(cfg)

	manager.RegisterComponentPlugin(&worker.LocalPoolComponentPlugin{})
	deps := container.Dependencies()
	manager.MustInitComponents(deps)
	manager.MustInitControllers(deps)

	task.Register(task.NewPeriodic("expiryPurge", cfg.Pipeline.PurgeInterval, container.PurgeExpired))
	ctx, cancel := context.WithCancel(context.Background())
	if err := task.StartAll(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("Failed to start background tasks error=%v", err))
	}

	router := httpadapter.NewEngine(cfg.Server.Mode)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(fmt.Sprintf("Failed to start HTTP server error=%v", err))
		}
	}()
	logger.Infof("HTTP server started addr=%s service=%s health_url=http://localhost:%d/health",
		server.Addr, serviceName, cfg.Server.Port)

	waitSignal()
	logger.Infof("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to close error=%v", err)
	}
	teardown(cancel, container)
	stopProfiling()

	logger.Infof("Server exited safely")
	logService.Close()
}

// RunWorker 启动 Kafka 消费端, running jobs queued by API instances.
func RunWorker() {
	fmt.Println("[STARTUP] Starting medkit worker...")
	cfg, logService := bootstrap()
	stopProfiling := observability.StartProfiling(serviceName+"-worker", cfg.Profiling)

	if !cfg.Kafka.Enabled {
		logger.Fatal("worker mode requires kafka.enabled=true")
	}
	manager.MustInitResources()
	container, err := Build(cfg, false)
	if err != nil {
		logger.Fatal(fmt.Sprintf("Failed to build dependencies error=%v", err))
	}
	checkBinaries(cfg)

	manager.RegisterComponentPlugin(&component.JobConsumerPlugin{})
	manager.MustInitComponents(container.Dependencies())

	if cfg.ServiceRegistry.Enabled {
		reg, err := registry.NewServiceRegistry(cfg.Etcd, cfg.ServiceRegistry, registry.Instance{
			ID:        cfg.ServiceRegistry.ServiceID,
			Address:   cfg.ServiceRegistry.RegisterHost,
			Slots:     cfg.Worker.MaxConcurrentTasks,
			StartedAt: time.Now(),
		})
		if err != nil {
			logger.Fatal(fmt.Sprintf("Failed to create service registry error=%v", err))
		}
		task.Register(reg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := task.StartAll(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("Failed to start background tasks error=%v", err))
	}
	logger.Infof("Worker started id=%s slots=%d topic=%s",
		cfg.Worker.WorkerID, cfg.Worker.MaxConcurrentTasks, cfg.Kafka.Topics.MediaJobs)

	waitSignal()
	logger.Infof("Received shutdown signal, stopping worker...")
	teardown(cancel, container)
	stopProfiling()

	logger.Infof("Worker exited safely")
	logService.Close()
}

func bootstrap() (*config.Config, *logger.Logger) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[ERROR] Failed to load config (%s): %v\n", cfgPath, err)
		os.Exit(1)
	}
	// 设置全局配置（必须在资源管理器初始化之前）
	config.SetGlobalConfig(cfg)

	logService := logger.NewLogger(cfg)
	logger.SetGlobalLogger(logService)
	logger.Debug("Logger initialized", map[string]interface{}{
		"level":  cfg.Log.Level,
		"format": cfg.Log.Format,
		"output": cfg.Log.Output,
		"config": cfgPath,
	})
	return cfg, logService
}

// 后台任务先停, 再停组件（关闭队列）, 最后释放资源
func teardown(cancel context.CancelFunc, container *Container) {
	task.StopAll()
	cancel()
	manager.Shutdown()
	container.Close()
	manager.CloseResources()
}

// checkBinaries 启动阶段检查外部工具, missing tools only fail the jobs that need them.
func checkBinaries(cfg *config.Config) {
	for _, bin := range []string{cfg.Pipeline.YtDlpBinary, cfg.Pipeline.FFmpegBinary, cfg.Pipeline.FFprobeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warnf("binary not found binary=%s error=%v", bin, err)
		}
	}
}

func waitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

// resolveConfigPath 根据环境选择配置文件，支持CONFIG_PATH覆盖、CONFIG_ENV区分环境
func resolveConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	env := strings.ToLower(strings.TrimSpace(os.Getenv("CONFIG_ENV")))
	if env == "" {
		env = "dev"
	}

	switch env {
	case "prod", "production":
		return "configs/config_prod.yaml"
	case "dev", "development":
		return "configs/config.dev.yaml"
	default:
		return fmt.Sprintf("configs/config.%s.yaml", env)
	}
}
