package observability

import (
	"os"

	"github.com/grafana/pyroscope-go"

	"medkit-service/pkg/config"
	"medkit-service/pkg/logger"
)

// StartProfiling 启动 pyroscope 持续性能分析, PYROSCOPE_SERVER_ADDRESS overrides the config.
// The returned stop function is always safe to call.
func StartProfiling(appName string, cfg config.ProfilingConfig) func() {
	addr := cfg.ServerAddress
	if env := os.Getenv("PYROSCOPE_SERVER_ADDRESS"); env != "" {
		addr = env
	}
	if !cfg.Enabled && os.Getenv("PYROSCOPE_SERVER_ADDRESS") == "" {
		return func() {}
	}
	if addr == "" {
		logger.Warnf("profiling enabled without server address, skipped")
		return func() {}
	}

	hostname, _ := os.Hostname()
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   addr,
		Tags:            map[string]string{"hostname": hostname},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		logger.Warnf("start pyroscope failed address=%s error=%v", addr, err)
		return func() {}
	}
	logger.Infof("pyroscope profiling started app=%s address=%s", appName, addr)
	return func() { _ = profiler.Stop() }
}
