package resource

import (
	"medkit-service/pkg/config"
	"medkit-service/pkg/manager"
)

func init() {
	// 注册资源插件, 未启用的资源在 MustOpen 中跳过
	manager.RegisterResourcePlugin(&MysqlResourcePlugin{})
	manager.RegisterResourcePlugin(&RedisResourcePlugin{})
	manager.RegisterResourcePlugin(&KafkaResourcePlugin{})
	manager.RegisterResourcePlugin(&MinioResourcePlugin{})
}

func mustConfig() *config.Config {
	cfg := config.GetGlobalConfig()
	if cfg == nil {
		panic("global config not initialized")
	}
	return cfg
}
