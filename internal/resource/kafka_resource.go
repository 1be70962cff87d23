package resource

import (
	"os"

	"medkit-service/pkg/kafka"
	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
)

type KafkaResource struct{}

type KafkaResourcePlugin struct{}

func (p *KafkaResourcePlugin) Name() string { return "kafka" }

func (p *KafkaResourcePlugin) MustCreateResource() manager.Resource { return &KafkaResource{} }

func (r *KafkaResource) MustOpen() {
	cfg := mustConfig().Kafka
	if !cfg.Enabled {
		return
	}
	kafka.DefaultClient().Open(cfg, inDocker())
	if err := kafka.DefaultClient().EnsureTopic(cfg.Topics.MediaJobs, 3, 1); err != nil {
		// 自动建主题失败不阻塞启动, writer 仍可依赖 broker 自动创建
		logger.Warnf("ensure kafka topic failed topic=%s error=%v", cfg.Topics.MediaJobs, err)
	}
}

func (r *KafkaResource) Close() { kafka.DefaultClient().Close() }

func inDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
