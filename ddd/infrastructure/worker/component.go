package worker

import (
	"fmt"

	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
	"medkit-service/pkg/task"
)

// LocalPoolComponentPlugin 负责启动本地工作池
type LocalPoolComponentPlugin struct{}

func (p *LocalPoolComponentPlugin) Name() string {
	return "localPoolComponent"
}

func (p *LocalPoolComponentPlugin) MustCreateComponent(deps *manager.Dependencies) manager.Component {
	pool, _ := deps.LocalPool.(*JobWorker)
	if pool == nil {
		return nil
	}
	return &localPoolComponent{name: "localPool", pool: pool}
}

type localPoolComponent struct {
	name string
	pool *JobWorker
}

func (c *localPoolComponent) Start() error {
	if c.pool == nil {
		return fmt.Errorf("local worker pool not initialized")
	}
	// 注册后台任务，让应用启动时统一管理
	task.Register(c.pool)
	logger.Infof("Local pool component registered background task name=%s", c.name)
	return nil
}

// Stop 背景任务由 task 管理器停止，这里只关闭队列
func (c *localPoolComponent) Stop() error {
	c.pool.queue.Close()
	logger.Infof("Local pool component stopped name=%s", c.name)
	return nil
}

func (c *localPoolComponent) GetName() string {
	return c.name
}
