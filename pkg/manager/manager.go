package manager

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"medkit-service/pkg/config"
	"medkit-service/pkg/logger"
)

// Resource 外部资源（数据库、缓存、消息队列、对象存储）
type Resource interface {
	MustOpen()
	Close()
}

// ResourcePlugin 资源插件
type ResourcePlugin interface {
	Name() string
	MustCreateResource() Resource
}

// Component 后台组件（消费者、工作池）
type Component interface {
	Start() error
	Stop() error
	GetName() string
}

// ComponentPlugin 组件插件
type ComponentPlugin interface {
	Name() string
	MustCreateComponent(deps *Dependencies) Component
}

// Controller 注册 HTTP 路由
type Controller interface {
	RegisterRoutes(router gin.IRouter)
}

// ControllerPlugin 控制器插件
type ControllerPlugin interface {
	Name() string
	MustCreateController(deps *Dependencies) Controller
}

// Dependencies 依赖注入容器
type Dependencies struct {
	Config *config.Config
	// JobApp is the application service, typed loosely to avoid an import cycle.
	JobApp interface{}
	// Runner is the entry point workers call to execute one job.
	Runner interface{}
	// LocalPool is the in-process worker pool, nil when disabled.
	LocalPool interface{}
}

type registry struct {
	mu                sync.Mutex
	resourcePlugins   []ResourcePlugin
	componentPlugins  []ComponentPlugin
	controllerPlugins []ControllerPlugin
	resources         []Resource
	components        []Component
	controllers       []Controller
}

var reg = &registry{}

// RegisterResourcePlugin 注册资源插件
func RegisterResourcePlugin(p ResourcePlugin) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.resourcePlugins = append(reg.resourcePlugins, p)
}

// RegisterComponentPlugin 注册组件插件
func RegisterComponentPlugin(p ComponentPlugin) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.componentPlugins = append(reg.componentPlugins, p)
}

// RegisterControllerPlugin 注册控制器插件
func RegisterControllerPlugin(p ControllerPlugin) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.controllerPlugins = append(reg.controllerPlugins, p)
}

// MustInitResources 按注册顺序打开所有资源，失败直接 panic
func MustInitResources() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, p := range reg.resourcePlugins {
		r := p.MustCreateResource()
		r.MustOpen()
		reg.resources = append(reg.resources, r)
		logger.Infof("resource opened name=%s", p.Name())
	}
}

// CloseResources 逆序关闭资源
func CloseResources() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i := len(reg.resources) - 1; i >= 0; i-- {
		reg.resources[i].Close()
	}
	reg.resources = nil
}

// MustInitComponents 创建并启动所有组件
func MustInitComponents(deps *Dependencies) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, p := range reg.componentPlugins {
		c := p.MustCreateComponent(deps)
		if c == nil {
			continue
		}
		if err := c.Start(); err != nil {
			panic(fmt.Sprintf("failed to start component %s: %v", p.Name(), err))
		}
		reg.components = append(reg.components, c)
		logger.Infof("component started name=%s", c.GetName())
	}
}

// MustInitControllers 创建所有控制器
func MustInitControllers(deps *Dependencies) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, p := range reg.controllerPlugins {
		reg.controllers = append(reg.controllers, p.MustCreateController(deps))
	}
}

// RegisterAllRoutes 注册所有控制器路由
func RegisterAllRoutes(router gin.IRouter) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, c := range reg.controllers {
		c.RegisterRoutes(router)
	}
}

// Shutdown 逆序停止组件
func Shutdown() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for i := len(reg.components) - 1; i >= 0; i-- {
		c := reg.components[i]
		if err := c.Stop(); err != nil {
			logger.Warnf("component stop failed name=%s error=%v", c.GetName(), err)
		}
	}
	reg.components = nil
}
