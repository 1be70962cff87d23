package resource

import (
	"fmt"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"medkit-service/ddd/infrastructure/database/persistence"
	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
)

var (
	mysqlResourceOnce sync.Once
	mysqlSingleton    *MysqlResource
)

// MysqlResource 作业库连接. The driver "memory" leaves MainDB nil.
type MysqlResource struct {
	db *gorm.DB
}

func DefaultMysqlResource() *MysqlResource {
	mysqlResourceOnce.Do(func() {
		mysqlSingleton = &MysqlResource{}
	})
	return mysqlSingleton
}

func (r *MysqlResource) MustOpen() {
	if r.db != nil {
		return
	}
	cfg := mustConfig().Database

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.GetDSN())
	case "sqlite":
		if cfg.Path == "" {
			panic("database path is required for sqlite")
		}
		dialector = sqlite.Open(cfg.Path)
	default:
		logger.Infof("database driver=%s, job records kept in memory", cfg.Driver)
		return
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get sql db: %v", err))
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.AutoMigrate || cfg.Driver == "sqlite" {
		if err := persistence.AutoMigrate(db); err != nil {
			panic(fmt.Sprintf("failed to migrate database: %v", err))
		}
	}
	r.db = db
	logger.Info("Database resource initialized", map[string]interface{}{
		"driver": cfg.Driver,
	})
}

// MainDB 返回主库连接, nil when records are kept in memory.
func (r *MysqlResource) MainDB() *gorm.DB {
	return r.db
}

func (r *MysqlResource) Close() {
	if r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

type MysqlResourcePlugin struct{}

func (p *MysqlResourcePlugin) Name() string { return "mysql" }

func (p *MysqlResourcePlugin) MustCreateResource() manager.Resource {
	return DefaultMysqlResource()
}
