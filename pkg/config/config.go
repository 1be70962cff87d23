package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	Log             LogConfig             `mapstructure:"log"`
	Minio           MinioConfig           `mapstructure:"minio"`
	Pipeline        PipelineConfig        `mapstructure:"pipeline"`
	Worker          WorkerConfig          `mapstructure:"worker"`
	Quota           QuotaConfig           `mapstructure:"quota"`
	ServiceRegistry ServiceRegistryConfig `mapstructure:"service_registry"`
	Etcd            EtcdConfig            `mapstructure:"etcd"`
	Profiling       ProfilingConfig       `mapstructure:"profiling"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置. Driver is mysql, sqlite (Path) or memory.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Charset         string        `mapstructure:"charset"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	BootstrapServers     []string          `mapstructure:"bootstrap_servers"`
	ClientID             string            `mapstructure:"client_id"`
	GroupID              string            `mapstructure:"group_id"`
	Enabled              bool              `mapstructure:"enabled"`
	Topics               KafkaTopicsConfig `mapstructure:"topics"`
	ProduceTimeout       time.Duration     `mapstructure:"produce_timeout"`
	CommitOnDecodeError  bool              `mapstructure:"commit_on_decode_error"`
	CommitOnProcessError bool              `mapstructure:"commit_on_process_error"`
}

type KafkaTopicsConfig struct {
	MediaJobs string `mapstructure:"media_jobs"`
}

// MinioConfig MinIO配置. With Enabled=false outputs stay under LocalDir.
type MinioConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKey       string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	LocalDir        string `mapstructure:"local_dir"`
}

// PipelineConfig 媒体处理流水线配置
type PipelineConfig struct {
	TempDir                 string        `mapstructure:"temp_dir"`
	YtDlpBinary             string        `mapstructure:"ytdlp_binary"`
	FFmpegBinary            string        `mapstructure:"ffmpeg_binary"`
	FFprobeBinary           string        `mapstructure:"ffprobe_binary"`
	Retention               time.Duration `mapstructure:"retention"`
	ProgressTTL             time.Duration `mapstructure:"progress_ttl"`
	ProgressPersistInterval time.Duration `mapstructure:"progress_persist_interval"`
	BackoffBase             time.Duration `mapstructure:"backoff_base"`
	BackoffMax              time.Duration `mapstructure:"backoff_max"`
	AttemptTimeout          time.Duration `mapstructure:"attempt_timeout"`
	ActiveMarkerTTL         time.Duration `mapstructure:"active_marker_ttl"`
	CookiesFromBrowser      string        `mapstructure:"cookies_from_browser"`
	HardwareAccel           string        `mapstructure:"hardware_accel"`
	PurgeInterval           time.Duration `mapstructure:"purge_interval"`
}

// WorkerConfig Worker相关配置
type WorkerConfig struct {
	WorkerID            string        `mapstructure:"worker_id"`
	MaxConcurrentTasks  int           `mapstructure:"max_concurrent_tasks"`
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	StallAfter          time.Duration `mapstructure:"stall_after"`
	LocalPool           bool          `mapstructure:"local_pool"`
}

// QuotaConfig daily request allowance per owner. Zero disables the check.
type QuotaConfig struct {
	DailyLimit int `mapstructure:"daily_limit"`
}

// ServiceRegistryConfig registration configuration.
type ServiceRegistryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceID       string        `mapstructure:"service_id"`
	RegisterHost    string        `mapstructure:"register_host"`
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// EtcdConfig etcd 客户端配置
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// ProfilingConfig pyroscope 持续性能分析
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 设置环境变量前缀
	v.SetEnvPrefix("MEDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.normalize()

	return &config, nil
}

// Default returns a config built only from defaults, used by tests and the local mode.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	config.normalize()
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.key_prefix", "medkit:")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.client_id", "medkit-service")
	v.SetDefault("kafka.group_id", "medkit-service-group")
	v.SetDefault("kafka.bootstrap_servers", []string{"localhost:29092"})
	v.SetDefault("kafka.topics.media_jobs", "medkit.jobs")
	v.SetDefault("kafka.commit_on_decode_error", true)
	v.SetDefault("kafka.commit_on_process_error", true)
	v.SetDefault("minio.enabled", false)
	v.SetDefault("quota.daily_limit", 100)
	v.SetDefault("worker.local_pool", true)
	v.SetDefault("worker.stall_after", "15m")
	v.SetDefault("service_registry.enabled", false)
	v.SetDefault("service_registry.service_name", "medkit-worker")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
}

// normalize 补全配置的默认值
func (c *Config) normalize() {
	// 兼容不同的密钥字段
	if c.Minio.AccessKeyID == "" {
		c.Minio.AccessKeyID = c.Minio.AccessKey
	}
	if c.Minio.SecretAccessKey == "" {
		c.Minio.SecretAccessKey = c.Minio.SecretKey
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "medkit-outputs"
	}
	if c.Minio.LocalDir == "" {
		c.Minio.LocalDir = "/tmp/medkit/outputs"
	}

	if c.Worker.MaxConcurrentTasks <= 0 {
		c.Worker.MaxConcurrentTasks = 2
	}
	if c.Worker.QueueCapacity <= 0 {
		c.Worker.QueueCapacity = c.Worker.MaxConcurrentTasks * 10
	}
	if c.Worker.ShutdownGracePeriod == 0 {
		c.Worker.ShutdownGracePeriod = 10 * time.Second
	}
	if c.Worker.WorkerID == "" {
		c.Worker.WorkerID = "medkit-worker"
	}

	p := &c.Pipeline
	if p.TempDir == "" {
		p.TempDir = "/tmp/medkit"
	}
	if p.YtDlpBinary == "" {
		p.YtDlpBinary = "yt-dlp"
	}
	if p.FFmpegBinary == "" {
		p.FFmpegBinary = "ffmpeg"
	}
	if p.FFprobeBinary == "" {
		p.FFprobeBinary = "ffprobe"
	}
	if p.Retention <= 0 {
		p.Retention = 7 * 24 * time.Hour
	}
	if p.ProgressTTL <= 0 {
		p.ProgressTTL = 5 * time.Minute
	}
	if p.ProgressPersistInterval <= 0 {
		p.ProgressPersistInterval = 2 * time.Second
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 2 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 30 * time.Second
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = time.Hour
	}
	if p.ActiveMarkerTTL <= 0 {
		p.ActiveMarkerTTL = 2 * time.Hour
	}
	if p.PurgeInterval <= 0 {
		p.PurgeInterval = time.Hour
	}

	if c.ServiceRegistry.TTL == 0 {
		c.ServiceRegistry.TTL = 30 * time.Second
	}
	if c.ServiceRegistry.RefreshInterval == 0 {
		c.ServiceRegistry.RefreshInterval = 10 * time.Second
	}
	if c.ServiceRegistry.ServiceID == "" {
		c.ServiceRegistry.ServiceID = c.Worker.WorkerID
	}
	if len(c.Etcd.Endpoints) == 0 {
		c.Etcd.Endpoints = []string{"localhost:2379"}
	}
	if c.Etcd.DialTimeout <= 0 {
		c.Etcd.DialTimeout = 5 * time.Second
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		c.Kafka.BootstrapServers = []string{"localhost:29092"}
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "medkit-service"
	}
	if c.Kafka.Topics.MediaJobs == "" {
		c.Kafka.Topics.MediaJobs = "medkit.jobs"
	}
	if c.Kafka.ProduceTimeout <= 0 {
		c.Kafka.ProduceTimeout = 5 * time.Second
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8083
	}
}

// GetDSN 获取数据库连接字符串. clientFoundRows makes conditional updates report matched rows.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&clientFoundRows=true",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// GetRedisAddr 获取Redis地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// SetGlobalConfig 设置全局配置
func SetGlobalConfig(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// GetGlobalConfig 获取全局配置
func GetGlobalConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}
