package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// UDPConfig 协议 UDP 端点配置
type UDPConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	Port       int    `mapstructure:"port"`
	// HostAddr 为空时取第一个可用的 IPv4 接口地址
	HostAddr string `mapstructure:"hostAddr"`
	// BroadcastAddr 为空时由主机地址与子网前缀推导
	BroadcastAddr      string        `mapstructure:"broadcastAddr"`
	ReadBufferSize     int           `mapstructure:"readBufferSize"`
	NetWatchInterval   time.Duration `mapstructure:"netWatchInterval"`
	MaxDatagramsPerSec int           `mapstructure:"maxDatagramsPerSec"`
}

// DeviceConfig 设备状态机参数
type DeviceConfig struct {
	DelayedSendInterval time.Duration `mapstructure:"delayedSendInterval"`
	RefreshThrottle     time.Duration `mapstructure:"refreshThrottle"`
	RefreshPeriod       time.Duration `mapstructure:"refreshPeriod"`
}

// DeviceEntry 配置文件中声明的设备
type DeviceEntry struct {
	Serial uint32 `mapstructure:"serial" yaml:"serial"`
	Kind   string `mapstructure:"kind" yaml:"kind"`
	Name   string `mapstructure:"name" yaml:"name"`
}

// InventoryConfig 设备清单文件
type InventoryConfig struct {
	Path string `mapstructure:"path"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig 事件发布使用的 Redis
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Channel      string        `mapstructure:"channel"`
}

// MQTTConfig MQTT 能力桥接
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"clientId"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	TopicPrefix    string        `mapstructure:"topicPrefix"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// APIAuthConfig API 鉴权
type APIAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig HTTP 能力接口
type APIConfig struct {
	Auth APIAuthConfig `mapstructure:"auth"`
}

// EventsConfig 事件总线
type EventsConfig struct {
	QueueSize int `mapstructure:"queueSize"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	UDP       UDPConfig       `mapstructure:"udp"`
	Device    DeviceConfig    `mapstructure:"device"`
	Devices   []DeviceEntry   `mapstructure:"devices"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	API       APIConfig       `mapstructure:"api"`
	Events    EventsConfig    `mapstructure:"events"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 DSG_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 DSG_，并将点号替换为下划线
	v.SetEnvPrefix("DSG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 基本取值检查
func (c *Config) Validate() error {
	if c.UDP.Port <= 0 || c.UDP.Port > 65535 {
		return fmt.Errorf("invalid udp.port %d", c.UDP.Port)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.apiKeys is required when auth is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dreamscreen-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("udp.listenAddr", "0.0.0.0:8888")
	v.SetDefault("udp.port", 8888)
	v.SetDefault("udp.hostAddr", "")
	v.SetDefault("udp.broadcastAddr", "")
	v.SetDefault("udp.readBufferSize", 256)
	v.SetDefault("udp.netWatchInterval", "30s")
	v.SetDefault("udp.maxDatagramsPerSec", 0)

	v.SetDefault("device.delayedSendInterval", "10ms")
	v.SetDefault("device.refreshThrottle", "1s")
	v.SetDefault("device.refreshPeriod", "0s")

	v.SetDefault("inventory.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/dreamscreen-gateway.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.channel", "dreamscreen:events")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientId", "dreamscreen-gateway")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topicPrefix", "dreamscreen")
	v.SetDefault("mqtt.connectTimeout", "10s")

	v.SetDefault("api.auth.enabled", false)

	v.SetDefault("events.queueSize", 1024)
}
