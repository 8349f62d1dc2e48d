// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderflow/internal/pkg/logger"
)

// Config 是所有服务共享的配置结构，从 YAML 文件加载，环境变量优先。
type Config struct {
	Infra InfraConfig `yaml:"infra"`
	App   AppConfig   `yaml:"app"`
}

type InfraConfig struct {
	Kafka  KafkaConfig  `yaml:"kafka"`
	Redis  RedisConfig  `yaml:"redis"`
	Jaeger JaegerConfig `yaml:"jaeger"`
	Mysql  MysqlConfig  `yaml:"mysql"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type MysqlConfig struct {
	DSN string `yaml:"dsn"`
}

type AppConfig struct {
	// Storage 选择订单仓储实现: "memory"（默认）或 "mysql"
	Storage string `yaml:"storage"`
	// PrettyLog 本地开发时输出彩色日志
	PrettyLog bool `yaml:"prettyLog"`
	// Breakers 按受保护操作名配置熔断参数
	Breakers map[string]BreakerConfig `yaml:"breakers"`
	// Gateway 模拟网关的行为参数
	Gateway GatewayConfig `yaml:"gateway"`
}

type BreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	RecoveryTimeout  Duration `yaml:"recoveryTimeout"`
	CallTimeout      Duration `yaml:"callTimeout"`
}

type GatewayConfig struct {
	// FailureRate 取值 [0,1)，模拟后端随机失败的概率
	FailureRate float64  `yaml:"failureRate"`
	Latency     Duration `yaml:"latency"`
}

// Duration 包装 time.Duration，支持 YAML 里 "30s" 这样的写法。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

var currentConfig = defaultConfig()

// GetCurrentConfig 返回进程级配置。必须先调用 Init。
func GetCurrentConfig() *Config {
	return currentConfig
}

// Init 加载配置。查找顺序: CONFIG_PATH 环境变量 -> ./config.yaml -> 内置默认值。
// 基础设施地址允许用环境变量覆盖，便于容器化部署。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Logger.Fatal().Err(err).Str("path", path).Msg("invalid config file")
		}
		logger.Logger.Info().Str("path", path).Msg("config loaded")
	}

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("ORDER_STORAGE"); ok {
		cfg.App.Storage = v
	}

	currentConfig = cfg
}

func defaultConfig() *Config {
	return &Config{
		Infra: InfraConfig{
			Kafka:  KafkaConfig{Brokers: []string{"localhost:9092"}},
			Redis:  RedisConfig{Addrs: "localhost:6379"},
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
		},
		App: AppConfig{
			Storage: "memory",
			Breakers: map[string]BreakerConfig{
				"create-payment": {FailureThreshold: 5, RecoveryTimeout: Duration(30 * time.Second), CallTimeout: Duration(5 * time.Second)},
				"get-status":     {FailureThreshold: 5, RecoveryTimeout: Duration(15 * time.Second), CallTimeout: Duration(3 * time.Second)},
				"refund":         {FailureThreshold: 3, RecoveryTimeout: Duration(30 * time.Second), CallTimeout: Duration(5 * time.Second)},
			},
			Gateway: GatewayConfig{FailureRate: 0.1, Latency: Duration(200 * time.Millisecond)},
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
