// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"inventory-core/internal/pkg/database"
	"inventory-core/internal/pkg/eventbus"
	"inventory-core/internal/pkg/retry"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "configs/inventory-service.yaml"

type Config struct {
	App         AppConfig         `yaml:"app"`
	Infra       InfraConfig       `yaml:"infra"`
	Dispatcher  eventbus.Config   `yaml:"dispatcher"`
	Sync        retry.Policy      `yaml:"sync"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	LowStock    LowStockConfig    `yaml:"lowStock"`
	Order       OrderConfig       `yaml:"order"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	HTTPPort        int           `yaml:"httpPort"`
	LogLevel        string        `yaml:"logLevel"`
	LogPretty       bool          `yaml:"logPretty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

// SQLiteConfig 没有配置 MySQL 时，Path 非空就用单文件数据库。
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig DSN 和 SQLite 路径都为空时使用内存仓储。
type MySQLConfig struct {
	DSN  string              `yaml:"dsn"`
	Pool database.PoolConfig `yaml:"pool"`
}

// RedisConfig Addrs 为空时使用进程内幂等表。
type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

// KafkaConfig Brokers 为空时不启动任何 Kafka 组件。
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	PlacementTopic string   `yaml:"placementTopic"`
	PlacementGroup string   `yaml:"placementGroup"`
	EventsTopic    string   `yaml:"eventsTopic"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZooKeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type RecoveryConfig struct {
	Interval     time.Duration `yaml:"interval"`
	BatchSize    int           `yaml:"batchSize"`
	Concurrency  int           `yaml:"concurrency"`
	LockResource string        `yaml:"lockResource"`
}

type IdempotencyConfig struct {
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

type LowStockConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Expression string `yaml:"expression"`
}

type OrderConfig struct {
	// ProcessingTimeout 限制一次下单 Saga 的总耗时，补偿不受它约束
	ProcessingTimeout time.Duration `yaml:"processingTimeout"`
	// VersionRetry 取消/改状态遇到并发修改时的重试
	VersionRetry retry.Policy `yaml:"versionRetry"`
}

// DefaultConfig 没有任何外部依赖，全部走内存实现。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "inventory-service",
			HTTPPort:        8080,
			LogLevel:        "info",
			ShutdownTimeout: 15 * time.Second,
		},
		Infra: InfraConfig{
			Kafka: KafkaConfig{
				PlacementTopic: "order-placement-topic",
				PlacementGroup: "inventory-order-placement-group",
				EventsTopic:    "inventory-events",
			},
			ZooKeeper: ZooKeeperConfig{SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
		},
		Dispatcher: eventbus.DefaultConfig(),
		Sync:       retry.DefaultPolicy(),
		Recovery: RecoveryConfig{
			Interval:     time.Minute,
			BatchSize:    500,
			Concurrency:  4,
			LockResource: "inventory-recovery-sweep",
		},
		Idempotency: IdempotencyConfig{Prefix: "inventory:idem", TTL: 7 * 24 * time.Hour},
		LowStock: LowStockConfig{
			Enabled:    true,
			Expression: "track_stock && quantity <= low_stock_threshold",
		},
		Order: OrderConfig{
			ProcessingTimeout: 5 * time.Second,
			VersionRetry:      retry.DefaultPolicy(),
		},
	}
}

// LoadConfig 读取 YAML（文件不存在时用默认值），再用环境变量覆盖基础设施地址。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = getEnv("CONFIG_FILE", DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Infra.MySQL.DSN != "" {
		dsn, err := normalizeDSN(cfg.Infra.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		cfg.Infra.MySQL.DSN = dsn
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("MYSQL_DSN", &cfg.Infra.MySQL.DSN)
	setString("SQLITE_PATH", &cfg.Infra.SQLite.Path)
	setString("REDIS_ADDRS", &cfg.Infra.Redis.Addrs)
	setString("JAEGER_ENDPOINT", &cfg.Infra.Jaeger.Endpoint)
	setString("ZOOKEEPER_SERVERS", &cfg.Infra.ZooKeeper.Servers)
	setString("NACOS_SERVER_ADDRS", &cfg.Infra.Nacos.ServerAddrs)
	setString("NACOS_NAMESPACE", &cfg.Infra.Nacos.Namespace)
	setString("NACOS_GROUP", &cfg.Infra.Nacos.Group)
	setString("LOG_LEVEL", &cfg.App.LogLevel)

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HTTP_PORT %q", v)
		}
		cfg.App.HTTPPort = port
	}
	return nil
}

// normalizeDSN 强制 parseTime，GORM 的 time.Time 字段依赖它。
func normalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid MYSQL_DSN")
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
