package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	DB        DBConfig  `yaml:"db"`
	Queue     Queue     `yaml:"queue"`
	Redis     Redis     `yaml:"redis"`
	Backend   Backend   `yaml:"backend"`
	Reconcile Reconcile `yaml:"reconcile"`
	Analytics Analytics `yaml:"analytics"`
	Kafka     Kafka     `yaml:"kafka"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"travel-booking-core"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
}

type GRPC struct {
	Addr string `yaml:"addr" env:"CORE_GRPC_ADDR" env-default:":50051"`
}

type DBConfig struct {
	// sqlite — локальная очередь на клиенте, postgres — серверная установка.
	Driver          string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	SQLitePath      string `yaml:"sqlite_path" env:"DB_SQLITE_PATH" env-default:"booking_queue.db"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"postgres"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"booking"`
	Password        string `yaml:"password" env:"DB_PASSWORD" env-default:"booking"`
	Name            string `yaml:"name" env:"DB_NAME" env-default:"booking_db"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	TimeZone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifeTime int    `yaml:"conn_max_lifetime_min" env:"DB_CONN_MAX_LIFETIME_MIN" env-default:"30"` // минут
}

type Queue struct {
	// gorm | redis
	Backend   string `yaml:"backend" env:"QUEUE_BACKEND" env-default:"gorm"`
	Namespace string `yaml:"namespace" env:"QUEUE_NAMESPACE" env-default:"admin_bookings"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Backend struct {
	BaseURL   string        `yaml:"base_url" env:"BACKEND_BASE_URL" env-default:"http://localhost:3000/api"`
	Timeout   time.Duration `yaml:"timeout" env:"BACKEND_TIMEOUT" env-default:"10s"`
	RateLimit float64       `yaml:"rate_limit" env:"BACKEND_RATE_LIMIT" env-default:"20"` // запросов в секунду
	RateBurst int           `yaml:"rate_burst" env:"BACKEND_RATE_BURST" env-default:"5"`
}

type Reconcile struct {
	PassTimeout      time.Duration `yaml:"pass_timeout" env:"RECONCILE_PASS_TIMEOUT" env-default:"60s"`
	PersistTimeout   time.Duration `yaml:"persist_timeout" env:"RECONCILE_PERSIST_TIMEOUT" env-default:"5s"`
	FlushConcurrency int           `yaml:"flush_concurrency" env:"RECONCILE_FLUSH_CONCURRENCY" env-default:"4"`
	FreshnessWindow  time.Duration `yaml:"freshness_window" env:"SYNC_FRESHNESS_WINDOW" env-default:"5m"`
	Interval         time.Duration `yaml:"interval" env:"RECONCILE_INTERVAL" env-default:"30s"`
}

type Analytics struct {
	RulesFile          string  `yaml:"rules_file" env:"ANALYTICS_RULES_FILE"`
	Timezone           string  `yaml:"timezone" env:"ANALYTICS_TIMEZONE" env-default:"UTC"`
	VIPMinSpend        float64 `yaml:"vip_min_spend" env:"SEGMENT_VIP_MIN_SPEND" env-default:"10000"`
	VIPMinBookings     int     `yaml:"vip_min_bookings" env:"SEGMENT_VIP_MIN_BOOKINGS" env-default:"5"`
	LoyalMinBookings   int     `yaml:"loyal_min_bookings" env:"SEGMENT_LOYAL_MIN_BOOKINGS" env-default:"3"`
	ValuableMinSpend   float64 `yaml:"valuable_min_spend" env:"SEGMENT_VALUABLE_MIN_SPEND" env-default:"5000"`
	RegularMinBookings int     `yaml:"regular_min_bookings" env:"SEGMENT_REGULAR_MIN_BOOKINGS" env-default:"2"`
	ChurnRiskDays      int     `yaml:"churn_risk_days" env:"SEGMENT_CHURN_RISK_DAYS" env-default:"120"`
}

type Kafka struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"booking-sync-events"`
}

// New читает config.yaml (путь можно переопределить CONFIG_PATH),
// переменные окружения перекрывают значения из файла.
func New() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// файла нет, берём только окружение
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// минимальная валидация
func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return errors.New("invalid DB config: sqlite path must not be empty")
		}
	case "postgres":
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return errors.New("invalid DB config: host/user/name must not be empty")
		}
	default:
		return fmt.Errorf("invalid DB config: unknown driver %q", c.DB.Driver)
	}
	if c.Queue.Backend != "gorm" && c.Queue.Backend != "redis" {
		return fmt.Errorf("invalid queue config: unknown backend %q", c.Queue.Backend)
	}
	if c.Queue.Namespace == "" {
		return errors.New("invalid queue config: namespace must not be empty")
	}
	if c.Reconcile.FlushConcurrency <= 0 {
		c.Reconcile.FlushConcurrency = 1
	}
	return nil
}
