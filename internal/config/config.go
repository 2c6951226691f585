// Package config предоставляет структуры и функции для загрузки конфигурации сервисов.
// Значения читаются из YAML-файла (CONFIG_PATH) и переопределяются переменными окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/vpn-entitlements/internal/entitlement"
)

// Режимы доставки уведомлений.
const (
	NotifyModeQueue  = "queue"
	NotifyModeDirect = "direct"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env               string          `yaml:"env" env:"ENV" env-default:"local"`
	Storage           Storage         `yaml:"storage"`
	Redis             RedisConnection `yaml:"redis"`
	RabbitMQ          RabbitMQ        `yaml:"rabbitmq"`
	Telegram          Telegram        `yaml:"telegram"`
	HTTPServer        HTTPServer      `yaml:"http_server"`
	JWTToken          JWTToken        `yaml:"jwt"`
	Policy            Policy          `yaml:"policy"`
	Tariffs           []Tariff        `yaml:"tariffs"`
	OperatorIDs       []int64         `yaml:"operator_ids" env:"OPERATOR_IDS" env-separator:","`
	NotifyMode        string          `yaml:"notify_mode" env:"NOTIFY_MODE" env-default:"queue"`
	EmbeddedScheduler bool            `yaml:"embedded_scheduler" env:"EMBEDDED_SCHEDULER"`
	MetricsAddress    string          `yaml:"metrics_address" env:"METRICS_ADDRESS" env-default:":9090"`
}

// Storage настройки PostgreSQL.
type Storage struct {
	DSN         string `yaml:"dsn" env:"STORAGE_DSN"`
	MaxConns    int32  `yaml:"max_conns" env-default:"10"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"STORAGE_AUTO_MIGRATE" env-default:"true"`
	// InMemory включает хранилище в памяти процесса для локального запуска.
	InMemory bool `yaml:"in_memory" env:"STORAGE_IN_MEMORY"`
}

// RedisConnection настройки подключения к Redis. Пустой адрес отключает кэш.
type RedisConnection struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
	TTL         time.Duration `yaml:"ttl" env-default:"1m"`
}

// RabbitMQ настройки брокера очереди уведомлений.
type RabbitMQ struct {
	URL      string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env-default:"notifications"`
	Queue    string `yaml:"queue" env-default:"notifications.deliver"`
	Prefetch int    `yaml:"prefetch" env-default:"10"`
}

// Telegram настройки Bot API для доставки сообщений.
type Telegram struct {
	Token   string        `yaml:"token" env:"TELEGRAM_TOKEN"`
	BaseURL string        `yaml:"base_url" env-default:"https://api.telegram.org"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

// HTTPServer настройки HTTP API.
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst   int           `yaml:"rate_burst" env-default:"40"`
}

// JWTToken настройки подписи токенов доступа к API.
type JWTToken struct {
	SecretKey string        `yaml:"secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"720h"`
}

// Policy настраиваемые параметры жизненного цикла подписки.
type Policy struct {
	ScanInterval       time.Duration `yaml:"scan_interval" env:"SCAN_INTERVAL" env-default:"15m"`
	WarnBefore         time.Duration `yaml:"warn_before" env-default:"48h"`
	GracePeriod        time.Duration `yaml:"grace_period" env-default:"48h"`
	ReferralBonusDays  int           `yaml:"referral_bonus_days" env-default:"14"`
	ReferralTrialDays  int           `yaml:"referral_trial_days" env-default:"3"`
	DaysPerMonth       int           `yaml:"days_per_month" env-default:"30"`
	NotifyTimeout      time.Duration `yaml:"notify_timeout" env-default:"5s"`
	AllowedGrantMonths []int         `yaml:"allowed_grant_months" env-default:"1,2,3,6,12"`
}

// Tariff описание тарифа. Цена задаётся строкой и разбирается как десятичное число.
type Tariff struct {
	Code     string `yaml:"code"`
	Title    string `yaml:"title"`
	Price    string `yaml:"price"`
	Currency string `yaml:"currency" env-default:"RUB"`
}

// MustLoad загружает конфиг из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %s", err)
	}
	return cfg
}

// Load читает и проверяет конфиг из файла path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: file %s does not exist", entitlement.ErrConfiguration, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры. Ошибка оборачивает entitlement.ErrConfiguration.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage dsn is required", entitlement.ErrConfiguration)
	}
	if c.JWTToken.SecretKey == "" {
		return fmt.Errorf("%w: jwt secret key is required", entitlement.ErrConfiguration)
	}
	switch c.NotifyMode {
	case NotifyModeQueue:
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("%w: rabbitmq url is required in queue mode", entitlement.ErrConfiguration)
		}
	case NotifyModeDirect:
		if c.Telegram.Token == "" {
			return fmt.Errorf("%w: telegram token is required in direct mode", entitlement.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown notify mode %q", entitlement.ErrConfiguration, c.NotifyMode)
	}
	if slices.Contains(c.OperatorIDs, 0) {
		return fmt.Errorf("%w: operator id must not be zero", entitlement.ErrConfiguration)
	}
	if err := c.EntitlementPolicy().Validate(); err != nil {
		return err
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

func (c *Config) EntitlementPolicy() entitlement.Policy {
	return entitlement.Policy{
		ScanInterval:       c.Policy.ScanInterval,
		WarnBefore:         c.Policy.WarnBefore,
		GracePeriod:        c.Policy.GracePeriod,
		ReferralBonusDays:  c.Policy.ReferralBonusDays,
		ReferralTrialDays:  c.Policy.ReferralTrialDays,
		DaysPerMonth:       c.Policy.DaysPerMonth,
		NotifyTimeout:      c.Policy.NotifyTimeout,
		AllowedGrantMonths: c.Policy.AllowedGrantMonths,
	}
}

// Catalog строит каталог тарифов. Без тарифов в конфиге используется каталог по умолчанию.
func (c *Config) Catalog() (*entitlement.Catalog, error) {
	if len(c.Tariffs) == 0 {
		return entitlement.DefaultCatalog(), nil
	}
	tariffs := make([]entitlement.Tariff, 0, len(c.Tariffs))
	for _, t := range c.Tariffs {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: tariff %q price: %v", entitlement.ErrConfiguration, t.Code, err)
		}
		currency := t.Currency
		if currency == "" {
			currency = "RUB"
		}
		tariffs = append(tariffs, entitlement.Tariff{Code: t.Code, Title: t.Title, Price: price, Currency: currency})
	}
	return entitlement.NewCatalog(tariffs)
}

func (c *Config) IsOperator(id int64) bool {
	return slices.Contains(c.OperatorIDs, id)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage: in_memory=%t auto_migrate=%t dsn=%s\n"+
			"Redis: %s db=%d ttl=%s\n"+
			"RabbitMQ: url=%s exchange=%s queue=%s\n"+
			"Telegram: %s token=%s\n"+
			"HTTPServer: %s timeout=%s\n"+
			"Policy: scan=%s warn=%s grace=%s bonus=%d trial=%d\n"+
			"NotifyMode: %s EmbeddedScheduler: %t Operators: %d\n",
		c.Env,
		c.Storage.InMemory, c.Storage.AutoMigrate, mask(c.Storage.DSN),
		c.Redis.Address, c.Redis.DB, c.Redis.TTL,
		mask(c.RabbitMQ.URL), c.RabbitMQ.Exchange, c.RabbitMQ.Queue,
		c.Telegram.BaseURL, mask(c.Telegram.Token),
		c.HTTPServer.Address, c.HTTPServer.Timeout,
		c.Policy.ScanInterval, c.Policy.WarnBefore, c.Policy.GracePeriod,
		c.Policy.ReferralBonusDays, c.Policy.ReferralTrialDays,
		c.NotifyMode, c.EmbeddedScheduler, len(c.OperatorIDs),
	)
}
