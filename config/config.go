package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DuplicatePolicyInsert = "insert"
	DuplicatePolicyUpsert = "upsert"
)

const (
	adminKeyPrefix = "ADMIN_"
	adminKeySuffix = "_API_KEY"
)

type Config struct {
	Server     ServerConfig
	LogLevel   string           `mapstructure:"log_level"`
	Instagram  InstagramConfig  `mapstructure:"instagram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type InstagramConfig struct {
	AppSecret       string   `mapstructure:"appSecret"`
	VerifyToken     string   `mapstructure:"verifyToken"`
	AccessToken     string   `mapstructure:"accessToken"`
	UserID          string   `mapstructure:"userID"`
	Username        string   `mapstructure:"username"`
	BaseURL         string   `mapstructure:"baseURL"`
	APIVersion      string   `mapstructure:"apiVersion"`
	SubscribeFields []string `mapstructure:"subscribeFields"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"maxOpenConns"`
	MaxIdleConns           int    `mapstructure:"maxIdleConns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"connMaxLifetimeMinutes"`
	AutoMigrate            bool   `mapstructure:"autoMigrate"`
}

type IngestionConfig struct {
	DuplicatePolicy   string `mapstructure:"duplicatePolicy"`
	MaxBodyBytes      int64  `mapstructure:"maxBodyBytes"`
	DiagnosticLogPath string `mapstructure:"diagnosticLogPath"`
}

type SecurityConfig struct {
	APIKeyHeader string            `mapstructure:"apiKeyHeader"`
	APIKeys      map[string]string `mapstructure:"apiKeys"`
}

type MonitoringConfig struct {
	PrometheusPort int    `mapstructure:"prometheusPort"`
	MetricsPath    string `mapstructure:"metricsPath"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RabbitMQConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	QueueName string `mapstructure:"queueName"`
}

type RetentionConfig struct {
	EventLogDays int `mapstructure:"eventLogDays"`
}

type ServerConfig struct {
	Port int
	Host string
}

// Load reads ./config/config.yaml when present, then applies environment
// overrides. A missing config file is not an error; everything can come from
// the environment.
func Load() (*Config, error) {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)

	for name, key := range loadAPIKeysFromEnv() {
		if cfg.Security.APIKeys == nil {
			cfg.Security.APIKeys = make(map[string]string)
		}
		cfg.Security.APIKeys[name] = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("instagram.baseURL", "https://graph.instagram.com")
	v.SetDefault("instagram.apiVersion", "v22.0")
	v.SetDefault("instagram.subscribeFields", []string{"comments", "messages", "mentions"})
	v.SetDefault("database.maxOpenConns", 100)
	v.SetDefault("database.maxIdleConns", 10)
	v.SetDefault("database.connMaxLifetimeMinutes", 60)
	v.SetDefault("database.autoMigrate", true)
	v.SetDefault("ingestion.duplicatePolicy", DuplicatePolicyInsert)
	v.SetDefault("ingestion.maxBodyBytes", 1<<20)
	v.SetDefault("ingestion.diagnosticLogPath", "logs/webhook.log")
	v.SetDefault("rabbitmq.exchange", "instagram.events")
	v.SetDefault("rabbitmq.queueName", "instagram_activity")
	v.SetDefault("mongodb.database", "instagram_webhooks")
	v.SetDefault("mongodb.collection", "activity")
	v.SetDefault("monitoring.prometheusPort", 9090)
	v.SetDefault("monitoring.metricsPath", "/metrics")
	v.SetDefault("security.apiKeyHeader", "X-API-Key")
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("APP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if promPort := os.Getenv("PROMETHEUS_PORT"); promPort != "" {
		if p, err := strconv.Atoi(promPort); err == nil {
			cfg.Monitoring.PrometheusPort = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if secret := os.Getenv("INSTAGRAM_APP_SECRET"); secret != "" {
		cfg.Instagram.AppSecret = secret
	}
	if token := os.Getenv("INSTAGRAM_VERIFY_TOKEN"); token != "" {
		cfg.Instagram.VerifyToken = token
	}
	if token := os.Getenv("INSTAGRAM_ACCESS_TOKEN"); token != "" {
		cfg.Instagram.AccessToken = token
	}
	if id := os.Getenv("INSTAGRAM_USER_ID"); id != "" {
		cfg.Instagram.UserID = id
	}
	if name := os.Getenv("INSTAGRAM_USERNAME"); name != "" {
		cfg.Instagram.Username = name
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if policy := os.Getenv("DUPLICATE_POLICY"); policy != "" {
		cfg.Ingestion.DuplicatePolicy = policy
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoDB.URI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.MongoDB.Database = db
	}

	// Support both CLOUDAMQP_URL and RABBITMQ_URI
	if cloudamqpURL := os.Getenv("CLOUDAMQP_URL"); cloudamqpURL != "" {
		cfg.RabbitMQ.URL = cloudamqpURL
		cfg.RabbitMQ.Enabled = true
	} else if rabbitURL := os.Getenv("RABBITMQ_URI"); rabbitURL != "" {
		cfg.RabbitMQ.URL = rabbitURL
		cfg.RabbitMQ.Enabled = true
	}

	if header := os.Getenv("API_KEY_HEADER"); header != "" {
		cfg.Security.APIKeyHeader = header
	}
}

// Validate checks the settings the webhook endpoint cannot run without.
func (c *Config) Validate() error {
	var problems []string

	if c.Instagram.AppSecret == "" {
		problems = append(problems, "instagram.appSecret is required")
	}
	if c.Instagram.VerifyToken == "" {
		problems = append(problems, "instagram.verifyToken is required")
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	switch c.Ingestion.DuplicatePolicy {
	case DuplicatePolicyInsert, DuplicatePolicyUpsert:
	default:
		problems = append(problems, fmt.Sprintf("unknown ingestion.duplicatePolicy %q", c.Ingestion.DuplicatePolicy))
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		problems = append(problems, "rabbitmq.url is required when rabbitmq is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GraphBaseURL joins the Graph API host and version.
func (c InstagramConfig) GraphBaseURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.APIVersion == "" {
		return base
	}
	return base + "/" + c.APIVersion
}

func loadAPIKeysFromEnv() map[string]string {
	apiKeys := make(map[string]string)

	// ADMIN_CLIENT_NAME_API_KEY becomes client_name. Other *_API_KEY
	// variables belong to other services and never open the admin API.
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		envName := parts[0]
		envValue := parts[1]

		if envValue == "" || len(envName) <= len(adminKeyPrefix)+len(adminKeySuffix) {
			continue
		}
		if !strings.HasPrefix(envName, adminKeyPrefix) || !strings.HasSuffix(envName, adminKeySuffix) {
			continue
		}
		clientName := envName[len(adminKeyPrefix) : len(envName)-len(adminKeySuffix)]
		apiKeys[strings.ToLower(clientName)] = envValue
	}

	return apiKeys
}
