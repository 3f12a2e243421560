package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"mailroom/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Email.MaxFileSize == 0 {
		cfg.Email.MaxFileSize = constants.DefaultMaxFileSize
	}
	if cfg.Email.MaxTotalSize == 0 {
		cfg.Email.MaxTotalSize = constants.DefaultMaxTotalSize
	}
	if cfg.Signing.TokenTTLSeconds == 0 {
		cfg.Signing.TokenTTLSeconds = int(constants.DefaultTokenTTL.Seconds())
	}
	if cfg.Broker.Type == "kafka" && cfg.Broker.Kafka.ProcessedTopic == "" {
		cfg.Broker.Kafka.ProcessedTopic = constants.DefaultProcessedTopic
	}
}

func bindEnvVariables() {
	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("storage.driver", "STORAGE_DRIVER")
	viper.BindEnv("storage.disk.root", "STORAGE_DISK_ROOT")
	viper.BindEnv("storage.s3.endpoint", "STORAGE_S3_ENDPOINT")
	viper.BindEnv("storage.s3.region", "STORAGE_S3_REGION")
	viper.BindEnv("storage.s3.bucket", "STORAGE_S3_BUCKET")
	viper.BindEnv("storage.s3.access_key", "STORAGE_S3_ACCESS_KEY")
	viper.BindEnv("storage.s3.secret_key", "STORAGE_S3_SECRET_KEY")
	viper.BindEnv("storage.public_base_url", "STORAGE_PUBLIC_BASE_URL")

	viper.BindEnv("signing.secret", "SIGNING_SECRET")
	viper.BindEnv("signing.token_ttl_seconds", "SIGNING_TOKEN_TTL_SECONDS")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.processed_topic", "BROKER_KAFKA_PROCESSED_TOPIC")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if secret := viper.GetString("SIGNING_SECRET"); secret != "" {
		cfg.Signing.Secret = secret
	}

	return nil
}
