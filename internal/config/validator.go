package config

import (
	"fmt"

	"mailroom/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateStorage(cfg.Storage); err != nil {
		errors = append(errors, err)
	}

	if err := validateSigning(cfg.Signing); err != nil {
		errors = append(errors, err)
	}

	if err := validateEmail(cfg.Email); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateIngest(cfg.Ingest); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateStorage(cfg StorageConfig) error {
	switch cfg.Driver {
	case constants.StorageDriverDisk:
		if cfg.Disk.Root == "" {
			return &ValidationError{
				Field:   "storage.disk.root",
				Message: "disk root directory is required for the disk driver",
			}
		}
	case constants.StorageDriverS3:
		if cfg.S3.Endpoint == "" {
			return &ValidationError{
				Field:   "storage.s3.endpoint",
				Message: "s3 endpoint is required for the s3 driver",
			}
		}
		if cfg.S3.Bucket == "" {
			return &ValidationError{
				Field:   "storage.s3.bucket",
				Message: "s3 bucket is required for the s3 driver",
			}
		}
	default:
		return &ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("unknown storage driver %q (expected %q or %q)", cfg.Driver, constants.StorageDriverDisk, constants.StorageDriverS3),
		}
	}

	return nil
}

// validateSigning refuses an empty secret outright. Falling back to a
// built-in default would let every deployment mint mutually valid asset
// tokens, so the service fails to start instead.
func validateSigning(cfg SigningConfig) error {
	if cfg.Secret == "" {
		return &ValidationError{
			Field:   "signing.secret",
			Message: "signing secret is required; set signing.secret or SIGNING_SECRET",
		}
	}

	if cfg.TokenTTLSeconds <= 0 {
		return &ValidationError{
			Field:   "signing.token_ttl_seconds",
			Message: "token TTL must be positive",
		}
	}

	return nil
}

func validateEmail(cfg EmailConfig) error {
	if cfg.MaxFileSize <= 0 {
		return &ValidationError{
			Field:   "email.max_file_size",
			Message: "max file size must be positive",
		}
	}

	if cfg.MaxTotalSize <= 0 {
		return &ValidationError{
			Field:   "email.max_total_size",
			Message: "max total size must be positive",
		}
	}

	if cfg.MaxTotalSize < cfg.MaxFileSize {
		return &ValidationError{
			Field:   "email.max_total_size",
			Message: "max total size must not be smaller than max file size",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	// The broker is optional; the pipeline runs without event publishing.
	if cfg.Type == "" {
		return nil
	}

	switch cfg.Type {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "at least one kafka broker is required",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type %q", cfg.Type),
		}
	}
}

func validateIngest(cfg IngestConfig) error {
	if cfg.Dedup.Enabled {
		if cfg.Dedup.TTLSeconds <= 0 {
			return &ValidationError{
				Field:   "ingest.dedup.ttl_seconds",
				Message: "dedup TTL must be positive when dedup is enabled",
			}
		}
		switch cfg.Dedup.OnRedisError {
		case "", constants.FallbackAllow, constants.FallbackDeny:
		default:
			return &ValidationError{
				Field:   "ingest.dedup.on_redis_error",
				Message: fmt.Sprintf("must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.Dedup.OnRedisError),
			}
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return &ValidationError{
				Field:   "ingest.rate_limit.rps",
				Message: "rate limit RPS must be positive when enabled",
			}
		}
		if cfg.RateLimit.Burst <= 0 {
			return &ValidationError{
				Field:   "ingest.rate_limit.burst",
				Message: "rate limit burst must be positive when enabled",
			}
		}
	}

	return nil
}
