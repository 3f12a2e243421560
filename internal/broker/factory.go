package broker

import (
	"fmt"

	"mailroom/internal/config"
	"mailroom/internal/logger"
)

// NewProducer builds the configured producer. An empty broker type
// disables event publishing and returns a nil Producer.
func NewProducer(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, serviceName, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
