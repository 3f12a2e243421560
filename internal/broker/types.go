package broker

import (
	"context"

	"mailroom/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, event models.ProcessedEmailEvent) error
	Close() error
}
