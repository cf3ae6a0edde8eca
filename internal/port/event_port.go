package port

import (
	"context"

	"github.com/nikolayk812/booksettle/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
