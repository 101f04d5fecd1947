package ports

import (
	"context"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Notifier presenta o publica las oportunidades aceptadas en un tick.
type Notifier interface {
	// Notify recibe las oportunidades del tick, posiblemente vacías.
	Notify(ctx context.Context, opportunities []domain.ArbitrageOpportunity) error
}
