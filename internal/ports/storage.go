package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// OpportunityStore persiste las oportunidades aceptadas. Es append-only y debe
// soportar Save concurrentes desde varios pares evaluados en paralelo.
type OpportunityStore interface {
	// Save guarda la oportunidad y devuelve el id autoincremental asignado.
	// Los fallos se envuelven en domain.ErrStorage.
	Save(ctx context.Context, opp domain.ArbitrageOpportunity) (int64, error)

	// ListRecent devuelve como máximo limit oportunidades, de la más nueva a la más vieja.
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)

	// ListByPair es ListRecent filtrado por etiqueta de par ("WETH/USDC").
	ListByPair(ctx context.Context, pair string, limit int) ([]domain.ArbitrageOpportunity, error)

	// Prune borra las oportunidades anteriores a before y devuelve cuántas borró.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
