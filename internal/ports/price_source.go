package ports

import (
	"context"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// PriceSource obtiene el precio de un par en un único venue.
//
// Las implementaciones no comparten estado mutable entre sí y respetan el
// deadline de ctx. Los fallos se devuelven como *domain.FetchError.
type PriceSource interface {
	// Name identifica el venue; debe ser único entre las fuentes registradas.
	Name() string

	// FetchQuote devuelve un quote fresco para el par.
	FetchQuote(ctx context.Context, pair domain.TokenPair) (domain.PriceQuote, error)
}

// GasPricer devuelve el precio de gas vigente en gwei.
type GasPricer interface {
	GasPriceGwei(ctx context.Context) (float64, error)
}
