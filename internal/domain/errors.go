package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores. Solo ErrConfig es fatal (y solo al arrancar).
var (
	ErrNetwork           = errors.New("network failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnsupportedPair   = errors.New("unsupported pair")
	ErrCalculation       = errors.New("calculation error")
	ErrStorage           = errors.New("storage error")
	ErrConfig            = errors.New("config error")
)

// FailureKind clasifica por qué un venue no devolvió quote.
type FailureKind int

const (
	FailureNetwork FailureKind = iota
	FailureMalformed
	FailureUnsupportedPair
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureMalformed:
		return "malformed_response"
	case FailureUnsupportedPair:
		return "unsupported_pair"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureMalformed:
		return ErrMalformedResponse
	case FailureUnsupportedPair:
		return ErrUnsupportedPair
	default:
		return ErrNetwork
	}
}

// FetchError es el fallo de un único venue para un par.
type FetchError struct {
	Venue string
	Kind  FailureKind
	Err   error
}

// NewFetchError construye un FetchError.
func NewFetchError(venue string, kind FailureKind, err error) *FetchError {
	return &FetchError{Venue: venue, Kind: kind, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Venue, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf devuelve la clase de fallo de err. Cualquier error que no sea un
// FetchError (p.ej. context.DeadlineExceeded) se trata como fallo de red.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, ErrUnsupportedPair):
		return FailureUnsupportedPair
	default:
		return FailureNetwork
	}
}
