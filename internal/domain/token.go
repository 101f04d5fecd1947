package domain

import "strings"

// Token describe un ERC-20 en la cadena monitorizada.
type Token struct {
	Address  string // hex con prefijo 0x
	Decimals uint8
	Symbol   string
}

// TokenPair es el par que se compara entre venues.
// El precio de un quote siempre se expresa en unidades de Quote por 1 unidad de Base.
type TokenPair struct {
	Base  Token
	Quote Token
}

// Label devuelve la etiqueta canónica "BASE/QUOTE".
func (p TokenPair) Label() string {
	return p.Base.Symbol + "/" + p.Quote.Symbol
}

// SameAs compara por dirección de contrato, ignorando mayúsculas (checksum).
func (p TokenPair) SameAs(other TokenPair) bool {
	return strings.EqualFold(p.Base.Address, other.Base.Address) &&
		strings.EqualFold(p.Quote.Address, other.Quote.Address)
}
