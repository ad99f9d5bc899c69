package domain

import "errors"

var (
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")
	ErrCircuitOpen     = errors.New("catalog circuit breaker is open")
	ErrNoMorePages     = errors.New("no more catalog pages")
	ErrUnknownTask     = errors.New("unknown task type")
)
