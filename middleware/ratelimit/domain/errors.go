package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited é o erro base de uma negação convertida em erro na borda HTTP.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidConfig é o erro base de ConfigurationError.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
)

// ConfigurationError é retornado na construção de um limiter, nunca durante uma checagem.
type ConfigurationError struct {
	Field string
	Value any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid rate limit configuration: %s must be positive, got %v", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }
