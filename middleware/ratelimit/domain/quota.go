package domain

import (
	"errors"
	"time"
)

// Janelas publicadas pela exchange.
const (
	OrderWindow     = time.Second
	WeightWindow    = 10 * time.Second
	WebSocketWindow = time.Second
)

// ExchangeQuotaConfig espelha os limites documentados da API da exchange.
// Os valores padrão vêm de DefaultExchangeQuota; todos podem ser sobrescritos.
type ExchangeQuotaConfig struct {
	OrderLimit          int
	BatchOrderLimit     int
	DefaultWeight       int
	MaxWeight           int
	WebsocketLimit      int
	MaxWebsocketStreams int
}

func DefaultExchangeQuota() ExchangeQuotaConfig {
	return ExchangeQuotaConfig{
		OrderLimit:          5,
		BatchOrderLimit:     2,
		DefaultWeight:       1,
		MaxWeight:           500,
		WebsocketLimit:      100,
		MaxWebsocketStreams: 30,
	}
}

func (c ExchangeQuotaConfig) Validate() error {
	var errs []error
	check := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, &ConfigurationError{Field: field, Value: v})
		}
	}
	check("OrderLimit", c.OrderLimit)
	check("BatchOrderLimit", c.BatchOrderLimit)
	check("DefaultWeight", c.DefaultWeight)
	check("MaxWeight", c.MaxWeight)
	check("WebsocketLimit", c.WebsocketLimit)
	check("MaxWebsocketStreams", c.MaxWebsocketStreams)
	return errors.Join(errs...)
}

// TierConfig separa o orçamento de chamadores autenticados e anônimos.
type TierConfig struct {
	Authenticated   LimitConfig
	Unauthenticated LimitConfig
}

func (c TierConfig) Validate() error {
	return errors.Join(c.Authenticated.Validate(), c.Unauthenticated.Validate())
}
