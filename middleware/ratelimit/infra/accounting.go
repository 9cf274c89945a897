package infra

import (
	"time"

	"exchange-gateway/middleware/ratelimit/domain"
)

// Accounting decide quanto cada entrada da janela consome do limite e como
// uma requisição admitida é registrada.
type Accounting interface {
	Units(e domain.Entry) int
	Record(at time.Time, cost int) []domain.Entry
}

// CountAccounting conta requisições: cada entrada vale 1 e um custo n
// registra n entradas. O limiter só registra custos que cabem no limite.
type CountAccounting struct{}

func (CountAccounting) Units(domain.Entry) int { return 1 }

func (CountAccounting) Record(at time.Time, cost int) []domain.Entry {
	out := make([]domain.Entry, cost)
	for i := range out {
		out[i] = domain.Entry{At: at, Weight: 1}
	}
	return out
}

// WeightAccounting soma pesos: uma entrada por requisição carregando o peso.
type WeightAccounting struct{}

func (WeightAccounting) Units(e domain.Entry) int { return e.Weight }

func (WeightAccounting) Record(at time.Time, cost int) []domain.Entry {
	return []domain.Entry{{At: at, Weight: cost}}
}

func usage(acct Accounting, entries []domain.Entry) int {
	total := 0
	for _, e := range entries {
		total += acct.Units(e)
	}
	return total
}
