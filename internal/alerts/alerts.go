// Package alerts raises low-stock and out-of-stock alerts once per episode.
// The set of already-fired alerts belongs to the caller, so two terminals
// (or two tests) never share notification state.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/xid"
)

// FiredSet holds the keys of alerts already raised. It is not safe for
// concurrent use.
type FiredSet map[string]struct{}

func NewFiredSet() FiredSet {
	return make(FiredSet)
}

func (f FiredSet) Has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f FiredSet) Add(key string) {
	f[key] = struct{}{}
}

func (f FiredSet) Remove(key string) {
	delete(f, key)
}

func Key(code string, productID string) string {
	return code + ":" + productID
}

// CheckStock returns the alerts that are new since the last call with the
// same fired set and records them in it. A product back above its minimum
// clears its keys so a later dip alerts again.
func CheckStock(products []domain.Product, fired FiredSet, now time.Time) []domain.StockAlert {
	alerts := make([]domain.StockAlert, 0, 8)

	for _, p := range products {
		if !p.Active {
			continue
		}
		lowKey := Key(domain.AlertCodeLowStock, p.ID)
		outKey := Key(domain.AlertCodeOutOfStock, p.ID)

		var code, severity, key string
		switch {
		case !p.Stock.IsPositive():
			code, severity, key = domain.AlertCodeOutOfStock, domain.SeverityHigh, outKey
		case p.Stock.LessThanOrEqual(p.MinStock):
			code, severity, key = domain.AlertCodeLowStock, domain.SeverityMedium, lowKey
			fired.Remove(outKey)
		default:
			fired.Remove(lowKey)
			fired.Remove(outKey)
			continue
		}

		if fired.Has(key) {
			continue
		}
		fired.Add(key)
		alerts = append(alerts, domain.StockAlert{
			ID:        xid.New("alert"),
			Key:       key,
			Code:      code,
			Severity:  severity,
			ProductID: p.ID,
			Name:      p.Name,
			Title:     title(code, p),
			Stock:     p.Stock,
			MinStock:  p.MinStock,
			CreatedAt: now.UTC(),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity == domain.SeverityHigh
		}
		di := alerts[i].MinStock.Sub(alerts[i].Stock)
		dj := alerts[j].MinStock.Sub(alerts[j].Stock)
		if !di.Equal(dj) {
			return di.GreaterThan(dj)
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts
}

func title(code string, p domain.Product) string {
	if code == domain.AlertCodeOutOfStock {
		return fmt.Sprintf("%s is out of stock", p.Name)
	}
	return fmt.Sprintf("%s is low: %s left, minimum %s", p.Name, p.Stock, p.MinStock)
}
