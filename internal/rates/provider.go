// Package rates resolves historical currency conversion rates for the
// fiscal value builder: a Postgres-backed store fronted by an in-memory
// cache, with a backward date fallback for weekends and bank holidays.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
)

// maxFallbackDays bounds how far back a lookup walks when the exact
// date has no published rate.
const maxFallbackDays = 7

// Store is the raw rate source. Lookup reports found=false when no
// rate exists for the exact date.
type Store interface {
	Lookup(ctx context.Context, currency, companyID string, date time.Time) (decimal.Decimal, bool, error)
}

// Provider satisfies cfdi.CurrencyRateProvider. Results are cached per
// (currency, company, date) so repeated builds of the same invoice do
// not hit the store again.
type Provider struct {
	store Store
	cache *cache.Cache
}

// NewProvider wraps a store with a rate cache. The cache holds entries
// for ttl and purges expired ones at twice that interval.
func NewProvider(store Store, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Provider{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

// RateOn returns the company-currency value of one unit of currency on
// the given date, walking back up to a week when the exact date has no
// published rate.
func (p *Provider) RateOn(ctx context.Context, currency, companyID string, date time.Time) (decimal.Decimal, error) {
	key := fmt.Sprintf("rate-%s-%s-%s", currency, companyID, date.Format("2006-01-02"))
	if cached, found := p.cache.Get(key); found {
		return cached.(decimal.Decimal), nil
	}

	for i := 0; i < maxFallbackDays; i++ {
		queryDate := date.AddDate(0, 0, -i)
		rate, found, err := p.store.Lookup(ctx, currency, companyID, queryDate)
		if err != nil {
			return decimal.Zero, fmt.Errorf("rate lookup for %s on %s: %w", currency, queryDate.Format("2006-01-02"), err)
		}
		if !found {
			continue
		}
		p.cache.Set(key, rate, cache.DefaultExpiration)
		return rate, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s on or before %s", cfdi.ErrMissingRate, currency, date.Format("2006-01-02"))
}

// PGStore reads rates from the currency_rates table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Lookup(ctx context.Context, currency, companyID string, date time.Time) (decimal.Decimal, bool, error) {
	// Compute-only mode: no pool means no published rates.
	if s.pool == nil {
		return decimal.Zero, false, nil
	}

	query := `
		SELECT rate
		FROM currency_rates
		WHERE currency = $1 AND company_id = $2 AND rate_date = $3
	`

	var rate decimal.Decimal
	err := s.pool.QueryRow(ctx, query, currency, companyID, date.Format("2006-01-02")).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return rate, true, nil
}
