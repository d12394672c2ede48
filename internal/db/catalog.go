package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// CountryCatalog answers the country/region questions the fiscal
// builder asks: the domestic SAT country code and whether a country
// belongs to the regional trade bloc that enables the exporter number.
// When the database is unavailable it falls back to a static USMCA
// table so compute-only mode keeps working.
type CountryCatalog struct {
	domesticCode string
	fallbackBloc map[string]bool
}

// DefaultBlocCountries is the USMCA membership used when no catalog
// table is available.
var DefaultBlocCountries = map[string]bool{
	"USA": true,
	"CAN": true,
}

func NewCountryCatalog(domesticCode string) *CountryCatalog {
	if domesticCode == "" {
		domesticCode = "MEX"
	}
	return &CountryCatalog{
		domesticCode: domesticCode,
		fallbackBloc: DefaultBlocCountries,
	}
}

func (c *CountryCatalog) DomesticCode() string {
	return c.domesticCode
}

// InRegionalBloc checks the countries table; without a database the
// static table decides.
func (c *CountryCatalog) InRegionalBloc(ctx context.Context, countryCode string) (bool, error) {
	if Pool == nil {
		return c.fallbackBloc[countryCode], nil
	}

	query := `SELECT in_regional_bloc FROM countries WHERE sat_code = $1`

	var inBloc bool
	err := Pool.QueryRow(ctx, query, countryCode).Scan(&inBloc)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inBloc, nil
}
