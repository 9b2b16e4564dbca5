package shipping

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zone is a flat pricing tier keyed by destination country.
type Zone string

const (
	ZoneDomestic      Zone = "domestic"
	ZoneRegional      Zone = "regional"
	ZoneInternational Zone = "international"
)

// RateTable maps destination countries onto flat shipping tiers. The table
// is a pricing collaborator of the order workflow; it never mutates orders.
type RateTable struct {
	home     string
	regional map[string]bool
	rates    map[Zone]decimal.Decimal
}

func NewRateTable(home string, regional []string, rates map[Zone]decimal.Decimal) *RateTable {
	set := make(map[string]bool, len(regional))
	for _, c := range regional {
		set[strings.ToUpper(c)] = true
	}
	return &RateTable{home: strings.ToUpper(home), regional: set, rates: rates}
}

// DefaultTable ships from Thailand with a Southeast Asia regional tier.
func DefaultTable() *RateTable {
	return NewRateTable("TH",
		[]string{"SG", "MY", "VN", "ID", "PH", "LA", "KH", "MM", "BN"},
		map[Zone]decimal.Decimal{
			ZoneDomestic:      decimal.NewFromInt(50),
			ZoneRegional:      decimal.NewFromInt(250),
			ZoneInternational: decimal.NewFromInt(600),
		})
}

func (t *RateTable) ZoneFor(country string) Zone {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch {
	case c == t.home:
		return ZoneDomestic
	case t.regional[c]:
		return ZoneRegional
	default:
		return ZoneInternational
	}
}

// Cost returns the flat rate for shipping to the given country.
func (t *RateTable) Cost(country string) decimal.Decimal {
	return t.rates[t.ZoneFor(country)]
}
