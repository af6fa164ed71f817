package stats

import (
	"time"

	"rainshop/internal/money"
	"rainshop/internal/store"
)

const dateLayout = "2006-01-02"

// Report is the aggregate stats document. Per-product maps are keyed by
// product name.
type Report struct {
	TotalOrders    int            `json:"total_orders"`
	TotalOrdered   map[string]int `json:"total_ordered"`
	TotalReturned  map[string]int `json:"total_returned"`
	OrdersByStatus StatusCounts   `json:"orders_by_status"`
	Monetary       MonetaryStats  `json:"orders_by_monetary_stats"`
}

type StatusCounts struct {
	Created   int `json:"total_created"`
	Paid      int `json:"total_paid"`
	Cancelled int `json:"total_cancelled"`
	Returned  int `json:"total_returned"`
}

// MonetaryStats holds decimal amounts rendered with two places. A nil value
// means the product has no paid orders in the window.
type MonetaryStats struct {
	GrossIncome map[string]*string `json:"total_gross_income"`
	Cost        map[string]*string `json:"total_cost"`
	Income      map[string]*string `json:"total_income"`
}

// ParseWindow turns the start/end query values into a filter. Both dates
// must parse, otherwise the report is unfiltered. The end date is inclusive.
func ParseWindow(startDate, endDate string) (store.StatsFilter, bool) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return store.StatsFilter{}, false
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return store.StatsFilter{}, false
	}
	to := end.AddDate(0, 0, 1)
	return store.StatsFilter{From: &start, To: &to}, true
}

func buildReport(products []store.ProductStats, counts store.OrderCounts) *Report {
	r := &Report{
		TotalOrders:   counts.Total,
		TotalOrdered:  make(map[string]int, len(products)),
		TotalReturned: make(map[string]int, len(products)),
		OrdersByStatus: StatusCounts{
			Created:   counts.Created,
			Paid:      counts.Paid,
			Cancelled: counts.Cancelled,
			Returned:  counts.Returned,
		},
		Monetary: MonetaryStats{
			GrossIncome: make(map[string]*string, len(products)),
			Cost:        make(map[string]*string, len(products)),
			Income:      make(map[string]*string, len(products)),
		},
	}

	for _, p := range products {
		r.TotalOrdered[p.Name] += p.Ordered
		r.TotalReturned[p.Name] += p.Returned
		r.Monetary.GrossIncome[p.Name] = fixed(p.GrossIncome)
		r.Monetary.Cost[p.Name] = fixed(p.Cost)
		r.Monetary.Income[p.Name] = nil
		if p.GrossIncome != nil && p.Cost != nil {
			if net, err := p.GrossIncome.Sub(*p.Cost); err == nil {
				r.Monetary.Income[p.Name] = fixed(&net)
			}
		}
	}
	return r
}

func fixed(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := m.StringFixed()
	return &s
}
