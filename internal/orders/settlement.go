package orders

import (
	"context"
	"sort"
	"time"
)

const (
	DefaultLowStockThreshold = 5
	// DefaultProfitRateBPS is the share of the margin kept as profit, in
	// basis points.
	DefaultProfitRateBPS = 9000

	latestOrdersLimit = 5
	monthLayout       = "2006-01"
)

// Settlement is the read side for seller dashboards and reports. It never
// writes.
type Settlement struct {
	Store             Store
	LowStockThreshold int
	ProfitRateBPS     int64
}

type MonthlyPoint struct {
	Month  string `json:"month"`
	Margin int64  `json:"margin"`
	Profit int64  `json:"profit"`
}

type LowStockProduct struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	Stock      int    `json:"stock"`
}

type OrderHead struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Status     Status    `json:"status"`
	TotalPrice int64     `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

type SellerSummary struct {
	SellerID      string            `json:"seller_id"`
	TotalRevenue  int64             `json:"total_revenue"`
	PendingCount  int               `json:"pending_count"`
	ProductsCount int               `json:"products_count"`
	LowStock      []LowStockProduct `json:"low_stock"`
	MonthlySeries []MonthlyPoint    `json:"monthly_series"`
	LatestOrders  []OrderHead       `json:"latest_orders"`
}

type SaleRow struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	TotalPrice int64     `json:"total_price"`
	Status     Status    `json:"status"`
}

type SalesReport struct {
	Chart []MonthlyPoint `json:"chart"`
	Table []SaleRow      `json:"table"`
}

func (s *Settlement) threshold() int {
	if s.LowStockThreshold <= 0 {
		return DefaultLowStockThreshold
	}
	return s.LowStockThreshold
}

func (s *Settlement) rate() int64 {
	if s.ProfitRateBPS <= 0 {
		return DefaultProfitRateBPS
	}
	return s.ProfitRateBPS
}

func (s *Settlement) SellerSummary(ctx context.Context, sellerID string) (SellerSummary, error) {
	all, _, err := s.Store.SellerOrders(ctx, sellerID, 0, 0)
	if err != nil {
		return SellerSummary{}, err
	}
	ps, err := s.Store.SellerProducts(ctx, sellerID)
	if err != nil {
		return SellerSummary{}, err
	}
	return Summarize(sellerID, all, ps, s.threshold(), s.rate()), nil
}

func (s *Settlement) SalesReport(ctx context.Context, sellerID string) (SalesReport, error) {
	all, _, err := s.Store.SellerOrders(ctx, sellerID, 0, 0)
	if err != nil {
		return SalesReport{}, err
	}
	rep := SalesReport{Chart: monthlySeries(all, s.rate()), Table: []SaleRow{}}
	for _, o := range all {
		if !o.Status.CountsAsRevenue() {
			continue
		}
		rep.Table = append(rep.Table, SaleRow{ID: o.ID, Date: o.CreatedAt, TotalPrice: o.TotalPrice, Status: o.Status})
	}
	return rep, nil
}

// Summarize builds a seller summary from raw rows. Orders are expected
// newest first, the way SellerOrders returns them.
func Summarize(sellerID string, all []Order, ps []Product, lowStock int, profitBPS int64) SellerSummary {
	sum := SellerSummary{
		SellerID:      sellerID,
		ProductsCount: len(ps),
		LowStock:      []LowStockProduct{},
		MonthlySeries: monthlySeries(all, profitBPS),
		LatestOrders:  []OrderHead{},
	}
	for _, o := range all {
		switch {
		case o.Status == StatusSubmitted:
			sum.PendingCount++
		case o.Status.CountsAsRevenue():
			sum.TotalRevenue += o.TotalPrice
		}
		if len(sum.LatestOrders) < latestOrdersLimit {
			sum.LatestOrders = append(sum.LatestOrders, OrderHead{
				ID: o.ID, CustomerID: o.CustomerID, Status: o.Status,
				TotalPrice: o.TotalPrice, CreatedAt: o.CreatedAt,
			})
		}
	}
	for _, p := range ps {
		if p.Stock <= lowStock {
			sum.LowStock = append(sum.LowStock, LowStockProduct{
				ID: p.ID, Name: p.Name, CategoryID: p.CategoryID, Stock: p.Stock,
			})
		}
	}
	sort.SliceStable(sum.LowStock, func(i, j int) bool { return sum.LowStock[i].Stock < sum.LowStock[j].Stock })
	return sum
}

// monthlySeries groups revenue orders by creation month (UTC), oldest month
// first.
func monthlySeries(all []Order, profitBPS int64) []MonthlyPoint {
	byMonth := map[string]int64{}
	for _, o := range all {
		if !o.Status.CountsAsRevenue() {
			continue
		}
		byMonth[o.CreatedAt.UTC().Format(monthLayout)] += o.TotalPrice
	}
	out := make([]MonthlyPoint, 0, len(byMonth))
	for m, margin := range byMonth {
		out = append(out, MonthlyPoint{Month: m, Margin: margin, Profit: margin * profitBPS / 10000})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
