// Package aggregate rolls Silver records up into Gold summary datasets.
package aggregate

import (
	"slices"
	"strconv"
	"strings"

	"retail-medallion/internal/domain"
)

// View is one Gold dataset: its name and the fields it groups by.
type View struct {
	Name       string
	Dimensions []string
}

// Config lists the Gold views and whether to compute mean discount.
type Config struct {
	Views           []View
	AverageDiscount bool
}

// Dataset is the computed content of one view.
type Dataset struct {
	View    View
	Metrics []domain.AggregatedMetric
}

// Aggregator computes Gold datasets.
type Aggregator struct {
	cfg Config
}

// New checks every view's dimensions against the Silver schema.
func New(cfg Config) (*Aggregator, error) {
	if len(cfg.Views) == 0 {
		return nil, domain.ErrValidation("at least one view is required")
	}
	for _, v := range cfg.Views {
		if err := checkView(v); err != nil {
			return nil, err
		}
	}
	return &Aggregator{cfg: cfg}, nil
}

func checkView(v View) error {
	if len(v.Dimensions) == 0 {
		return domain.ErrValidation("view %q has no dimensions", v.Name)
	}
	for i, d := range v.Dimensions {
		if !slices.Contains(domain.DimensionFields, d) {
			return domain.ErrSchema(d)
		}
		if slices.Contains(v.Dimensions[:i], d) {
			return domain.ErrValidation("view %q lists dimension %q twice", v.Name, d)
		}
	}
	return nil
}

// Views returns the configured views.
func (a *Aggregator) Views() []View {
	return slices.Clone(a.cfg.Views)
}

// AverageDiscount reports whether metrics carry a mean discount.
func (a *Aggregator) AverageDiscount() bool {
	return a.cfg.AverageDiscount
}

// All computes every configured view. Nothing is returned unless all succeed.
func (a *Aggregator) All(records []domain.CleanedRecord) ([]Dataset, error) {
	out := make([]Dataset, 0, len(a.cfg.Views))
	for _, v := range a.cfg.Views {
		m, err := Aggregate(records, v, a.cfg.AverageDiscount)
		if err != nil {
			return nil, err
		}
		out = append(out, Dataset{View: v, Metrics: m})
	}
	return out, nil
}

// groupID encodes a key tuple unambiguously: each value is prefixed with its
// length, so no value content can make two tuples collide.
func groupID(keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}

type accumulator struct {
	keys          []string
	count         int64
	sales, profit float64
	discountSum   float64
	discountN     int64
}

// Aggregate groups records by the view's dimensions and returns one metric per
// distinct key combination, sorted by key. Profit and discount sums skip nil
// values; AvgDiscount is nil when disabled or when a group has no discounts.
func Aggregate(records []domain.CleanedRecord, view View, averageDiscount bool) ([]domain.AggregatedMetric, error) {
	if err := checkView(view); err != nil {
		return nil, err
	}

	groups := make(map[string]*accumulator)
	for i := range records {
		r := &records[i]
		keys := make([]string, len(view.Dimensions))
		for j, d := range view.Dimensions {
			keys[j], _ = r.Dimension(d)
		}
		id := groupID(keys)
		acc, ok := groups[id]
		if !ok {
			acc = &accumulator{keys: keys}
			groups[id] = acc
		}
		acc.count++
		acc.sales += r.Sales
		if r.Profit != nil {
			acc.profit += *r.Profit
		}
		if r.Discount != nil {
			acc.discountSum += *r.Discount
			acc.discountN++
		}
	}

	out := make([]domain.AggregatedMetric, 0, len(groups))
	for _, acc := range groups {
		m := domain.AggregatedMetric{
			Keys:        acc.keys,
			OrderCount:  acc.count,
			TotalSales:  acc.sales,
			TotalProfit: acc.profit,
		}
		if averageDiscount && acc.discountN > 0 {
			avg := acc.discountSum / float64(acc.discountN)
			m.AvgDiscount = &avg
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b domain.AggregatedMetric) int {
		return slices.Compare(a.Keys, b.Keys)
	})
	return out, nil
}
