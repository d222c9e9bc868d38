package domain

import "time"

// Source column names of the retail-sales export.
const (
	ColumnOrderDate = "Order Date"
	ColumnSales     = "Sales"
	ColumnProfit    = "Profit"
	ColumnDiscount  = "Discount"
	ColumnRegion    = "Region"
	ColumnCategory  = "Category"
	ColumnState     = "State"
	ColumnCity      = "City"
)

// Field names of a CleanedRecord, as used by column mappings, grouping
// dimensions, and the Silver parquet schema.
const (
	FieldOrderDate = "order_date"
	FieldSales     = "sales"
	FieldProfit    = "profit"
	FieldDiscount  = "discount"
	FieldRegion    = "region"
	FieldCategory  = "category"
	FieldState     = "state"
	FieldCity      = "city"
)

// CleanedFields lists every CleanedRecord field in Silver column order.
var CleanedFields = []string{
	FieldOrderDate, FieldSales, FieldProfit, FieldDiscount,
	FieldRegion, FieldCategory, FieldState, FieldCity,
}

// DimensionFields lists the categorical fields usable as grouping dimensions.
var DimensionFields = []string{FieldRegion, FieldCategory, FieldState, FieldCity}

// DefaultColumns maps every CleanedRecord field to its source column name.
func DefaultColumns() map[string]string {
	return map[string]string{
		FieldOrderDate: ColumnOrderDate,
		FieldSales:     ColumnSales,
		FieldProfit:    ColumnProfit,
		FieldDiscount:  ColumnDiscount,
		FieldRegion:    ColumnRegion,
		FieldCategory:  ColumnCategory,
		FieldState:     ColumnState,
		FieldCity:      ColumnCity,
	}
}

// DefaultExpectedColumns is the header subset a source file must carry.
func DefaultExpectedColumns() []string {
	return []string{
		ColumnOrderDate, ColumnSales, ColumnProfit, ColumnDiscount,
		ColumnRegion, ColumnCategory, ColumnState, ColumnCity,
	}
}

// RawRecord is one untyped Bronze row. Values are the verbatim cell text keyed
// by header name.
type RawRecord struct {
	Line   int
	Values map[string]string
}

// CleanedRecord is one typed Silver row. Profit and Discount are nil when the
// source value could not be parsed.
type CleanedRecord struct {
	OrderDate time.Time
	Sales     float64
	Profit    *float64
	Discount  *float64
	Region    string
	Category  string
	State     string
	City      string
}

// Dimension returns the value of a categorical field by name.
func (r *CleanedRecord) Dimension(field string) (string, bool) {
	switch field {
	case FieldRegion:
		return r.Region, true
	case FieldCategory:
		return r.Category, true
	case FieldState:
		return r.State, true
	case FieldCity:
		return r.City, true
	default:
		return "", false
	}
}

// Rejection records why a Bronze row was kept out of Silver.
type Rejection struct {
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// AggregatedMetric is one Gold row: a grouping key plus its summary metrics.
// Keys are ordered like the view's dimensions.
type AggregatedMetric struct {
	Keys        []string
	OrderCount  int64
	TotalSales  float64
	TotalProfit float64
	AvgDiscount *float64
}
