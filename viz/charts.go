package viz

import (
	"math"
	"sort"
	"time"
)

// ChartSpec is one renderer-agnostic chart: Plotly-compatible trace data
// plus layout, serialized as-is to the frontend.
type ChartSpec struct {
	ChartType string `json:"chart_type"`
	ChartName string `json:"chart_name"`
	Data      any    `json:"data"`
	Layout    any    `json:"layout"`
}

func amountBoxplot(f frame, amountCol string) *ChartSpec {
	values := f.floats(amountCol)
	if len(values) == 0 {
		return nil
	}
	return &ChartSpec{
		ChartType: "box",
		ChartName: "Amount Distribution",
		Data: map[string]any{
			"y":      values,
			"type":   "box",
			"name":   "Amount",
			"marker": map[string]any{"color": "#636EFA"},
		},
		Layout: map[string]any{
			"title":    "Amount Distribution",
			"yaxis":    map[string]any{"title": amountCol},
			"template": "plotly_white",
		},
	}
}

func quantityBoxplot(f frame, quantityCol string) *ChartSpec {
	values := f.floats(quantityCol)
	if len(values) == 0 {
		return nil
	}
	return &ChartSpec{
		ChartType: "box",
		ChartName: "Quantity Distribution",
		Data: map[string]any{
			"x":      values,
			"type":   "box",
			"name":   "Quantity",
			"marker": map[string]any{"color": "#FF6347"},
		},
		Layout: map[string]any{
			"title":    "Quantity Distribution",
			"xaxis":    map[string]any{"title": quantityCol},
			"template": "plotly_white",
		},
	}
}

func productSalesBar(f frame, productCol, amountCol string) *ChartSpec {
	sales := f.groupSum(productCol, amountCol)
	if len(sales) == 0 {
		return nil
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].sum < sales[j].sum })
	return &ChartSpec{
		ChartType: "bar",
		ChartName: "Sales by Product",
		Data: map[string]any{
			"x":           sums(sales),
			"y":           keys(sales),
			"type":        "bar",
			"orientation": "h",
			"marker": map[string]any{
				"color":      sums(sales),
				"colorscale": "Viridis",
			},
		},
		Layout: map[string]any{
			"title":    "Sales by Product",
			"xaxis":    map[string]any{"title": "Total Sales Amount"},
			"yaxis":    map[string]any{"title": productCol},
			"template": "plotly_white",
			"height":   chartHeight(len(sales)),
		},
	}
}

func topProductsPareto(f frame, productCol, amountCol string) *ChartSpec {
	sales := f.groupSum(productCol, amountCol)
	if len(sales) == 0 {
		return nil
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].sum > sales[j].sum })
	var total float64
	for _, p := range sales {
		total += p.sum
	}
	top := sales
	if len(top) > 10 {
		top = top[:10]
	}
	cumulative := make([]float64, len(top))
	var running float64
	for i, p := range top {
		running += p.sum
		pct := 0.0
		if total > 0 {
			pct = running / total * 100
		}
		cumulative[i] = math.Round(pct*100) / 100
	}
	return &ChartSpec{
		ChartType: "bar+line",
		ChartName: "Top 10 Products (Pareto)",
		Data: []map[string]any{
			{
				"x":      keys(top),
				"y":      sums(top),
				"type":   "bar",
				"name":   "Revenue",
				"marker": map[string]any{"color": "#636EFA"},
			},
			{
				"x":      keys(top),
				"y":      cumulative,
				"type":   "scatter",
				"mode":   "lines+markers",
				"name":   "Cumulative %",
				"yaxis":  "y2",
				"marker": map[string]any{"color": "#EF553B"},
			},
		},
		Layout: map[string]any{
			"title": "Top 10 Products by Revenue (Pareto)",
			"xaxis": map[string]any{"title": "Product"},
			"yaxis": map[string]any{"title": "Revenue"},
			"yaxis2": map[string]any{
				"title":      "Cumulative %",
				"overlaying": "y",
				"side":       "right",
				"range":      []int{0, 100},
			},
			"template": "plotly_white",
		},
	}
}

func quantityByProduct(f frame, productCol, quantityCol string) *ChartSpec {
	qty := f.groupSum(productCol, quantityCol)
	if len(qty) == 0 {
		return nil
	}
	sort.Slice(qty, func(i, j int) bool { return qty[i].sum < qty[j].sum })
	return &ChartSpec{
		ChartType: "bar",
		ChartName: "Quantity by Product",
		Data: map[string]any{
			"x":           sums(qty),
			"y":           keys(qty),
			"type":        "bar",
			"orientation": "h",
			"marker": map[string]any{
				"color":      sums(qty),
				"colorscale": "Cividis",
			},
		},
		Layout: map[string]any{
			"title":    "Quantity Sold by Product",
			"xaxis":    map[string]any{"title": "Total Quantity"},
			"yaxis":    map[string]any{"title": productCol},
			"template": "plotly_white",
			"height":   chartHeight(len(qty)),
		},
	}
}

func dailySalesLine(f frame, dateCol, amountCol string) *ChartSpec {
	days, totals := sumByDay(f, dateCol, amountCol)
	if len(days) == 0 {
		return nil
	}
	return &ChartSpec{
		ChartType: "line",
		ChartName: "Daily Sales Trend",
		Data: map[string]any{
			"x":      days,
			"y":      totals,
			"type":   "scatter",
			"mode":   "lines+markers",
			"name":   "Daily Sales",
			"marker": map[string]any{"color": "#636EFA"},
		},
		Layout: map[string]any{
			"title":    "Daily Sales Analysis",
			"xaxis":    map[string]any{"title": "Date"},
			"yaxis":    map[string]any{"title": "Total Sales"},
			"template": "plotly_white",
		},
	}
}

func monthlyRevenue(f frame, dateCol, amountCol string) *ChartSpec {
	rows := f.datedRows(dateCol)
	vi := f.index(amountCol)
	if len(rows) == 0 || vi == -1 {
		return nil
	}
	sums := map[string]float64{}
	var order []string
	for _, dr := range rows {
		raw, ok := cell(dr.row, vi)
		if !ok {
			continue
		}
		v, ok := parseFloat(raw)
		if !ok {
			continue
		}
		month := dr.date.Format("2006-01")
		if _, seen := sums[month]; !seen {
			order = append(order, month)
		}
		sums[month] += v
	}
	if len(order) == 0 {
		return nil
	}
	totals := make([]float64, len(order))
	for i, month := range order {
		totals[i] = sums[month]
	}
	return &ChartSpec{
		ChartType: "bar",
		ChartName: "Monthly Revenue",
		Data: map[string]any{
			"x":    order,
			"y":    totals,
			"type": "bar",
			"marker": map[string]any{
				"color":      totals,
				"colorscale": "Viridis",
			},
		},
		Layout: map[string]any{
			"title":    "Monthly Revenue Analysis",
			"xaxis":    map[string]any{"title": "Month"},
			"yaxis":    map[string]any{"title": "Total Revenue"},
			"template": "plotly_white",
		},
	}
}

func weekdaySales(f frame, dateCol, amountCol string) *ChartSpec {
	rows := f.datedRows(dateCol)
	vi := f.index(amountCol)
	if len(rows) == 0 || vi == -1 {
		return nil
	}
	totals := map[string]float64{}
	for _, dr := range rows {
		raw, ok := cell(dr.row, vi)
		if !ok {
			continue
		}
		v, ok := parseFloat(raw)
		if !ok {
			continue
		}
		totals[dr.date.Weekday().String()] += v
	}
	weekdayOrder := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	var days []string
	var values []float64
	for _, day := range weekdayOrder {
		if v, ok := totals[day]; ok {
			days = append(days, day)
			values = append(values, v)
		}
	}
	if len(days) == 0 {
		return nil
	}
	return &ChartSpec{
		ChartType: "bar",
		ChartName: "Sales by Weekday",
		Data: map[string]any{
			"x":      days,
			"y":      values,
			"type":   "bar",
			"marker": map[string]any{"color": "#00CC96"},
		},
		Layout: map[string]any{
			"title":    "Sales by Day of Week",
			"xaxis":    map[string]any{"title": "Day"},
			"yaxis":    map[string]any{"title": "Total Sales"},
			"template": "plotly_white",
		},
	}
}

func dailyInvoiceCount(f frame, invoiceCol, dateCol string) *ChartSpec {
	rows := f.datedRows(dateCol)
	ii := f.index(invoiceCol)
	if len(rows) == 0 || ii == -1 {
		return nil
	}
	distinct := map[string]map[string]bool{}
	var order []string
	for _, dr := range rows {
		item, ok := cell(dr.row, ii)
		if !ok {
			continue
		}
		day := dr.date.Format("2006-01-02")
		if _, seen := distinct[day]; !seen {
			distinct[day] = map[string]bool{}
			order = append(order, day)
		}
		distinct[day][item] = true
	}
	counts := make([]int, len(order))
	for i, day := range order {
		counts[i] = len(distinct[day])
	}
	return &ChartSpec{
		ChartType: "line",
		ChartName: "Daily Invoice Count",
		Data: map[string]any{
			"x":      order,
			"y":      counts,
			"type":   "scatter",
			"mode":   "lines+markers",
			"name":   "Invoice Count",
			"line":   map[string]any{"shape": "spline"},
			"marker": map[string]any{"color": "#FF69B4"},
		},
		Layout: map[string]any{
			"title":    "Daily Invoice Count",
			"xaxis":    map[string]any{"title": "Date"},
			"yaxis":    map[string]any{"title": "Number of Invoices", "dtick": 1},
			"template": "plotly_white",
		},
	}
}

func productsPerInvoice(f frame, invoiceCol, productCol string) *ChartSpec {
	counts := f.groupNunique(invoiceCol, productCol)
	if len(counts) == 0 {
		return nil
	}
	return &ChartSpec{
		ChartType: "bar",
		ChartName: "Products per Invoice",
		Data: map[string]any{
			"x":      keys(counts),
			"y":      sums(counts),
			"type":   "bar",
			"marker": map[string]any{"color": "#20B2AA"},
		},
		Layout: map[string]any{
			"title":    "Number of Products per Invoice",
			"xaxis":    map[string]any{"title": "Invoice ID"},
			"yaxis":    map[string]any{"title": "Products Count"},
			"template": "plotly_white",
		},
	}
}

func sumByDay(f frame, dateCol, amountCol string) ([]string, []float64) {
	rows := f.datedRows(dateCol)
	vi := f.index(amountCol)
	if len(rows) == 0 || vi == -1 {
		return nil, nil
	}
	sums := map[string]float64{}
	var order []string
	for _, dr := range rows {
		raw, ok := cell(dr.row, vi)
		if !ok {
			continue
		}
		v, ok := parseFloat(raw)
		if !ok {
			continue
		}
		day := dr.date.Format(time.DateOnly)
		if _, seen := sums[day]; !seen {
			order = append(order, day)
		}
		sums[day] += v
	}
	totals := make([]float64, len(order))
	for i, day := range order {
		totals[i] = sums[day]
	}
	return order, totals
}

func keys(pairs []pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.key
	}
	return out
}

func sums(pairs []pair) []float64 {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = p.sum
	}
	return out
}

func chartHeight(items int) int {
	if h := items * 30; h > 400 {
		return h
	}
	return 400
}
