// Package invoice turns uploaded invoice images into a structured line-item
// table via the extraction provider.
package invoice

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/calebmoss/invoiceflow/core"
)

// Header is the canonical column order of the extracted table.
var Header = []string{"Invoice No", "Product Name", "Qty", "Amount", "Date"}

// LineItem is one extracted invoice row.
type LineItem struct {
	InvoiceNo   string  `json:"Invoice No"`
	ProductName string  `json:"Product Name"`
	Qty         int     `json:"Qty"`
	Amount      float64 `json:"Amount"`
	Date        string  `json:"Date"`
}

// UnmarshalJSON tolerates the looseness of model output: quantities arriving
// as "20.00", amounts as strings, numeric invoice numbers.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// Every canonical column must be present; a record with absent keys
	// would otherwise decode into an empty row and slip downstream.
	for _, key := range Header {
		if v, ok := raw[key]; !ok || string(v) == "null" {
			return fmt.Errorf("missing required key %q", key)
		}
	}
	var err error
	if li.InvoiceNo, err = flexString(raw["Invoice No"]); err != nil {
		return fmt.Errorf("Invoice No: %w", err)
	}
	if li.ProductName, err = flexString(raw["Product Name"]); err != nil {
		return fmt.Errorf("Product Name: %w", err)
	}
	qty, err := flexNumber(raw["Qty"])
	if err != nil {
		return fmt.Errorf("Qty: %w", err)
	}
	li.Qty = int(math.Round(qty))
	amount, err := flexNumber(raw["Amount"])
	if err != nil {
		return fmt.Errorf("Amount: %w", err)
	}
	li.Amount = round2(amount)
	if li.Date, err = flexString(raw["Date"]); err != nil {
		return fmt.Errorf("Date: %w", err)
	}
	return nil
}

// Validate enforces the row invariants.
func (li LineItem) Validate() error {
	if li.Qty < 0 {
		return core.NewError(core.ErrParse, fmt.Sprintf("negative quantity %d", li.Qty))
	}
	if li.Amount < 0 {
		return core.NewError(core.ErrParse, fmt.Sprintf("negative amount %v", li.Amount))
	}
	return nil
}

// ToRecords converts line items to CSV records, header first.
func ToRecords(items []LineItem) [][]string {
	records := make([][]string, 0, len(items)+1)
	records = append(records, Header)
	for _, li := range items {
		records = append(records, []string{
			li.InvoiceNo,
			li.ProductName,
			strconv.Itoa(li.Qty),
			strconv.FormatFloat(li.Amount, 'f', 2, 64),
			li.Date,
		})
	}
	return records
}

// FromRecords converts CSV records (header first) back to line items.
func FromRecords(records [][]string) ([]LineItem, error) {
	if len(records) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, col := range records[0] {
		idx[col] = i
	}
	for _, col := range Header {
		if _, ok := idx[col]; !ok {
			return nil, core.NewError(core.ErrParse, fmt.Sprintf("table missing column %q", col))
		}
	}
	items := make([]LineItem, 0, len(records)-1)
	for _, rec := range records[1:] {
		qty, err := strconv.Atoi(strings.TrimSpace(rec[idx["Qty"]]))
		if err != nil {
			return nil, core.WrapError(fmt.Errorf("parse quantity: %w", err), core.ErrParse)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(rec[idx["Amount"]]), 64)
		if err != nil {
			return nil, core.WrapError(fmt.Errorf("parse amount: %w", err), core.ErrParse)
		}
		items = append(items, LineItem{
			InvoiceNo:   rec[idx["Invoice No"]],
			ProductName: rec[idx["Product Name"]],
			Qty:         qty,
			Amount:      amount,
			Date:        rec[idx["Date"]],
		})
	}
	return items, nil
}

func flexString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unsupported value %s", raw)
}

func flexNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("unsupported value %s", raw)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
