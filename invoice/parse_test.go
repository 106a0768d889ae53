package invoice

import (
	"testing"

	"github.com/calebmoss/invoiceflow/core"
)

func TestParseItemsPlainArray(t *testing.T) {
	reply := `[{"Invoice No": "INV001", "Product Name": "Pipe A", "Qty": 25, "Amount": 3593.10, "Date": "01-01-25"}]`
	items, err := ParseItems(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	li := items[0]
	if li.InvoiceNo != "INV001" || li.ProductName != "Pipe A" || li.Qty != 25 || li.Amount != 3593.10 {
		t.Fatalf("unexpected item: %+v", li)
	}
}

func TestParseItemsStripsCodeFence(t *testing.T) {
	reply := "```json\n[{\"Invoice No\": \"INV002\", \"Product Name\": \"Pipe B\", \"Qty\": 50, \"Amount\": 3849.76, \"Date\": \"02-01-25\"}]\n```"
	items, err := ParseItems(reply)
	if err != nil {
		t.Fatalf("parse fenced reply: %v", err)
	}
	if len(items) != 1 || items[0].InvoiceNo != "INV002" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestParseItemsSlicesSurroundingProse(t *testing.T) {
	reply := "Here is the extracted data:\n[{\"Invoice No\": \"A\", \"Product Name\": \"X\", \"Qty\": 1, \"Amount\": 2.5, \"Date\": \"03-01-25\"}]\nLet me know if you need anything else."
	items, err := ParseItems(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 || items[0].Amount != 2.5 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestParseItemsToleratesLooseTypes(t *testing.T) {
	reply := `[{"Invoice No": 1007, "Product Name": "Valve", "Qty": "20.00", "Amount": "3,000.3500", "Date": "04-01-25"}]`
	items, err := ParseItems(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	li := items[0]
	if li.InvoiceNo != "1007" {
		t.Fatalf("invoice no: %q", li.InvoiceNo)
	}
	if li.Qty != 20 {
		t.Fatalf("qty: %d", li.Qty)
	}
	if li.Amount != 3000.35 {
		t.Fatalf("amount: %v", li.Amount)
	}
}

func TestParseItemsRejectsNonArray(t *testing.T) {
	for _, reply := range []string{
		`{"Invoice No": "INV001"}`,
		"I could not read the images.",
		"",
		"```json\nnot json\n```",
	} {
		if _, err := ParseItems(reply); !core.IsParse(err) {
			t.Fatalf("reply %q: expected parse error, got %v", reply, err)
		}
	}
}

func TestParseItemsRejectsNegativeQuantity(t *testing.T) {
	reply := `[{"Invoice No": "A", "Product Name": "X", "Qty": -2, "Amount": 1.0, "Date": "05-01-25"}]`
	if _, err := ParseItems(reply); !core.IsParse(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseItemsRejectsMissingKeys(t *testing.T) {
	replies := []string{
		`[{"Unrelated": "x"}]`,
		`[{"Invoice No": "A", "Product Name": "X", "Qty": 1, "Amount": 1.0}]`,
		`[{"Invoice No": "A", "Product Name": "X", "Qty": 1, "Amount": 1.0, "Date": null}]`,
	}
	for _, reply := range replies {
		if _, err := ParseItems(reply); !core.IsParse(err) {
			t.Fatalf("reply %s: expected parse error, got %v", reply, err)
		}
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	items := []LineItem{
		{InvoiceNo: "INV001", ProductName: "Pipe A", Qty: 25, Amount: 3593.1, Date: "01-01-25"},
		{InvoiceNo: "INV002", ProductName: "Pipe B", Qty: 50, Amount: 3849.76, Date: "02-01-25"},
	}
	records := ToRecords(items)
	if len(records) != 3 || records[0][0] != "Invoice No" {
		t.Fatalf("unexpected records: %v", records)
	}
	if records[1][3] != "3593.10" {
		t.Fatalf("amount should serialize with two decimals, got %s", records[1][3])
	}
	back, err := FromRecords(records)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if len(back) != 2 || back[0] != items[0] || back[1] != items[1] {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestFromRecordsMissingColumn(t *testing.T) {
	records := [][]string{{"Invoice No", "Qty"}, {"A", "1"}}
	if _, err := FromRecords(records); !core.IsParse(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
