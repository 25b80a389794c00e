package report

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeSquarespaceTransaction(t *testing.T) {
	raw := `{
		"id": "txn-1",
		"createdOn": "2024-04-01T10:00:00Z",
		"customerEmail": "pat@example.com",
		"salesOrderId": "ord-9",
		"voided": false,
		"total": {"value": "100.00", "currency": "USD"},
		"totalTaxes": {"value": "6.25", "currency": "USD"},
		"totalNetPayment": {"value": "96.80", "currency": "USD"},
		"discounts": [{"name": "Early", "amount": {"value": "10.00", "currency": "USD"}}],
		"payments": [{
			"creditCardType": "VISA",
			"provider": "STRIPE",
			"paidOn": "2024-04-01T10:00:05Z",
			"externalTransactionId": "ch_123",
			"processingFees": [
				{"amount": {"value": "2.90", "currency": "USD"}},
				{"amount": {"value": "0.30", "currency": "USD"}}
			]
		}],
		"paymentGatewayError": null
	}`

	var txn RawTransaction
	if err := json.Unmarshal([]byte(raw), &txn); err != nil {
		t.Fatal(err)
	}
	r, err := NormalizeSquarespaceTransaction(txn)
	if err != nil {
		t.Fatal(err)
	}

	want := []interface{}{"ord-9", "pat@example.com", "April 01 2024", "100.00", "6.25", "3.20", "96.80", "10.00", "VISA", "STRIPE", "ch_123", "No", ""}
	row := SquarespaceTransactions.Row(r)
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("col %d (%s) = %v, want %v", i, SquarespaceTransactions.Columns[i].Header, row[i], want[i])
		}
	}
	if r.Year != 2024 {
		t.Errorf("Year = %d", r.Year)
	}
}

func TestNormalizeSquarespaceTransaction_NoPayments(t *testing.T) {
	r, err := NormalizeSquarespaceTransaction(RawTransaction{ID: "txn-2", CreatedOn: "2023-12-01T00:00:00Z", Voided: true})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "txn-2" || r.Year != 2023 {
		t.Errorf("got id=%q year=%d", r.ID, r.Year)
	}
	if r.Value(FieldVoided) != "Yes" || r.Value(FieldFees) != "" || r.Value(FieldDiscounts) != "" {
		t.Errorf("payment = %+v", r.Payment)
	}
}

func TestNormalizeStripeTransactions(t *testing.T) {
	in2024 := time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC).Unix()
	in2023 := time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC).Unix()

	txns := []StripeBalanceTransaction{
		{ID: "txn_1", Source: "ch_1", Amount: 12500, Fee: 393, Created: in2024, Description: "Charge for pat@example.com", ReportingCategory: "charge", Type: "charge"},
		{ID: "txn_2", Source: "po_1", Amount: -50000, Fee: 0, Created: in2024, Description: "STRIPE PAYOUT", ReportingCategory: "payout", Type: "payout"},
		{ID: "txn_3", Source: "ch_0", Amount: 100, Created: in2023},
	}

	records := NormalizeStripeTransactions(txns, 2024)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	charge := StripeTransactions.Row(records[0])
	want := []interface{}{"ch_1", "pat@example.com", "Charge for pat@example.com", "July 04 2024", "125.00", "3.93", "121.07", "charge", "charge", "txn_1"}
	for i := range want {
		if charge[i] != want[i] {
			t.Errorf("col %d = %v, want %v", i, charge[i], want[i])
		}
	}

	if got := records[1].Value(FieldEmail); got != "" {
		t.Errorf("payout email = %q, want empty", got)
	}
	if got := records[1].Value(FieldTotal); got != "-500.00" {
		t.Errorf("payout total = %q", got)
	}
}

func TestFormatCents(t *testing.T) {
	tests := map[int64]string{0: "0.00", 5: "0.05", 1999: "19.99", -250: "-2.50"}
	for in, want := range tests {
		if got := formatCents(in); got != want {
			t.Errorf("formatCents(%d) = %q, want %q", in, got, want)
		}
	}
}
