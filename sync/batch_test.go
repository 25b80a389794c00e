package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/syc/clubsync/report"
)

func clubOrder(number, email string, year int, product string) report.RawOrder {
	return report.RawOrder{
		ID:            "o-" + number,
		OrderNumber:   number,
		ModifiedOn:    fmt.Sprintf("%d-03-05T14:22:10Z", year),
		CustomerEmail: email,
		BillingAddress: &report.Address{
			FirstName:  "Pat",
			LastName:   "Doe",
			Address1:   "12 Harbor Rd",
			City:       "Salem",
			State:      "MA",
			PostalCode: "01970",
		},
		LineItems: []report.LineItem{{ProductName: product, Quantity: 1}},
	}
}

const rawTransaction = `{
	"id": "txn-1",
	"createdOn": "2024-04-01T10:00:00Z",
	"customerEmail": "pat@example.com",
	"salesOrderId": "ord-9",
	"total": {"value": "100.00", "currency": "USD"}
}`

func newTestRunner(store *MockSheetStore, orders OrderFetcher, balances BalanceFetcher) *BatchRunner {
	cfg := testConfig()
	resolver := NewDestinationResolver(cfg, store, NewMockRegistry(), nil)
	return NewBatchRunner(cfg, orders, balances, resolver, NewWriter(store, nil), nil)
}

func TestSyncSquarespace_WritesReports(t *testing.T) {
	store := NewMockSheetStore()
	fetcher := &MockOrderFetcher{
		orders: map[int][]report.RawOrder{2024: {
			clubOrder("1001", "pat@example.com", 2024, "Family Membership"),
			clubOrder("1002", "lee@example.com", 2024, "Water-Row A"),
			clubOrder("1003", "LEE@example.com", 2024, "Mooring Services"),
			clubOrder("1004", "kim@example.com", 2024, "Gift Card"),
		}},
		transactions: map[int][]json.RawMessage{2024: {json.RawMessage(rawTransaction)}},
	}

	summary, err := newTestRunner(store, fetcher, nil).RunSource(context.Background(), SourceSquarespace, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if summary.ExitCode() != 0 {
		t.Fatalf("ExitCode() = %d, results %+v", summary.ExitCode(), summary.Results)
	}

	wf, _ := store.CollectionID("SYC Waterfront - Year 2024")
	if got := len(store.Rows(wf, "Memberships")); got != 2 {
		t.Errorf("membership rows = %d, want header + 1", got)
	}
	moorings := store.Rows(wf, "Moorings")
	if len(moorings) != 2 {
		t.Fatalf("mooring rows = %v, want header + 1002", moorings)
	}
	if moorings[1][0] != "1002" {
		t.Errorf("mooring order = %v, want 1002", moorings[1][0])
	}
	if got := moorings[1][report.Moorings.Index(report.FieldMooringServices)]; got == "" {
		t.Error("add-on order should flag the mooring's services")
	}

	orders, _ := store.CollectionID("SYC Orders")
	if got := len(store.Rows(orders, "Year 2024")); got != 4 {
		t.Errorf("order rows = %d, want header + 3 matched", got)
	}

	tx, _ := store.CollectionID("SYC Transactions")
	if got := len(store.Rows(tx, "Squarespace 2024")); got != 2 {
		t.Errorf("transaction rows = %d, want 2", got)
	}
}

func TestSyncSquarespace_FetchErrorWritesNothing(t *testing.T) {
	store := NewMockSheetStore()
	fetcher := &MockOrderFetcher{err: errors.New("503 from upstream")}

	summary, err := newTestRunner(store, fetcher, nil).RunSource(context.Background(), SourceSquarespace, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if summary.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", summary.ExitCode())
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("mutations = %d, want 0", n)
	}
}

func TestSyncSquarespace_OrdersFailureSkipsTransactions(t *testing.T) {
	store := NewMockSheetStore()
	fetcher := &MockOrderFetcher{
		transactions: map[int][]json.RawMessage{2024: {json.RawMessage(rawTransaction)}},
		ordersErr:    errors.New("401 unauthorized"),
	}

	summary, err := newTestRunner(store, fetcher, nil).RunSource(context.Background(), SourceSquarespace, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if summary.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", summary.ExitCode())
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("mutations = %d, want 0", n)
	}
	for _, r := range summary.Results {
		if r.Status == statusSuccess {
			t.Errorf("%s written after the orders read failed", r.Report)
		}
	}
}

func TestSyncSquarespace_EmptyFetchSkips(t *testing.T) {
	store := NewMockSheetStore()

	summary, err := newTestRunner(store, &MockOrderFetcher{}, nil).RunSource(context.Background(), SourceSquarespace, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	for _, r := range summary.Results {
		if r.Status != statusSkipped {
			t.Errorf("%s status = %s, want skipped", r.Report, r.Status)
		}
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("mutations = %d, want 0", n)
	}
}

func TestSyncStripe_KeepsTheYear(t *testing.T) {
	store := NewMockSheetStore()
	balances := &MockBalanceFetcher{txns: []report.StripeBalanceTransaction{
		{ID: "txn_1", Amount: 10000, Fee: 320, Created: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix(), Source: "ch_1"},
		{ID: "txn_2", Amount: 5000, Fee: 175, Created: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC).Unix(), Source: "ch_2"},
	}}

	summary, err := newTestRunner(store, nil, balances).RunSource(context.Background(), SourceStripe, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if summary.ExitCode() != 0 {
		t.Fatalf("results = %+v", summary.Results)
	}

	tx, _ := store.CollectionID("SYC Transactions")
	rows := store.Rows(tx, "Stripe 2024")
	if len(rows) != 2 || rows[1][0] != "ch_1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRunSource_MissingClientsAreSkipped(t *testing.T) {
	summary, err := newTestRunner(NewMockSheetStore(), nil, nil).RunSource(context.Background(), SourceAll, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("results = %+v, want one per source", summary.Results)
	}
	if summary.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", summary.ExitCode())
	}
}

func TestRunSource_UnknownSource(t *testing.T) {
	if _, err := newTestRunner(NewMockSheetStore(), nil, nil).RunSource(context.Background(), "quickbooks", 2024); err == nil {
		t.Error("expected error for unknown source")
	}
}

type panickingBalances struct{}

func (panickingBalances) BalanceTransactions(context.Context, int) ([]report.StripeBalanceTransaction, error) {
	panic("nil charge")
}

func TestRunAll_PanicIsContained(t *testing.T) {
	store := NewMockSheetStore()
	fetcher := &MockOrderFetcher{orders: map[int][]report.RawOrder{2024: {
		clubOrder("1001", "pat@example.com", 2024, "Family Membership"),
	}}}

	summary := newTestRunner(store, fetcher, panickingBalances{}).RunAll(context.Background(), 2024)
	if summary.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", summary.ExitCode())
	}

	wf, ok := store.CollectionID("SYC Waterfront - Year 2024")
	if !ok || len(store.Rows(wf, "Memberships")) != 2 {
		t.Error("squarespace reports should still be written")
	}

	var failed []string
	for _, r := range summary.Results {
		if r.Status == statusFailed {
			failed = append(failed, r.Report)
		}
	}
	if len(failed) != 1 || failed[0] != SourceStripe {
		t.Errorf("failed reports = %v, want [stripe]", failed)
	}
}

func TestSyncNonRenewed(t *testing.T) {
	store := NewMockSheetStore()
	fetcher := &MockOrderFetcher{orders: map[int][]report.RawOrder{
		2023: {
			clubOrder("900", "pat@example.com", 2023, "Family Membership"),
			clubOrder("901", "sam@example.com", 2023, "Individual Membership"),
		},
		2024: {
			clubOrder("1001", "PAT@example.com", 2024, "Family Membership"),
		},
	}}
	runner := newTestRunner(store, fetcher, nil)
	runner.cfg.NonRenewed.PriorYears = 1

	summary, err := runner.RunSource(context.Background(), SourceNonRenewed, 2024)
	if err != nil {
		t.Fatalf("RunSource() error = %v", err)
	}
	if summary.ExitCode() != 0 {
		t.Fatalf("results = %+v", summary.Results)
	}

	members, ok := store.CollectionID("SYC Members")
	if !ok {
		t.Fatal("members collection not created")
	}
	if got := len(store.Rows(members, "2023")); got != 3 {
		t.Errorf("2023 rows = %d, want 3", got)
	}
	if got := len(store.Rows(members, "Prior 2024 All")); got != 3 {
		t.Errorf("prior rows = %d, want 3", got)
	}
	lapsed := store.Rows(members, "Not Renewed")
	if len(lapsed) != 2 || lapsed[1][0] != "901" {
		t.Errorf("not renewed = %v, want order 901 only", lapsed)
	}
}

func TestNotRenewed_KeepsEveryPriorRecord(t *testing.T) {
	prior := []*report.Record{
		{ID: "1", Email: "sam@example.com"},
		{ID: "2", Email: "pat@example.com"},
		{ID: "3", Email: " Sam@Example.com"},
	}
	current := []*report.Record{{ID: "9", Email: "PAT@example.com"}}

	got := NotRenewed(prior, current)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("NotRenewed() = %v", got)
	}
}
