// Package sync writes normalized club records into report spreadsheets,
// in scheduled batches and from scheduling webhooks.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/metrics"
	"github.com/syc/clubsync/report"
)

// Batch sources, accepted by RunSource.
const (
	SourceAll         = "all"
	SourceSquarespace = "squarespace"
	SourceStripe      = "stripe"
	SourceNonRenewed  = "nonrenewed"
)

const (
	notRenewedTable = "Not Renewed"
	statusFailed    = "failed"
	statusSuccess   = "success"
	statusSkipped   = "skipped"
)

// OrderFetcher reads Squarespace orders and transactions for a year.
type OrderFetcher interface {
	Orders(ctx context.Context, year int) ([]json.RawMessage, error)
	Transactions(ctx context.Context, year int) ([]json.RawMessage, error)
}

// BalanceFetcher reads Stripe balance transactions for a year.
type BalanceFetcher interface {
	BalanceTransactions(ctx context.Context, year int) ([]report.StripeBalanceTransaction, error)
}

// Stats holds the counts of one report write.
type Stats struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Written int `json:"written"`
}

// Result is the outcome of one report in a batch.
type Result struct {
	Report string `json:"report"`
	Table  string `json:"table,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stats  Stats  `json:"stats"`
}

// Summary collects every report result of a run.
type Summary struct {
	RunID     string     `json:"run_id"`
	Source    string     `json:"source"`
	Year      int        `json:"year"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Results   []Result   `json:"results"`
}

// ExitCode is 1 when any report failed.
func (s *Summary) ExitCode() int {
	for _, r := range s.Results {
		if r.Status == statusFailed {
			return 1
		}
	}
	return 0
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
}

func (s *Summary) fail(report string, err error) {
	s.add(Result{Report: report, Status: statusFailed, Error: err.Error()})
}

// BatchRunner runs the polling syncs. Fetchers left nil are skipped.
type BatchRunner struct {
	cfg      *config.Config
	orders   OrderFetcher
	balances BalanceFetcher
	resolver *DestinationResolver
	writer   *Writer
	metrics  *metrics.Registry
}

func NewBatchRunner(cfg *config.Config, orders OrderFetcher, balances BalanceFetcher, resolver *DestinationResolver, writer *Writer, m *metrics.Registry) *BatchRunner {
	return &BatchRunner{
		cfg:      cfg,
		orders:   orders,
		balances: balances,
		resolver: resolver,
		writer:   writer,
		metrics:  m,
	}
}

// RunSource runs one source, or every source for SourceAll.
func (b *BatchRunner) RunSource(ctx context.Context, source string, year int) (*Summary, error) {
	s := b.newSummary(source, year)
	switch source {
	case SourceAll:
		b.guard(s, SourceSquarespace, func() { b.syncSquarespace(ctx, s, year) })
		b.guard(s, SourceStripe, func() { b.syncStripe(ctx, s, year) })
		b.guard(s, SourceNonRenewed, func() { b.syncNonRenewed(ctx, s, year) })
	case SourceSquarespace:
		b.guard(s, source, func() { b.syncSquarespace(ctx, s, year) })
	case SourceStripe:
		b.guard(s, source, func() { b.syncStripe(ctx, s, year) })
	case SourceNonRenewed:
		b.guard(s, source, func() { b.syncNonRenewed(ctx, s, year) })
	default:
		return nil, fmt.Errorf("unknown source: %s", source)
	}
	b.finish(s)
	return s, nil
}

// RunAll runs every source for a year.
func (b *BatchRunner) RunAll(ctx context.Context, year int) *Summary {
	s, _ := b.RunSource(ctx, SourceAll, year)
	return s
}

func (b *BatchRunner) newSummary(source string, year int) *Summary {
	s := &Summary{
		RunID:     uuid.NewString(),
		Source:    source,
		Year:      year,
		StartTime: time.Now(),
	}
	slog.Info("Starting batch sync", "run_id", s.RunID, "source", source, "year", year)
	return s
}

func (b *BatchRunner) finish(s *Summary) {
	end := time.Now()
	s.EndTime = &end
	b.metrics.ObserveSync(s.Source, end.Sub(s.StartTime))

	for _, r := range s.Results {
		attrs := []any{"run_id", s.RunID, "report", r.Report, "table", r.Table,
			"written", r.Stats.Written, "skipped", r.Stats.Skipped}
		switch r.Status {
		case statusFailed:
			slog.Warn("Report failed", append(attrs, "error", r.Error)...)
		default:
			slog.Info("Report "+r.Status, attrs...)
		}
	}
	slog.Info("Batch sync finished", "run_id", s.RunID, "exit_code", s.ExitCode(),
		"duration", end.Sub(s.StartTime).Round(time.Millisecond))
}

// guard keeps a panicking step from taking its siblings down.
func (b *BatchRunner) guard(s *Summary, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync step panicked", "run_id", s.RunID, "step", step, "panic", r)
			b.metrics.Failure(step)
			s.fail(step, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// writeReport full-replaces one table. Empty batches leave the table
// alone without resolving it.
func (b *BatchRunner) writeReport(ctx context.Context, kind string, year int, table string, layout report.Layout, records []*report.Record, stats Stats) Result {
	res := Result{Report: layout.Name, Table: table, Stats: stats}
	if len(records) == 0 {
		res.Status = statusSkipped
		return res
	}

	dest, err := b.resolver.Resolve(ctx, kind, year, table, layout.Header())
	if err == nil {
		res.Stats.Written, err = b.writer.ReplaceTable(ctx, dest, layout.Header(), layout.Rows(records))
	}
	if err != nil {
		b.metrics.Failure(layout.Name)
		res.Status = statusFailed
		res.Error = err.Error()
		return res
	}

	b.metrics.AddRows(layout.Name, res.Stats.Written)
	res.Status = statusSuccess
	return res
}

func ordersTable(year int) string { return fmt.Sprintf("Year %d", year) }

// fetchOrders reads and normalizes a year of orders, reconciling service
// add-ons across the whole batch.
func (b *BatchRunner) fetchOrders(ctx context.Context, year int) ([]*report.Record, Stats, error) {
	items, err := b.orders.Orders(ctx, year)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("fetching %d orders: %w", year, err)
	}
	records, skipped := report.NewNormalizer(b.cfg.CatalogFor(year)).NormalizeOrders(items)
	b.metrics.Fetched("squarespace_orders", len(items), skipped)
	report.ReconcileMooringServices(records)
	return records, Stats{Fetched: len(items), Skipped: skipped}, nil
}

func (b *BatchRunner) syncSquarespace(ctx context.Context, s *Summary, year int) {
	if b.orders == nil {
		s.add(Result{Report: SourceSquarespace, Status: statusSkipped})
		return
	}

	// A failed read aborts the source before anything is written.
	records, stats, err := b.fetchOrders(ctx, year)
	if err != nil {
		b.metrics.Failure(SourceSquarespace)
		s.fail(SourceSquarespace+" orders", err)
		return
	}
	items, err := b.orders.Transactions(ctx, year)
	if err != nil {
		b.metrics.Failure(report.SquarespaceTransactions.Name)
		s.fail(SourceSquarespace+" transactions", fmt.Errorf("fetching %d transactions: %w", year, err))
		return
	}

	s.add(b.writeReport(ctx, config.CollectionWaterfront, year, report.Memberships.Name,
		report.Memberships, report.Filter(records, report.CategoryMembership), stats))
	s.add(b.writeReport(ctx, config.CollectionWaterfront, year, report.Moorings.Name,
		report.Moorings, report.MooringRows(records), stats))
	s.add(b.writeReport(ctx, config.CollectionOrders, year, ordersTable(year),
		report.Orders, report.Filter(records, report.CategoryOrders), stats))

	txns, skipped := report.NormalizeSquarespaceTransactions(items)
	b.metrics.Fetched("squarespace_transactions", len(items), skipped)
	s.add(b.writeReport(ctx, config.CollectionTransactions, year, fmt.Sprintf("Squarespace %d", year),
		report.SquarespaceTransactions, txns, Stats{Fetched: len(items), Skipped: skipped}))
}

func (b *BatchRunner) syncStripe(ctx context.Context, s *Summary, year int) {
	if b.balances == nil {
		s.add(Result{Report: SourceStripe, Status: statusSkipped})
		return
	}

	txns, err := b.balances.BalanceTransactions(ctx, year)
	if err != nil {
		b.metrics.Failure(SourceStripe)
		s.fail(SourceStripe, fmt.Errorf("fetching %d balance transactions: %w", year, err))
		return
	}
	b.metrics.Fetched("stripe", len(txns), 0)
	records := report.NormalizeStripeTransactions(txns, year)
	s.add(b.writeReport(ctx, config.CollectionTransactions, year, fmt.Sprintf("Stripe %d", year),
		report.StripeTransactions, records, Stats{Fetched: len(txns)}))
}

// syncNonRenewed writes each prior year's members, their union, and the
// prior members whose email does not appear among this year's members.
func (b *BatchRunner) syncNonRenewed(ctx context.Context, s *Summary, year int) {
	if b.orders == nil || b.cfg.NonRenewed.PriorYears <= 0 {
		s.add(Result{Report: SourceNonRenewed, Status: statusSkipped})
		return
	}

	var prior []*report.Record
	for py := year - 1; py >= year-b.cfg.NonRenewed.PriorYears; py-- {
		records, stats, err := b.fetchOrders(ctx, py)
		if err != nil {
			b.metrics.Failure(SourceNonRenewed)
			s.fail(SourceNonRenewed, err)
			return
		}
		members := report.Filter(records, report.CategoryMembership)
		s.add(b.writeReport(ctx, config.CollectionMembers, py, strconv.Itoa(py),
			report.Memberships, members, stats))
		prior = append(prior, members...)
	}
	s.add(b.writeReport(ctx, config.CollectionMembers, year, fmt.Sprintf("Prior %d All", year),
		report.Memberships, prior, Stats{Fetched: len(prior)}))

	current, _, err := b.fetchOrders(ctx, year)
	if err != nil {
		b.metrics.Failure(SourceNonRenewed)
		s.fail(SourceNonRenewed, err)
		return
	}
	lapsed := NotRenewed(prior, report.Filter(current, report.CategoryMembership))
	s.add(b.writeReport(ctx, config.CollectionMembers, year, notRenewedTable,
		report.Memberships, lapsed, Stats{Fetched: len(prior)}))
}

// NotRenewed returns the prior records whose email is absent from current,
// compared case-insensitively. Every prior record of a lapsed email is kept.
func NotRenewed(prior, current []*report.Record) []*report.Record {
	renewed := make(map[string]bool, len(current))
	for _, r := range current {
		renewed[strings.ToLower(strings.TrimSpace(r.Email))] = true
	}
	var out []*report.Record
	for _, r := range prior {
		if !renewed[strings.ToLower(strings.TrimSpace(r.Email))] {
			out = append(out, r)
		}
	}
	return out
}
