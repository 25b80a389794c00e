// Package payments reads Stripe balance transactions for the payments
// report.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/syc/clubsync/report"
)

// StripeClient lists balance transactions through stripe-go's auto-paging
// iterator.
type StripeClient struct {
	api *client.API
}

// NewStripeClient creates a client for the live API. backends may be nil.
func NewStripeClient(apiKey string, backends *stripe.Backends) (*StripeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing Stripe API key")
	}
	return &StripeClient{api: client.New(apiKey, backends)}, nil
}

// BalanceTransactions returns every balance transaction created in year (UTC).
func (c *StripeClient) BalanceTransactions(ctx context.Context, year int) ([]report.StripeBalanceTransaction, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	params := &stripe.BalanceTransactionListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: start.Unix(),
			LesserThan:         end.Unix(),
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []report.StripeBalanceTransaction
	it := c.api.BalanceTransactions.List(params)
	for it.Next() {
		out = append(out, fromStripe(it.BalanceTransaction()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list stripe balance transactions: %w", err)
	}

	slog.Info("Stripe fetch complete", "year", year, "transactions", len(out))
	return out, nil
}

func fromStripe(bt *stripe.BalanceTransaction) report.StripeBalanceTransaction {
	t := report.StripeBalanceTransaction{
		ID:                bt.ID,
		Amount:            bt.Amount,
		Fee:               bt.Fee,
		Created:           bt.Created,
		AvailableOn:       bt.AvailableOn,
		Description:       bt.Description,
		ReportingCategory: string(bt.ReportingCategory),
		Type:              string(bt.Type),
	}
	if bt.Source != nil {
		t.Source = bt.Source.ID
	}
	return t
}
