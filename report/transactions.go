package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const paidOnLayout = "January 02 2006"

type Discount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

type ProcessingFee struct {
	ID     string `json:"id"`
	Amount Money  `json:"amount"`
}

// TransactionPayment is one gateway payment of a Squarespace transaction.
type TransactionPayment struct {
	ID                    string          `json:"id"`
	Amount                *Money          `json:"amount"`
	CreditCardType        *string         `json:"creditCardType"`
	Provider              string          `json:"provider"`
	PaidOn                string          `json:"paidOn"`
	ExternalTransactionID string          `json:"externalTransactionId"`
	ProcessingFees        []ProcessingFee `json:"processingFees"`
}

// RawTransaction is one element of the Squarespace transactions
// "documents" array.
type RawTransaction struct {
	ID                  string               `json:"id"`
	CreatedOn           string               `json:"createdOn"`
	ModifiedOn          string               `json:"modifiedOn"`
	CustomerEmail       string               `json:"customerEmail"`
	SalesOrderID        *string              `json:"salesOrderId"`
	Voided              bool                 `json:"voided"`
	Total               *Money               `json:"total"`
	TotalTaxes          *Money               `json:"totalTaxes"`
	TotalNetPayment     *Money               `json:"totalNetPayment"`
	Discounts           []Discount           `json:"discounts"`
	Payments            []TransactionPayment `json:"payments"`
	PaymentGatewayError *string              `json:"paymentGatewayError"`
}

// StripeBalanceTransaction is the subset of a Stripe balance transaction
// the report needs. Amounts are in cents.
type StripeBalanceTransaction struct {
	ID                string
	Amount            int64
	Fee               int64
	Created           int64
	AvailableOn       int64
	Description       string
	ReportingCategory string
	Type              string
	Source            string
}

// NormalizeSquarespaceTransaction flattens a gateway transaction. Missing
// payments or discounts leave their columns empty.
func NormalizeSquarespaceTransaction(t RawTransaction) (*Record, error) {
	id := t.ID
	if t.SalesOrderID != nil && *t.SalesOrderID != "" {
		id = *t.SalesOrderID
	}
	if id == "" {
		return nil, malformed("transaction", t.ID, "id", nil)
	}

	p := &Payment{
		Source: "squarespace",
		Total:  moneyValue(t.Total),
		Tax:    moneyValue(t.TotalTaxes),
		Net:    moneyValue(t.TotalNetPayment),
		Voided: no,
		TxnID:  t.ID,
	}
	if len(t.Discounts) > 0 {
		p.Discounts = t.Discounts[0].Amount.Value
	}
	if t.Voided {
		p.Voided = yes
	}
	if t.PaymentGatewayError != nil {
		p.Error = *t.PaymentGatewayError
	}

	year := 0
	if len(t.Payments) > 0 {
		pay := t.Payments[0]
		if pay.CreditCardType != nil {
			p.CardType = *pay.CreditCardType
		}
		p.Provider = pay.Provider
		p.ExternalID = pay.ExternalTransactionID
		if paid, err := time.Parse(time.RFC3339, pay.PaidOn); err == nil {
			p.PaidOn = paid.Format(paidOnLayout)
			year = paid.Year()
		}
		var fees int64
		for _, f := range pay.ProcessingFees {
			cents, err := parseCents(f.Amount.Value)
			if err != nil {
				return nil, malformed("transaction", id, "processingFees", err)
			}
			fees += cents
		}
		p.Fees = formatCents(fees)
	}
	if year == 0 {
		if y, err := yearOf(t.CreatedOn); err == nil {
			year = y
		}
	}

	return &Record{
		Kind:    KindTransaction,
		ID:      id,
		Year:    year,
		Email:   t.CustomerEmail,
		Payment: p,
	}, nil
}

// NormalizeSquarespaceTransactions decodes and flattens a fetched batch.
func NormalizeSquarespaceTransactions(items []json.RawMessage) (records []*Record, skipped int) {
	records = make([]*Record, 0, len(items))
	for _, raw := range items {
		var t RawTransaction
		if err := json.Unmarshal(raw, &t); err != nil {
			slog.Warn("Skipping undecodable transaction", "error", err)
			skipped++
			continue
		}
		r, err := NormalizeSquarespaceTransaction(t)
		if err != nil {
			slog.Warn("Skipping malformed transaction", "error", err)
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped
}

// NormalizeStripeTransaction flattens a balance transaction. Charges carry
// the payer in a "Charge for <email>" description.
func NormalizeStripeTransaction(t StripeBalanceTransaction) *Record {
	created := time.Unix(t.Created, 0).UTC()
	email := ""
	if rest, ok := strings.CutPrefix(t.Description, "Charge for "); ok {
		email = strings.TrimSpace(rest)
	}
	return &Record{
		Kind:  KindTransaction,
		ID:    t.Source,
		Year:  created.Year(),
		Email: email,
		Payment: &Payment{
			Source:      "stripe",
			Description: t.Description,
			PaidOn:      created.Format(paidOnLayout),
			Total:       formatCents(t.Amount),
			Fees:        formatCents(t.Fee),
			Net:         formatCents(t.Amount - t.Fee),
			Category:    t.ReportingCategory,
			Type:        t.Type,
			TxnID:       t.ID,
		},
	}
}

// NormalizeStripeTransactions keeps the transactions created in year.
func NormalizeStripeTransactions(txns []StripeBalanceTransaction, year int) []*Record {
	var out []*Record
	for _, t := range txns {
		r := NormalizeStripeTransaction(t)
		if r.Year != year {
			continue
		}
		out = append(out, r)
	}
	return out
}

func parseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return int64(math.Round(f * 100)), nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
