// Package sqlsink stores completed Squarespace orders in PostgreSQL, one
// row per line item.
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/syc/clubsync/report"
)

var columns = []string{
	"id", "order_number", "created_on", "modified_on", "channel", "testmode", "customer_email",
	"billing_first_name", "billing_last_name", "billing_address1", "billing_address2",
	"billing_city", "billing_state", "billing_country_code", "billing_postal_code", "billing_phone",
	"fulfillment_status", "line_item_id", "variant_id", "variant_options", "sku", "product_id", "product_name",
	"quantity", "unit_price_paid", "image_url", "line_item_type", "customizations", "subtotal", "shipping_total",
	"discount_total", "tax_total", "refunded_total", "grand_total", "channel_name", "external_order_reference",
	"fulfilled_on", "price_tax_interpretation",
}

// OrderSink appends order line items to a table. It never updates or
// deletes.
type OrderSink struct {
	db    *sql.DB
	query string
}

// Open connects with the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func NewOrderSink(db *sql.DB, table string) *OrderSink {
	return &OrderSink{db: db, query: insertQuery(table)}
}

func insertQuery(table string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

// InsertOrder writes every line item of the order in one transaction.
// Returns the number of rows inserted.
func (s *OrderSink) InsertOrder(ctx context.Context, o report.RawOrder) (int, error) {
	if o.OrderNumber == "" {
		return 0, &report.MalformedError{Source: "order", ID: o.ID, Field: "orderNumber"}
	}
	if o.BillingAddress == nil {
		return 0, &report.MalformedError{Source: "order", ID: o.OrderNumber, Field: "billingAddress"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, item := range o.LineItems {
		args, err := lineItemArgs(o, item)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, s.query, args...); err != nil {
			return 0, fmt.Errorf("insert line item %s of order %s: %w", item.ID, o.OrderNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order %s: %w", o.OrderNumber, err)
	}
	return len(o.LineItems), nil
}

func lineItemArgs(o report.RawOrder, item report.LineItem) ([]any, error) {
	var variants any
	if item.VariantOptions != nil {
		b, err := json.Marshal(item.VariantOptions)
		if err != nil {
			return nil, err
		}
		variants = string(b)
	}
	customizations := item.Customizations
	if customizations == nil {
		customizations = []report.Customization{}
	}
	custJSON, err := json.Marshal(customizations)
	if err != nil {
		return nil, err
	}

	a := o.BillingAddress
	return []any{
		item.ID, o.OrderNumber, o.CreatedOn, o.ModifiedOn, o.Channel, o.Testmode, o.CustomerEmail,
		a.FirstName, a.LastName, a.Address1, nullString(a.Address2),
		a.City, a.State, a.CountryCode, a.PostalCode, nullString(a.Phone),
		o.FulfillmentStatus, item.ID, nullString(item.VariantID), variants, nullString(item.SKU), nullString(item.ProductID), item.ProductName,
		item.Quantity, nullMoney(item.UnitPricePaid), nullString(item.ImageURL), item.LineItemType, string(custJSON), nullMoney(o.Subtotal), nullMoney(o.ShippingTotal),
		nullMoney(o.DiscountTotal), nullMoney(o.TaxTotal), nullMoney(o.RefundedTotal), nullMoney(o.GrandTotal), o.ChannelName, nullString(o.ExternalOrderReference),
		nullString(o.FulfilledOn), o.PriceTaxInterpretation,
	}, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullMoney(m *report.Money) any {
	if m == nil {
		return nil
	}
	return m.Value
}
