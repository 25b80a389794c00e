package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	labelRenewal        = "Confirm Membership Type"
	labelHomePhone      = "Home Phone"
	labelCellPhone      = "Cell Phone"
	labelPrimaryAddress = "Primary Address"
	labelSecondaryName  = "Secondary Member Name"
	labelSecondaryEmail = "Secondary Member Email"
	labelEmergencyName  = "Emergency Contact Name"
	labelEmergencyPhone = "Emergency Contact Phone"
	labelChildPrefix    = "Child Family Member #"

	labelMooringPhone = "Phone"
	labelBoatType     = "Type of Boat"
	labelBoatColor    = "Boat Color"
	labelPermitNo     = "Town Boat Permit #"
)

// Normalizer flattens orders using one season's catalog.
type Normalizer struct {
	Catalog Catalog
}

// NewNormalizer returns a normalizer for the given catalog.
func NewNormalizer(c Catalog) *Normalizer {
	return &Normalizer{Catalog: c}
}

// NormalizeOrder flattens one order. Orders whose line items match no
// catalog list still come back, with a zero Matches, so callers decide.
func (n *Normalizer) NormalizeOrder(o RawOrder) (*Record, error) {
	if o.OrderNumber == "" {
		return nil, malformed("order", o.ID, "orderNumber", nil)
	}
	if o.BillingAddress == nil {
		return nil, malformed("order", o.OrderNumber, "billingAddress", nil)
	}
	year, err := yearOf(o.ModifiedOn)
	if err != nil {
		return nil, malformed("order", o.OrderNumber, "modifiedOn", err)
	}

	b := o.BillingAddress
	r := &Record{
		Kind:        KindOrder,
		ID:          o.OrderNumber,
		Year:        year,
		Name:        strings.TrimSpace(b.FirstName + " " + b.LastName),
		Email:       o.CustomerEmail,
		Address:     FormatAddress(b),
		Fulfillment: o.FulfillmentStatus,
		Pricing: &Pricing{
			Price:    moneyValue(o.GrandTotal),
			Discount: moneyValue(o.DiscountTotal),
		},
	}
	if b.Phone != nil {
		r.Phone = strings.TrimSpace(*b.Phone)
	}

	for _, item := range o.LineItems {
		switch {
		case n.Catalog.IsMooringService(item.ProductName):
			r.Matches.MooringService = true
			n.mooringSection(r).Services = true
		case n.Catalog.IsMembership(item.ProductName):
			r.Matches.Membership = true
			n.applyMembership(r, item)
		case n.Catalog.IsMooring(item.ProductName):
			r.Matches.Mooring = true
			n.applyMooring(r, item)
		}
	}
	return r, nil
}

func (n *Normalizer) mooringSection(r *Record) *Mooring {
	if r.Mooring == nil {
		r.Mooring = &Mooring{}
	}
	return r.Mooring
}

func (n *Normalizer) applyMembership(r *Record, item LineItem) {
	m := r.Membership
	if m == nil {
		m = &Membership{PhotoOK: notApplicable}
		r.Membership = m
	}
	m.Type = item.ProductName

	cs := item.Customizations
	for i, c := range cs {
		switch c.Label {
		case labelRenewal:
			m.Renewal = c.Value
		case labelHomePhone:
			r.Phone = strings.TrimSpace(c.Value)
		case labelCellPhone:
			m.CellPhone = strings.TrimSpace(c.Value)
		case labelPrimaryAddress:
			r.Address = c.Value
		case labelSecondaryName:
			m.SecondaryName = c.Value
		case labelSecondaryEmail:
			m.SecondaryEmail = c.Value
		case labelEmergencyName:
			m.EmergencyName = c.Value
		case labelEmergencyPhone:
			m.EmergencyPhone = strings.TrimSpace(c.Value)
		default:
			if n.Catalog.PhotoConsent != "" && c.Label == n.Catalog.PhotoConsent {
				if c.Value == n.Catalog.PhotoApproved {
					m.PhotoOK = yes
				} else {
					m.PhotoOK = no
				}
				continue
			}
			slot, ok := childSlot(c.Label)
			if !ok {
				continue
			}
			// The date of birth is the customization right after the name.
			child := Child{Name: c.Value}
			if i+1 < len(cs) {
				child.DOB = cs[i+1].Value
			}
			m.Children[slot-1] = child
		}
	}
}

func (n *Normalizer) applyMooring(r *Record, item LineItem) {
	m := n.mooringSection(r)
	m.Location = item.ProductName
	if len(item.VariantOptions) > 0 {
		m.Color = item.VariantOptions[0].Value
	}
	for _, c := range item.Customizations {
		switch c.Label {
		case labelMooringPhone:
			r.Phone = strings.TrimSpace(c.Value)
		case labelBoatType:
			m.BoatType = c.Value
		case labelBoatColor:
			m.BoatColor = c.Value
		case labelPermitNo:
			m.PermitNo = c.Value
		}
	}
}

func childSlot(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, labelChildPrefix)
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || slot < 1 || slot > MaxChildren {
		return 0, false
	}
	return slot, true
}

// FormatAddress renders "street, city, state postal". A missing or empty
// second address line leaves the first line alone.
func FormatAddress(a *Address) string {
	if a == nil {
		return ""
	}
	street := a.Address1
	if a.Address2 != nil && strings.TrimSpace(*a.Address2) != "" {
		street += " " + strings.TrimSpace(*a.Address2)
	}
	return fmt.Sprintf("%s, %s, %s %s", street, a.City, a.State, a.PostalCode)
}

func yearOf(ts string) (int, error) {
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err == nil {
		return t.Year(), nil
	}
	if len(ts) >= 4 {
		if y, convErr := strconv.Atoi(ts[:4]); convErr == nil {
			return y, nil
		}
	}
	return 0, err
}

// NormalizeOrders decodes and flattens a page batch. Malformed orders are
// logged and counted, never fatal.
func (n *Normalizer) NormalizeOrders(items []json.RawMessage) (records []*Record, skipped int) {
	records = make([]*Record, 0, len(items))
	for _, raw := range items {
		var o RawOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			slog.Warn("Skipping undecodable order", "error", err)
			skipped++
			continue
		}
		r, err := n.NormalizeOrder(o)
		if err != nil {
			slog.Warn("Skipping malformed order", "error", err)
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped
}
