// Package report turns Squarespace orders, Acuity appointments and payment
// transactions into flat records, and knows which columns each report
// carries.
//
// Raw* types mirror the upstream JSON. Pointer fields are the ones upstream
// is known to send as null or omit entirely.
package report

import "strings"

// Money is the Squarespace money envelope.
type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func moneyValue(m *Money) string {
	if m == nil {
		return ""
	}
	return m.Value
}

// Address is a Squarespace billing address.
type Address struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Address1    string  `json:"address1"`
	Address2    *string `json:"address2"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	CountryCode string  `json:"countryCode"`
	PostalCode  string  `json:"postalCode"`
	Phone       *string `json:"phone"`
}

// Customization is a labeled form answer attached to a line item. Order is
// significant: some values are positional (child name followed by DOB).
type Customization struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// VariantOption is one chosen product option, such as a size.
type VariantOption struct {
	OptionName string `json:"optionName"`
	Value      string `json:"value"`
}

// LineItem is one product line of a Squarespace order.
type LineItem struct {
	ID             string          `json:"id"`
	VariantID      *string         `json:"variantId"`
	VariantOptions []VariantOption `json:"variantOptions"`
	SKU            *string         `json:"sku"`
	ProductID      *string         `json:"productId"`
	ProductName    string          `json:"productName"`
	Quantity       int             `json:"quantity"`
	UnitPricePaid  *Money          `json:"unitPricePaid"`
	ImageURL       *string         `json:"imageUrl"`
	LineItemType   string          `json:"lineItemType"`
	Customizations []Customization `json:"customizations"`
}

// RawOrder is one element of the Squarespace orders "result" array.
type RawOrder struct {
	ID                     string     `json:"id"`
	OrderNumber            string     `json:"orderNumber"`
	CreatedOn              string     `json:"createdOn"`
	ModifiedOn             string     `json:"modifiedOn"`
	Channel                string     `json:"channel"`
	Testmode               bool       `json:"testmode"`
	CustomerEmail          string     `json:"customerEmail"`
	BillingAddress         *Address   `json:"billingAddress"`
	FulfillmentStatus      string     `json:"fulfillmentStatus"`
	LineItems              []LineItem `json:"lineItems"`
	Subtotal               *Money     `json:"subtotal"`
	ShippingTotal          *Money     `json:"shippingTotal"`
	DiscountTotal          *Money     `json:"discountTotal"`
	TaxTotal               *Money     `json:"taxTotal"`
	RefundedTotal          *Money     `json:"refundedTotal"`
	GrandTotal             *Money     `json:"grandTotal"`
	ChannelName            string     `json:"channelName"`
	ExternalOrderReference *string    `json:"externalOrderReference"`
	FulfilledOn            *string    `json:"fulfilledOn"`
	PriceTaxInterpretation string     `json:"priceTaxInterpretation"`
}

// FormValue is one answered question of an Acuity intake form.
type FormValue struct {
	FieldID int64  `json:"fieldID"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// Form is one intake form attached to an appointment.
type Form struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	Values []FormValue `json:"values"`
}

// RawAppointment is the Acuity GET /appointments/{id} payload.
type RawAppointment struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	EndTime           string `json:"endTime"`
	Datetime          string `json:"datetime"`
	Type              string `json:"type"`
	AppointmentTypeID int64  `json:"appointmentTypeID"`
	Calendar          string `json:"calendar"`
	CalendarID        int64  `json:"calendarID"`
	Price             string `json:"price"`
	AmountPaid        string `json:"amountPaid"`
	Paid              string `json:"paid"`
	Notes             string `json:"notes"`
	Canceled          bool   `json:"canceled"`
	Forms             []Form `json:"forms"`
}

// SchedulingLineItem is one product of a scheduler order.
type SchedulingLineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// RawSchedulingOrder is the Acuity GET /orders/{id} payload (packages,
// gift certificates and products sold through the scheduler).
type RawSchedulingOrder struct {
	ID        int64                `json:"id"`
	Total     string               `json:"total"`
	Subtotal  string               `json:"subtotal"`
	Status    string               `json:"status"`
	Time      string               `json:"time"`
	FirstName string               `json:"firstName"`
	LastName  string               `json:"lastName"`
	Phone     string               `json:"phone"`
	Email     string               `json:"email"`
	Title     string               `json:"title"`
	Notes     string               `json:"notes"`
	LineItems []SchedulingLineItem `json:"lineItems"`
}

// Kind identifies what a Record was normalized from.
type Kind int

const (
	KindOrder Kind = iota
	KindAppointment
	KindSchedulingOrder
	KindTransaction
)

// Matches records which catalog lists an order's line items hit.
type Matches struct {
	Membership     bool
	Mooring        bool
	MooringService bool
}

// Any reports whether at least one list matched.
func (m Matches) Any() bool {
	return m.Membership || m.Mooring || m.MooringService
}

// Child is one name and date-of-birth pair from a family membership.
type Child struct {
	Name string
	DOB  string
}

// Membership holds the fields filled from a membership line item.
type Membership struct {
	Type           string
	Renewal        string
	SecondaryName  string
	SecondaryEmail string
	CellPhone      string
	EmergencyName  string
	EmergencyPhone string
	Children       [MaxChildren]Child
	PhotoOK        string
}

// Mooring holds the fields filled from a mooring line item. A section with
// an empty Location only carries the services add-on flag.
type Mooring struct {
	Location  string
	Color     string
	BoatType  string
	BoatColor string
	PermitNo  string
	Services  bool
}

// Pricing holds the amounts of a line item as upstream decimal strings.
type Pricing struct {
	Price    string
	Discount string
}

// Appointment holds the scheduling fields. Scheduling orders reuse it with
// Type set to the order title.
type Appointment struct {
	FirstName    string
	LastName     string
	Type         string
	Calendar     string
	Date         string
	Time         string
	EndTime      string
	Price        string
	AmountPaid   string
	Paid         string
	Notes        string
	SwimAbility  string
	FormAnswers  string
	HasForms     bool
	MemberStatus string
}

// Payment holds one gateway transaction.
type Payment struct {
	Source      string
	PaidOn      string
	Total       string
	Tax         string
	Fees        string
	Net         string
	Discounts   string
	CardType    string
	Provider    string
	ExternalID  string
	Voided      string
	Error       string
	Description string
	Category    string
	Type        string
	TxnID       string
}

// Record is the canonical flat record every report row is built from.
// Category sections are nil when the record does not carry them.
type Record struct {
	Kind        Kind
	ID          string
	Year        int
	Name        string
	Email       string
	Phone       string
	Address     string
	Fulfillment string

	Matches Matches

	Membership  *Membership
	Mooring     *Mooring
	Pricing     *Pricing
	Appointment *Appointment
	Payment     *Payment
}

// MooringLocation returns the mooring row, or "" for records without one.
func (r *Record) MooringLocation() string {
	if r.Mooring == nil {
		return ""
	}
	return r.Mooring.Location
}

// HasServicesAddOn reports whether the record bought the services add-on
// without a mooring of its own.
func (r *Record) HasServicesAddOn() bool {
	return r.Mooring != nil && r.Mooring.Location == "" && r.Mooring.Services
}

// HasForms reports whether an appointment carried intake forms.
func (r *Record) HasForms() bool {
	return r.Appointment != nil && r.Appointment.HasForms
}

// AppointmentType returns the appointment type label.
func (r *Record) AppointmentType() string {
	if r.Appointment == nil {
		return ""
	}
	return r.Appointment.Type
}

// SameContact compares contact emails case-insensitively.
func (r *Record) SameContact(other *Record) bool {
	a := strings.TrimSpace(r.Email)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(other.Email))
}
