package report

import "fmt"

// MaxChildren is the number of child slots on a family membership form.
const MaxChildren = 5

const (
	yes           = "Yes"
	no            = "No"
	notApplicable = "Not Applicable"
)

// Field names a value a Record can produce for a report cell.
type Field int

const (
	FieldID Field = iota
	FieldName
	FieldEmail
	FieldPhone
	FieldAddress
	FieldFulfillment

	FieldSecondaryName
	FieldSecondaryEmail
	FieldMembershipType
	FieldRenewal
	FieldCellPhone
	FieldEmergencyName
	FieldEmergencyPhone
	FieldPhotoOK

	FieldMooringLocation
	FieldMooringColor
	FieldBoatType
	FieldBoatColor
	FieldPermitNo
	FieldMooringServices

	FieldPrice
	FieldDiscount

	FieldFirstName
	FieldLastName
	FieldAppointmentType
	FieldCalendar
	FieldDate
	FieldTime
	FieldEndTime
	FieldAmountPaid
	FieldAppointmentPrice
	FieldNotes
	FieldSwimAbility
	FieldFormAnswers
	FieldMemberStatus

	FieldPaymentSource
	FieldPaidOn
	FieldTotal
	FieldTax
	FieldFees
	FieldNet
	FieldDiscounts
	FieldCardType
	FieldProvider
	FieldExternalID
	FieldVoided
	FieldPaymentError
	FieldDescription
	FieldCategory
	FieldTxnType
	FieldTxnID

	// child name/DOB pairs occupy the range after this marker
	fieldChildBase
)

// ChildNameField returns the field of child n (1-based).
func ChildNameField(n int) Field {
	return fieldChildBase + Field(2*(n-1))
}

// ChildDOBField returns the date-of-birth field of child n (1-based).
func ChildDOBField(n int) Field {
	return ChildNameField(n) + 1
}

// Value formats one field. Fields of a missing section come back as "",
// except the order-level flags which default the way the reports show them.
func (r *Record) Value(f Field) string {
	if f >= fieldChildBase {
		idx := int(f - fieldChildBase)
		if r.Membership == nil || idx >= 2*MaxChildren {
			return ""
		}
		c := r.Membership.Children[idx/2]
		if idx%2 == 0 {
			return c.Name
		}
		return c.DOB
	}

	switch f {
	case FieldID:
		return r.ID
	case FieldName:
		return r.Name
	case FieldEmail:
		return r.Email
	case FieldPhone:
		return r.Phone
	case FieldAddress:
		return r.Address
	case FieldFulfillment:
		return r.Fulfillment
	case FieldPhotoOK:
		if r.Membership != nil && r.Membership.PhotoOK != "" {
			return r.Membership.PhotoOK
		}
		if r.Kind == KindOrder {
			return notApplicable
		}
		return ""
	case FieldMooringServices:
		if r.Mooring != nil && r.Mooring.Services {
			return yes
		}
		if r.Kind == KindOrder {
			return no
		}
		return ""
	}

	if v, ok := r.membershipValue(f); ok {
		return v
	}
	if v, ok := r.mooringValue(f); ok {
		return v
	}
	if v, ok := r.appointmentValue(f); ok {
		return v
	}
	if v, ok := r.paymentValue(f); ok {
		return v
	}
	switch f {
	case FieldPrice, FieldDiscount:
		if r.Pricing == nil {
			return ""
		}
		if f == FieldPrice {
			return r.Pricing.Price
		}
		return r.Pricing.Discount
	}
	return ""
}

func (r *Record) membershipValue(f Field) (string, bool) {
	m := r.Membership
	if m == nil {
		m = &Membership{}
	}
	switch f {
	case FieldSecondaryName:
		return m.SecondaryName, true
	case FieldSecondaryEmail:
		return m.SecondaryEmail, true
	case FieldMembershipType:
		return m.Type, true
	case FieldRenewal:
		return m.Renewal, true
	case FieldCellPhone:
		return m.CellPhone, true
	case FieldEmergencyName:
		return m.EmergencyName, true
	case FieldEmergencyPhone:
		return m.EmergencyPhone, true
	}
	return "", false
}

func (r *Record) mooringValue(f Field) (string, bool) {
	m := r.Mooring
	if m == nil {
		m = &Mooring{}
	}
	switch f {
	case FieldMooringLocation:
		return m.Location, true
	case FieldMooringColor:
		return m.Color, true
	case FieldBoatType:
		return m.BoatType, true
	case FieldBoatColor:
		return m.BoatColor, true
	case FieldPermitNo:
		return m.PermitNo, true
	}
	return "", false
}

func (r *Record) appointmentValue(f Field) (string, bool) {
	a := r.Appointment
	if a == nil {
		a = &Appointment{}
	}
	switch f {
	case FieldFirstName:
		return a.FirstName, true
	case FieldLastName:
		return a.LastName, true
	case FieldAppointmentType:
		return a.Type, true
	case FieldCalendar:
		return a.Calendar, true
	case FieldDate:
		return a.Date, true
	case FieldTime:
		return a.Time, true
	case FieldEndTime:
		return a.EndTime, true
	case FieldAmountPaid:
		return a.AmountPaid, true
	case FieldAppointmentPrice:
		return a.Price, true
	case FieldNotes:
		return a.Notes, true
	case FieldSwimAbility:
		return a.SwimAbility, true
	case FieldFormAnswers:
		return a.FormAnswers, true
	case FieldMemberStatus:
		return a.MemberStatus, true
	}
	return "", false
}

func (r *Record) paymentValue(f Field) (string, bool) {
	p := r.Payment
	if p == nil {
		p = &Payment{}
	}
	switch f {
	case FieldPaymentSource:
		return p.Source, true
	case FieldPaidOn:
		return p.PaidOn, true
	case FieldTotal:
		return p.Total, true
	case FieldTax:
		return p.Tax, true
	case FieldFees:
		return p.Fees, true
	case FieldNet:
		return p.Net, true
	case FieldDiscounts:
		return p.Discounts, true
	case FieldCardType:
		return p.CardType, true
	case FieldProvider:
		return p.Provider, true
	case FieldExternalID:
		return p.ExternalID, true
	case FieldVoided:
		return p.Voided, true
	case FieldPaymentError:
		return p.Error, true
	case FieldDescription:
		return p.Description, true
	case FieldCategory:
		return p.Category, true
	case FieldTxnType:
		return p.Type, true
	case FieldTxnID:
		return p.TxnID, true
	}
	return "", false
}

// Column pairs a header label with the field that fills it.
type Column struct {
	Header string
	Field  Field
}

// Layout is the fixed column list of one report table.
type Layout struct {
	Name    string
	Columns []Column
}

// Width is the number of columns.
func (l Layout) Width() int { return len(l.Columns) }

// Header returns the header row.
func (l Layout) Header() []interface{} {
	row := make([]interface{}, len(l.Columns))
	for i, c := range l.Columns {
		row[i] = c.Header
	}
	return row
}

// Row formats one record. The result always has exactly Width cells.
func (l Layout) Row(r *Record) []interface{} {
	row := make([]interface{}, len(l.Columns))
	for i, c := range l.Columns {
		row[i] = r.Value(c.Field)
	}
	return row
}

// Rows formats records in order.
func (l Layout) Rows(records []*Record) [][]interface{} {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, l.Row(r))
	}
	return rows
}

// Index returns the position of the column holding f, or -1.
func (l Layout) Index(f Field) int {
	for i, c := range l.Columns {
		if c.Field == f {
			return i
		}
	}
	return -1
}

func childColumns(nameFmt, dobFmt string) []Column {
	cols := make([]Column, 0, 2*MaxChildren)
	for n := 1; n <= MaxChildren; n++ {
		cols = append(cols,
			Column{fmt.Sprintf(nameFmt, n), ChildNameField(n)},
			Column{fmt.Sprintf(dobFmt, n), ChildDOBField(n)},
		)
	}
	return cols
}

func concat(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	primaryContact = []Column{
		{"Order No", FieldID},
		{"Primary Name", FieldName},
		{"Primary Email", FieldEmail},
		{"Secondary Name", FieldSecondaryName},
		{"Secondary Email", FieldSecondaryEmail},
		{"Membership Type", FieldMembershipType},
		{"Renewal Type", FieldRenewal},
	}
	householdContact = []Column{
		{"Home Address", FieldAddress},
		{"Home Phone", FieldPhone},
		{"Cell Phone", FieldCellPhone},
		{"Emergency Contact", FieldEmergencyName},
		{"Emergency Phone", FieldEmergencyPhone},
	}
)

// Memberships is the per-year membership roster.
var Memberships = Layout{
	Name: "Memberships",
	Columns: concat(
		primaryContact,
		householdContact,
		childColumns("Child #%d Name", "Child #%d DOB"),
		[]Column{{"Child Photo Approved", FieldPhotoOK}},
	),
}

// Moorings lists mooring rows; add-on-only records never appear here.
var Moorings = Layout{
	Name: "Moorings",
	Columns: []Column{
		{"Order No", FieldID},
		{"Name", FieldName},
		{"Email", FieldEmail},
		{"Phone", FieldPhone},
		{"Row", FieldMooringLocation},
		{"Color / Position", FieldMooringColor},
		{"Boat Type", FieldBoatType},
		{"Boat Color", FieldBoatColor},
		{"Town Permit No", FieldPermitNo},
		{"Services", FieldMooringServices},
	},
}

// Orders is the umbrella report of every matched order.
var Orders = Layout{
	Name: "Orders",
	Columns: concat(
		primaryContact,
		[]Column{
			{"Fulfillment", FieldFulfillment},
			{"Price", FieldPrice},
			{"Discount", FieldDiscount},
		},
		householdContact,
		childColumns("Child %d Name", "Child %d DOB"),
		[]Column{
			{"Child Photo Approved", FieldPhotoOK},
			{"Mooring Location", FieldMooringLocation},
			{"Mooring Color", FieldMooringColor},
			{"Boat Type", FieldBoatType},
			{"Boat Color", FieldBoatColor},
			{"Town Permit No", FieldPermitNo},
			{"Mooring Services", FieldMooringServices},
		},
	),
}

var SquarespaceTransactions = Layout{
	Name: "Squarespace Transactions",
	Columns: []Column{
		{"Order Id", FieldID},
		{"Customer Email", FieldEmail},
		{"Paid On", FieldPaidOn},
		{"Total", FieldTotal},
		{"Tax", FieldTax},
		{"Processing Fees", FieldFees},
		{"Net Payment", FieldNet},
		{"Discounts", FieldDiscounts},
		{"Credit Card Type", FieldCardType},
		{"Provider", FieldProvider},
		{"Stripe Charge Id", FieldExternalID},
		{"Voided", FieldVoided},
		{"Payment Error", FieldPaymentError},
	},
}

var StripeTransactions = Layout{
	Name: "Stripe Transactions",
	Columns: []Column{
		{"Stripe Source Id", FieldID},
		{"Customer Email", FieldEmail},
		{"Description", FieldDescription},
		{"Paid On", FieldPaidOn},
		{"Total", FieldTotal},
		{"Processing Fees", FieldFees},
		{"Net Payment", FieldNet},
		{"Category", FieldCategory},
		{"Type", FieldTxnType},
		{"Txn Id", FieldTxnID},
	},
}

// SchedulingTransactions records paid scheduler bookings and orders.
var SchedulingTransactions = Layout{
	Name: "Scheduling Transactions",
	Columns: []Column{
		{"Id", FieldID},
		{"Name", FieldName},
		{"Email", FieldEmail},
		{"Phone", FieldPhone},
		{"Item", FieldAppointmentType},
		{"Date", FieldDate},
		{"Paid", FieldAmountPaid},
		{"Price", FieldAppointmentPrice},
		{"Member Status", FieldMemberStatus},
	},
}

// Reservations is used for form-less bookings (boats, equipment, slots).
var Reservations = Layout{
	Name: "Reservations",
	Columns: []Column{
		{"Appointment Id", FieldID},
		{"Name", FieldName},
		{"Email", FieldEmail},
		{"Phone", FieldPhone},
		{"Date", FieldDate},
		{"Time", FieldTime},
		{"End Time", FieldEndTime},
		{"Reservation Type", FieldAppointmentType},
		{"Calendar", FieldCalendar},
		{"Notes", FieldNotes},
	},
}

// Lessons is used for bookings that carry intake forms (lessons, races).
var Lessons = Layout{
	Name: "Lessons",
	Columns: []Column{
		{"Appointment Id", FieldID},
		{"First Name", FieldFirstName},
		{"Last Name", FieldLastName},
		{"Phone", FieldPhone},
		{"Email", FieldEmail},
		{"Date", FieldDate},
		{"Time", FieldTime},
		{"Class", FieldAppointmentType},
		{"Swim Ability", FieldSwimAbility},
		{"Paid", FieldAmountPaid},
		{"Form Answers", FieldFormAnswers},
	},
}

// RevenueHeader heads the instruction collection's revenue summary table.
var RevenueHeader = []interface{}{"Class", "Total Revenue"}

// AllLayouts lists every record layout.
func AllLayouts() []Layout {
	return []Layout{
		Memberships, Moorings, Orders,
		SquarespaceTransactions, StripeTransactions, SchedulingTransactions,
		Reservations, Lessons,
	}
}
