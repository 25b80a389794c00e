package report

import "testing"

func TestLayoutWidths(t *testing.T) {
	want := map[string]int{
		"Memberships":              23,
		"Moorings":                 10,
		"Orders":                   32,
		"Squarespace Transactions": 13,
		"Stripe Transactions":      10,
		"Scheduling Transactions":  9,
		"Reservations":             10,
		"Lessons":                  11,
	}

	for _, l := range AllLayouts() {
		if w, ok := want[l.Name]; ok && l.Width() != w {
			t.Errorf("%s width = %d, want %d", l.Name, l.Width(), w)
		}
	}
}

// Every row has exactly its header's width, whatever sections are missing.
func TestRowWidthMatchesHeader(t *testing.T) {
	records := []*Record{
		{},
		{Kind: KindOrder, Membership: &Membership{}, Mooring: &Mooring{}, Pricing: &Pricing{}},
		{Kind: KindAppointment, Appointment: &Appointment{HasForms: true}},
		{Kind: KindTransaction, Payment: &Payment{}},
	}

	for _, l := range AllLayouts() {
		header := l.Header()
		for _, r := range records {
			if got := len(l.Row(r)); got != len(header) {
				t.Errorf("%s: row width %d, header width %d", l.Name, got, len(header))
			}
		}
	}
}

func TestHeaderLabels(t *testing.T) {
	h := Memberships.Header()
	if h[0] != "Order No" || h[len(h)-1] != "Child Photo Approved" {
		t.Errorf("Memberships header = %v", h)
	}
	if h[12] != "Child #1 Name" || h[21] != "Child #5 DOB" {
		t.Errorf("child columns misplaced: %v", h[12:22])
	}

	o := Orders.Header()
	if o[7] != "Fulfillment" || o[15] != "Child 1 Name" || o[31] != "Mooring Services" {
		t.Errorf("Orders header = %v", o)
	}
}

func TestValue_MissingSections(t *testing.T) {
	r := &Record{Kind: KindAppointment}
	for _, f := range []Field{FieldMembershipType, FieldBoatType, FieldPrice, FieldSwimAbility, FieldFees, ChildNameField(5)} {
		if got := r.Value(f); got != "" {
			t.Errorf("Value(%d) = %q, want empty", f, got)
		}
	}
	if got := r.Value(FieldMooringServices); got != "" {
		t.Errorf("non-order services = %q, want empty", got)
	}
}
