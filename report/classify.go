package report

import "strings"

// Category is a report a record can belong to.
type Category uint8

const (
	CategoryMembership Category = 1 << iota
	CategoryMooring
	CategoryMooringServiceAddOn
	CategoryOrders
	CategoryTransaction
	CategoryReservation
	CategoryLesson
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{CategoryMembership, "membership"},
	{CategoryMooring, "mooring"},
	{CategoryMooringServiceAddOn, "mooring-service-addon"},
	{CategoryOrders, "orders"},
	{CategoryTransaction, "transaction"},
	{CategoryReservation, "reservation"},
	{CategoryLesson, "lesson-or-race"},
}

func (c Category) String() string {
	for _, n := range categoryNames {
		if n.c == c {
			return n.name
		}
	}
	return "unknown"
}

// CategorySet is a bitset of categories.
type CategorySet uint8

// Has reports whether c is in the set.
func (s CategorySet) Has(c Category) bool {
	return s&CategorySet(c) != 0
}

func (s CategorySet) with(c Category) CategorySet {
	return s | CategorySet(c)
}

func (s CategorySet) String() string {
	var names []string
	for _, n := range categoryNames {
		if s.Has(n.c) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// Classify returns every category a record belongs to. Categories overlap:
// a family buying a membership and a mooring lands in three reports.
func Classify(r *Record) CategorySet {
	var s CategorySet
	switch r.Kind {
	case KindOrder:
		if r.Matches.Membership {
			s = s.with(CategoryMembership)
		}
		if r.Matches.Mooring || r.Matches.MooringService {
			s = s.with(CategoryMooring)
		}
		if r.Matches.MooringService {
			s = s.with(CategoryMooringServiceAddOn)
		}
		if r.Matches.Any() {
			s = s.with(CategoryOrders)
		}
	case KindAppointment:
		if r.HasForms() {
			s = s.with(CategoryLesson).with(CategoryTransaction)
		} else {
			s = s.with(CategoryReservation)
		}
	case KindSchedulingOrder, KindTransaction:
		s = s.with(CategoryTransaction)
	}
	return s
}

// Filter keeps the records classified into c, in order.
func Filter(records []*Record, c Category) []*Record {
	var out []*Record
	for _, r := range records {
		if Classify(r).Has(c) {
			out = append(out, r)
		}
	}
	return out
}

// MooringRows keeps records that own a mooring; add-on-only buyers are
// folded into someone else's row by ReconcileMooringServices.
func MooringRows(records []*Record) []*Record {
	var out []*Record
	for _, r := range Filter(records, CategoryMooring) {
		if r.MooringLocation() != "" {
			out = append(out, r)
		}
	}
	return out
}
