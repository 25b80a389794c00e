package sync

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/syc/clubsync/report"
	"github.com/syc/clubsync/webhook"
)

const (
	waterfront2024   = "SYC Waterfront - Year 2024"
	instruction2024  = "SYC Instruction - Year 2024"
	transactions2024 = "SYC Transactions"
	lessonTable      = "Junior Sailing Level 1"
)

func lessonBooking() report.RawAppointment {
	return report.RawAppointment{
		ID:         4242,
		FirstName:  "Alex",
		LastName:   "Doe",
		Email:      "alex@example.com",
		Date:       "June 17, 2024",
		Time:       "10:00am",
		EndTime:    "12:00pm",
		Datetime:   "2024-06-17T10:00:00-0400",
		Type:       "Junior Sailing: Level 1",
		Price:      "300.00",
		AmountPaid: "300.00",
		Forms: []report.Form{{
			Name:   "Sailor Info",
			Values: []report.FormValue{{Name: "Swimming Ability", Value: "Strong"}},
		}},
	}
}

func sunfishBooking() report.RawAppointment {
	a := lessonBooking()
	a.ID = 5151
	a.Type = "Sunfish"
	a.Forms = nil
	return a
}

func rosterRow(email string) []interface{} {
	row := make([]interface{}, report.Memberships.Width())
	for i := range row {
		row[i] = ""
	}
	row[report.Memberships.Index(report.FieldEmail)] = email
	return row
}

func newTestRouter(store *MockSheetStore, appts ...report.RawAppointment) *EventRouter {
	source := &MockAppointmentSource{
		appointments: make(map[string]report.RawAppointment),
		orders:       make(map[string]report.RawSchedulingOrder),
	}
	for _, a := range appts {
		rec, _ := report.NormalizeAppointment(a)
		source.appointments[rec.ID] = a
	}
	resolver := testResolver(store)
	return NewEventRouter(source, store, resolver, NewWriter(store, nil), nil)
}

func TestRouter_ScheduledReservation(t *testing.T) {
	store := NewMockSheetStore()
	router := newTestRouter(store, sunfishBooking())

	err := router.Handle(context.Background(), webhook.Event{Action: ActionScheduled, ID: "5151"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	id, ok := store.CollectionID(waterfront2024)
	if !ok {
		t.Fatal("waterfront collection not created")
	}
	rows := store.Rows(id, "Sunfish")
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want header and booking", rows)
	}
	if rows[1][0] != "5151" {
		t.Errorf("row id = %v", rows[1][0])
	}
	if _, ok := store.CollectionID(transactions2024); ok {
		t.Error("reservations must not write a transaction")
	}
}

func TestRouter_ScheduledLesson(t *testing.T) {
	store := NewMockSheetStore()
	wf := store.AddCollection(waterfront2024)
	store.AddTable(wf, report.Memberships.Name, report.Memberships.Header(), rosterRow("ALEX@example.com"))
	in := store.AddCollection(instruction2024)
	store.AddTable(in, lessonTable, report.Lessons.Header())

	router := newTestRouter(store, lessonBooking())
	if err := router.Handle(context.Background(), webhook.Event{Action: ActionScheduled, ID: "4242"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := len(store.Rows(in, lessonTable)); got != 2 {
		t.Errorf("lesson rows = %d, want 2", got)
	}
	if store.HasTable(in, revenueTable) {
		t.Error("revenue row is only added for new lesson tables")
	}

	tx, ok := store.CollectionID(transactions2024)
	if !ok {
		t.Fatal("transactions collection not created")
	}
	rows := store.Rows(tx, "Acuity 2024")
	if len(rows) != 2 {
		t.Fatalf("transaction rows = %v", rows)
	}
	status := rows[1][report.SchedulingTransactions.Index(report.FieldMemberStatus)]
	if status != MemberStatusMember {
		t.Errorf("member status = %v, want %s", status, MemberStatusMember)
	}
}

func TestRouter_NewLessonTableGetsRevenueRow(t *testing.T) {
	store := NewMockSheetStore()
	router := newTestRouter(store, lessonBooking())

	if err := router.Handle(context.Background(), webhook.Event{Action: ActionScheduled, ID: "4242"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	in, _ := store.CollectionID(instruction2024)
	rows := store.Rows(in, revenueTable)
	if len(rows) != 2 {
		t.Fatalf("revenue rows = %v", rows)
	}
	if rows[1][0] != lessonTable || rows[1][1] != "=SUM('Junior Sailing Level 1'!J:J)" {
		t.Errorf("revenue row = %v", rows[1])
	}

	tx, _ := store.CollectionID(transactions2024)
	status := store.Rows(tx, "Acuity 2024")[1][report.SchedulingTransactions.Index(report.FieldMemberStatus)]
	if status != MemberStatusNonMember {
		t.Errorf("member status = %v, want %s without a roster", status, MemberStatusNonMember)
	}
}

func TestRouter_Canceled(t *testing.T) {
	store := NewMockSheetStore()
	wf := store.AddCollection(waterfront2024)
	store.AddTable(wf, "Sunfish", report.Reservations.Header(), []interface{}{"5151"}, []interface{}{"6000"})

	router := newTestRouter(store, sunfishBooking())
	if err := router.Handle(context.Background(), webhook.Event{Action: ActionCanceled, ID: "5151"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if n := store.Calls("DeleteRow"); n != 1 {
		t.Errorf("DeleteRow calls = %d, want 1", n)
	}
	rows := store.Rows(wf, "Sunfish")
	if len(rows) != 2 || rows[1][0] != "6000" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRouter_UnknownIDsAreNoOps(t *testing.T) {
	tests := []struct {
		name   string
		action string
		id     string
	}{
		{"cancel unknown appointment", ActionCanceled, "999"},
		{"cancel row never written", ActionCanceled, "5151"},
		{"change row never written", ActionChanged, "5151"},
		{"unhandled action", "noshow", "5151"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMockSheetStore()
			wf := store.AddCollection(waterfront2024)
			store.AddTable(wf, "Sunfish", report.Reservations.Header())

			router := newTestRouter(store, sunfishBooking())
			if err := router.Handle(context.Background(), webhook.Event{Action: tt.action, ID: tt.id}); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if n := store.Mutations(); n != 0 {
				t.Errorf("mutations = %d, want 0", n)
			}
		})
	}
}

func TestRouter_Changed(t *testing.T) {
	store := NewMockSheetStore()
	in := store.AddCollection(instruction2024)
	store.AddTable(in, lessonTable, report.Lessons.Header(), []interface{}{"4242", "Old"})

	booking := lessonBooking()
	booking.Time = "1:00pm"
	router := newTestRouter(store, booking)

	if err := router.Handle(context.Background(), webhook.Event{Action: ActionRescheduled, ID: "4242"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	row := store.Rows(in, lessonTable)[1]
	if got := row[report.Lessons.Index(report.FieldTime)]; got != "1:00pm" {
		t.Errorf("time = %v, want 1:00pm", got)
	}
}

func TestRouter_RescheduledIntoAnotherSeason(t *testing.T) {
	store := NewMockSheetStore()
	old := store.AddCollection("SYC Instruction - Year 2023")
	store.AddTable(old, lessonTable, report.Lessons.Header(), []interface{}{"4242", "Old"})

	router := newTestRouter(store, lessonBooking())
	if err := router.Handle(context.Background(), webhook.Event{Action: ActionRescheduled, ID: "4242"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rows := store.Rows(old, lessonTable); len(rows) != 1 {
		t.Errorf("old season rows = %v, want header only", rows)
	}
	in, ok := store.CollectionID(instruction2024)
	if !ok {
		t.Fatal("new season collection not created")
	}
	rows := store.Rows(in, lessonTable)
	if len(rows) != 2 || rows[1][0] != "4242" {
		t.Errorf("new season rows = %v", rows)
	}
}

func TestRouter_ChangedFromReservationToLesson(t *testing.T) {
	store := NewMockSheetStore()
	wf := store.AddCollection(waterfront2024)
	store.AddTable(wf, "Sunfish", report.Reservations.Header(), []interface{}{"4242"}, []interface{}{"6000"})

	router := newTestRouter(store, lessonBooking())
	if err := router.Handle(context.Background(), webhook.Event{Action: ActionChanged, ID: "4242"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	rows := store.Rows(wf, "Sunfish")
	if len(rows) != 2 || rows[1][0] != "6000" {
		t.Errorf("reservation rows = %v", rows)
	}
	in, ok := store.CollectionID(instruction2024)
	if !ok {
		t.Fatal("instruction collection not created")
	}
	if got := len(store.Rows(in, lessonTable)); got != 2 {
		t.Errorf("lesson rows = %d, want 2", got)
	}
}

func TestRouter_OrderCompleted(t *testing.T) {
	store := NewMockSheetStore()
	router := newTestRouter(store)
	router.source.(*MockAppointmentSource).orders["77"] = report.RawSchedulingOrder{
		ID:        77,
		Total:     "150.00",
		Time:      "2024-05-02T09:30:00-0400",
		FirstName: "Pat",
		LastName:  "Doe",
		Email:     "pat@example.com",
		LineItems: []report.SchedulingLineItem{{Name: "Lesson 5-Pack"}},
	}

	if err := router.Handle(context.Background(), webhook.Event{Action: ActionOrderCompleted, ID: "77"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	tx, ok := store.CollectionID(transactions2024)
	if !ok {
		t.Fatal("transactions collection not created")
	}
	if got := len(store.Rows(tx, "Acuity 2024")); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}

func TestMemberStatus_UnreadableRosterIsUnknown(t *testing.T) {
	store := NewMockSheetStore()
	store.AddCollection(waterfront2024)
	store.listTablesErr = errors.New("quota exceeded")

	router := newTestRouter(store)
	got := router.memberStatus(context.Background(), slog.Default(), "alex@example.com", 2024)
	if got != MemberStatusUnknown {
		t.Errorf("memberStatus() = %q, want %q", got, MemberStatusUnknown)
	}
}

func TestIsMember_MatchesSecondaryEmail(t *testing.T) {
	row := rosterRow("pat@example.com")
	row[report.Memberships.Index(report.FieldSecondaryEmail)] = "Alex@Example.com "
	rows := [][]interface{}{report.Memberships.Header(), row}

	if !isMember(rows, "alex@example.com") {
		t.Error("secondary email should match case-insensitively")
	}
	if isMember(rows, "nobody@example.com") {
		t.Error("unexpected match")
	}
}
