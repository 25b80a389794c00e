package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syc/clubsync/acuity"
	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/google"
	"github.com/syc/clubsync/logging"
	"github.com/syc/clubsync/metrics"
	"github.com/syc/clubsync/report"
	"github.com/syc/clubsync/webhook"
)

// Scheduling webhook actions.
const (
	ActionScheduled      = "scheduled"
	ActionRescheduled    = "rescheduled"
	ActionChanged        = "changed"
	ActionCanceled       = "canceled"
	ActionOrderCompleted = "order.completed"
)

// Member status values written on scheduling transactions.
const (
	MemberStatusMember    = "Member"
	MemberStatusNonMember = "Non Member"
	MemberStatusUnknown   = "Unknown"
)

const revenueTable = "Total Revenue"

// AppointmentSource fetches scheduling records by id (enables mocking).
type AppointmentSource interface {
	Appointment(ctx context.Context, id string) (*report.RawAppointment, error)
	Order(ctx context.Context, id string) (*report.RawSchedulingOrder, error)
}

// EventRouter applies scheduling webhooks to the appointment reports.
type EventRouter struct {
	source   AppointmentSource
	store    SheetStore
	resolver *DestinationResolver
	writer   *Writer
	metrics  *metrics.Registry
}

// Compile-time check that EventRouter implements webhook.EventHandler
var _ webhook.EventHandler = (*EventRouter)(nil)

// NewEventRouter wires the router. m may be nil.
func NewEventRouter(source AppointmentSource, store SheetStore, resolver *DestinationResolver, writer *Writer, m *metrics.Registry) *EventRouter {
	return &EventRouter{source: source, store: store, resolver: resolver, writer: writer, metrics: m}
}

// SchedulingTable is the transactions-collection tab for scheduler sales.
func SchedulingTable(year int) string {
	return fmt.Sprintf("Acuity %d", year)
}

// Handle dispatches one event. Lookup misses are logged and treated as
// success; everything else is returned.
func (r *EventRouter) Handle(ctx context.Context, ev webhook.Event) (err error) {
	logger := slog.With("run_id", ev.RunID, "action", ev.Action, "id", ev.ID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Event handling panicked", "panic", p)
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			r.metrics.Failure("webhook:" + ev.Action)
		}
	}()

	switch ev.Action {
	case ActionScheduled:
		return r.scheduled(ctx, logger, ev.ID)
	case ActionRescheduled, ActionChanged:
		return r.changed(ctx, logger, ev.ID)
	case ActionCanceled:
		return r.canceled(ctx, logger, ev.ID)
	case ActionOrderCompleted:
		return r.orderCompleted(ctx, logger, ev.ID)
	default:
		logger.Info("Unhandled webhook action")
		return nil
	}
}

func (r *EventRouter) fetchAppointment(ctx context.Context, id string) (*report.Record, error) {
	raw, err := r.source.Appointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching appointment %s: %w", id, err)
	}
	return report.NormalizeAppointment(*raw)
}

// appointmentTarget picks the collection, table and layout for a booking.
func appointmentTarget(rec *report.Record) (kind string, table string, layout report.Layout) {
	table = google.SanitizeTabTitle(rec.AppointmentType())
	if rec.HasForms() {
		return config.CollectionInstruction, table, report.Lessons
	}
	return config.CollectionWaterfront, table, report.Reservations
}

func (r *EventRouter) scheduled(ctx context.Context, logger *slog.Logger, id string) error {
	rec, err := r.fetchAppointment(ctx, id)
	if err != nil {
		return err
	}

	kind, table, layout := appointmentTarget(rec)
	dest, err := r.resolver.Resolve(ctx, kind, rec.Year, table, layout.Header())
	if err != nil {
		return err
	}
	if err := r.writer.AppendRow(ctx, dest, layout.Row(rec)); err != nil {
		return err
	}
	r.metrics.AddRows(layout.Name, 1)
	logger.Info("Appended appointment", "collection", dest.CollectionTitle, "table", table,
		"email", logging.RedactEmail(rec.Email))

	if !rec.HasForms() {
		return nil
	}

	if dest.Created {
		if err := r.addRevenueRow(ctx, rec.Year, table); err != nil {
			logger.Warn("Failed to add revenue summary row", "table", table, "error", err)
		}
	}
	return r.appendTransaction(ctx, logger, rec)
}

// addRevenueRow adds a SUM over the new lesson table's Paid column to the
// instruction collection's summary table.
func (r *EventRouter) addRevenueRow(ctx context.Context, year int, table string) error {
	dest, err := r.resolver.Resolve(ctx, config.CollectionInstruction, year, revenueTable, report.RevenueHeader)
	if err != nil {
		return err
	}
	col := google.ColumnLetter(report.Lessons.Index(report.FieldAmountPaid) + 1)
	formula := fmt.Sprintf("=SUM(%s)", google.A1(table, col+":"+col))
	return r.writer.AppendRow(ctx, dest, []interface{}{table, formula})
}

func (r *EventRouter) appendTransaction(ctx context.Context, logger *slog.Logger, rec *report.Record) error {
	status := r.memberStatus(ctx, logger, rec.Email, rec.Year)
	if rec.Appointment != nil {
		rec.Appointment.MemberStatus = status
	}

	dest, err := r.resolver.Resolve(ctx, config.CollectionTransactions, rec.Year,
		SchedulingTable(rec.Year), report.SchedulingTransactions.Header())
	if err != nil {
		return err
	}
	if err := r.writer.AppendRow(ctx, dest, report.SchedulingTransactions.Row(rec)); err != nil {
		return err
	}
	r.metrics.AddRows(report.SchedulingTransactions.Name, 1)
	logger.Info("Appended scheduling transaction", "table", dest.Table.Title, "member_status", status)
	return nil
}

// memberStatus checks the year's membership roster for the email. A roster
// that cannot be read gives Unknown; a missing roster gives Non Member.
func (r *EventRouter) memberStatus(ctx context.Context, logger *slog.Logger, email string, year int) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return MemberStatusNonMember
	}

	id, ok, err := r.resolver.ExistingCollection(ctx, config.CollectionWaterfront, year)
	if err != nil {
		logger.Warn("Membership lookup failed", "error", err)
		return MemberStatusUnknown
	}
	if !ok {
		return MemberStatusNonMember
	}

	tables, err := r.store.ListTables(ctx, id)
	if err != nil {
		logger.Warn("Membership lookup failed", "error", err)
		return MemberStatusUnknown
	}
	var roster *Table
	for i := range tables {
		if tables[i].Title == report.Memberships.Name {
			roster = &tables[i]
			break
		}
	}
	if roster == nil {
		return MemberStatusNonMember
	}

	rows, err := r.store.ReadRows(ctx, id, *roster)
	if err != nil {
		logger.Warn("Membership lookup failed", "error", err)
		return MemberStatusUnknown
	}
	if isMember(rows, email) {
		return MemberStatusMember
	}
	return MemberStatusNonMember
}

func isMember(rows [][]interface{}, email string) bool {
	cols := []int{
		report.Memberships.Index(report.FieldEmail),
		report.Memberships.Index(report.FieldSecondaryEmail),
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		for _, c := range cols {
			if c < len(row) && strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[c])), email) {
				return true
			}
		}
	}
	return false
}

// appointmentCollections returns the existing collections an appointment
// of that year could have been written to.
func (r *EventRouter) appointmentCollections(ctx context.Context, year int, kinds ...string) ([]string, error) {
	var ids []string
	for _, kind := range kinds {
		id, ok, err := r.resolver.ExistingCollection(ctx, kind, year)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *EventRouter) changed(ctx context.Context, logger *slog.Logger, id string) error {
	rec, err := r.fetchAppointment(ctx, id)
	if err != nil {
		return r.missIsOK(logger, err)
	}

	kind, table, layout := appointmentTarget(rec)
	collections, err := r.appointmentCollections(ctx, rec.Year, kind)
	if err != nil {
		return err
	}

	err = r.writer.UpdateByID(ctx, collections, rec.ID, layout.Row(rec))
	if err == nil {
		logger.Info("Updated appointment")
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.missIsOK(logger, r.move(ctx, logger, rec, kind, table, layout))
}

// move handles a change that took a booking out of its old collection:
// another season, or from reservations to lessons and back. The old row is
// removed and the booking appended where it now belongs.
func (r *EventRouter) move(ctx context.Context, logger *slog.Logger, rec *report.Record, kind, table string, layout report.Layout) error {
	var collections []string
	for _, year := range []int{rec.Year, rec.Year - 1, rec.Year + 1} {
		ids, err := r.appointmentCollections(ctx, year,
			config.CollectionWaterfront, config.CollectionInstruction)
		if err != nil {
			return err
		}
		collections = append(collections, ids...)
	}

	if err := r.writer.DeleteByID(ctx, collections, rec.ID); err != nil {
		return err
	}

	dest, err := r.resolver.Resolve(ctx, kind, rec.Year, table, layout.Header())
	if err != nil {
		return err
	}
	if err := r.writer.AppendRow(ctx, dest, layout.Row(rec)); err != nil {
		return err
	}
	logger.Info("Moved appointment", "collection", dest.CollectionTitle, "table", table)

	if dest.Created && rec.HasForms() {
		if err := r.addRevenueRow(ctx, rec.Year, table); err != nil {
			logger.Warn("Failed to add revenue summary row", "table", table, "error", err)
		}
	}
	return nil
}

func (r *EventRouter) canceled(ctx context.Context, logger *slog.Logger, id string) error {
	rec, err := r.fetchAppointment(ctx, id)
	if err != nil {
		return r.missIsOK(logger, err)
	}

	collections, err := r.appointmentCollections(ctx, rec.Year,
		config.CollectionWaterfront, config.CollectionInstruction)
	if err != nil {
		return err
	}

	err = r.writer.DeleteByID(ctx, collections, rec.ID)
	if err == nil {
		logger.Info("Removed canceled appointment")
	}
	return r.missIsOK(logger, err)
}

func (r *EventRouter) orderCompleted(ctx context.Context, logger *slog.Logger, id string) error {
	raw, err := r.source.Order(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching order %s: %w", id, err)
	}
	rec, err := report.NormalizeSchedulingOrder(*raw)
	if err != nil {
		return err
	}
	return r.appendTransaction(ctx, logger, rec)
}

// missIsOK turns a lookup miss into a logged no-op.
func (r *EventRouter) missIsOK(logger *slog.Logger, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, acuity.ErrNotFound) {
		logger.Warn("No row found for appointment, nothing to do", "error", err)
		return nil
	}
	return err
}

// ExitCode maps a sync result to a process-style status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
